package engine

import (
	"strings"
	"testing"
	"time"

	"lotmarket/internal/models"
)

func openTestConfirmation(t *testing.T) (*testEnv, models.ConfirmationKey) {
	t.Helper()
	now := time.Now()
	env := newTestEnv(t,
		order("bid-abcdef-0001", models.SideBid, "GOLD", "10.00", 2, "buyer", now),
		order("off-123456-0002", models.SideOffer, "GOLD", "10.00", 5, "seller", now),
	)
	env.decide(t, "GOLD")
	return env, models.ConfirmationKey{
		Asset:        "GOLD",
		BidOrderID:   "bid-abcdef-0001",
		OfferOrderID: "off-123456-0002",
	}
}

func TestUnknownConfirmationKeyIgnored(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.handleConfirmationResponse("GOLD|x|y", true, nil); err != nil {
		t.Errorf("unknown key must be ignored, got %v", err)
	}
	if env.store.tradeCount() != 0 {
		t.Error("no trade expected")
	}
}

func TestConfirmationNotDuplicatedAcrossTicks(t *testing.T) {
	env, _ := openTestConfirmation(t)

	sent := env.realtime.sentTo("buyer", models.EventConfirmationRequest)
	env.decide(t, "GOLD")
	env.decide(t, "GOLD")

	env.engine.mu.RLock()
	count := len(env.engine.confirmations)
	env.engine.mu.RUnlock()

	if count != 1 {
		t.Errorf("expected single confirmation, got %d", count)
	}
	if got := env.realtime.sentTo("buyer", models.EventConfirmationRequest); got != sent {
		t.Errorf("smaller party re-notified: %d -> %d", sent, got)
	}
}

func TestConfirmationTimerArmedPerStage(t *testing.T) {
	env, key := openTestConfirmation(t)
	ks := key.String()

	if !env.engine.timers.Armed(timerConfirmation, ks) {
		t.Fatal("stage 1 timer not armed")
	}

	if err := env.engine.handleConfirmationResponse(ks, false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.engine.timers.Armed(timerConfirmation, ks) {
		t.Fatal("stage 2 timer not armed")
	}

	if err := env.engine.handleConfirmationResponse(ks, true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.engine.timers.Armed(timerConfirmation, ks) {
		t.Error("timer survives terminal path")
	}
}

func TestSmallerTimeoutAdvancesToLarger(t *testing.T) {
	env, key := openTestConfirmation(t)
	ks := key.String()

	// Таймаут первой стадии эквивалентен отказу меньшей стороны
	env.engine.handleTimerFired(timerRef{kind: timerConfirmation, id: ks})

	env.engine.mu.RLock()
	pc := env.engine.confirmations[ks]
	env.engine.mu.RUnlock()

	if pc == nil || pc.State != models.AwaitingLarger {
		t.Fatalf("expected AWAITING_LARGER after timeout, got %+v", pc)
	}
	if pc.SmallerResponse == nil || *pc.SmallerResponse {
		t.Error("smaller response not recorded as declined")
	}
	if env.realtime.sentTo("seller", models.EventPartialFillApproval) != 1 {
		t.Error("larger party not notified after timeout")
	}
}

func TestLargerTimeoutDeclinesPair(t *testing.T) {
	env, key := openTestConfirmation(t)
	ks := key.String()

	env.engine.handleTimerFired(timerRef{kind: timerConfirmation, id: ks})
	env.engine.handleTimerFired(timerRef{kind: timerConfirmation, id: ks})

	env.engine.mu.RLock()
	_, declined := env.engine.declined[ks]
	_, pending := env.engine.confirmations[ks]
	env.engine.mu.RUnlock()

	if !declined {
		t.Error("pair not declined after both timeouts")
	}
	if pending {
		t.Error("confirmation not removed")
	}

	// Третье срабатывание - no-op
	env.engine.handleTimerFired(timerRef{kind: timerConfirmation, id: ks})
	if env.store.tradeCount() != 0 {
		t.Error("no trade expected")
	}
}

func TestUpsizeBelowCurrentQuantityRejected(t *testing.T) {
	env, key := openTestConfirmation(t)

	bad := int64(1)
	if err := env.engine.handleConfirmationResponse(key.String(), true, &bad); err == nil {
		t.Error("expected error for quantity below current")
	}

	// Состояние не тронуто, ответ можно повторить
	env.engine.mu.RLock()
	pc := env.engine.confirmations[key.String()]
	env.engine.mu.RUnlock()
	if pc == nil || pc.State != models.AwaitingSmaller {
		t.Fatalf("confirmation lost after invalid response: %+v", pc)
	}
}

func TestUpsizeWithoutQuantityDefaultsToLarger(t *testing.T) {
	env, key := openTestConfirmation(t)

	// YES по вторичному каналу не несет количества
	if err := env.engine.handleConfirmationResponse(key.String(), true, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trade := env.store.trade(t, 0)
	if trade.Amount != 5 {
		t.Errorf("expected full upsize to 5, got %d", trade.Amount)
	}
	bid := env.store.order(t, "bid-abcdef-0001")
	if bid.OriginalAmount != 5 {
		t.Errorf("expected bid upsized to 5, got %d", bid.OriginalAmount)
	}
}

func TestProtocolTimersRestoredAcrossRestart(t *testing.T) {
	now := time.Now()
	env := newTestEnv(t,
		order("bid-abcdef-0001", models.SideBid, "GOLD", "10.00", 2, "buyer", now),
		order("off-123456-0002", models.SideOffer, "GOLD", "10.00", 5, "seller", now),
		order("bid-silver-0001", models.SideBid, "SILVER", "9.50", 1, "buyer", now),
		order("off-silver-0002", models.SideOffer, "SILVER", "10.00", 1, "seller", now),
	)
	env.decide(t, "GOLD")   // подтверждение количества
	env.decide(t, "SILVER") // переговоры
	ks := "GOLD|bid-abcdef-0001|off-123456-0002"

	if err := env.engine.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := env.engine.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if env.engine.timers.Armed(timerConfirmation, ks) {
		t.Fatal("timers must be cancelled while stopped")
	}

	if err := env.engine.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer env.engine.Stop()

	waitFor(t, "confirmation timer restored", func() bool {
		return env.engine.timers.Armed(timerConfirmation, ks)
	})
	waitFor(t, "negotiation timer restored", func() bool {
		return env.engine.timers.Armed(timerNegotiation, "SILVER")
	})

	env.engine.mu.RLock()
	pc := env.engine.confirmations[ks]
	env.engine.mu.RUnlock()
	if pc == nil || pc.State != models.AwaitingSmaller {
		t.Fatalf("confirmation state changed by restart: %+v", pc)
	}
}

func TestExpiredConfirmationResolvedOnRestart(t *testing.T) {
	env, key := openTestConfirmation(t)
	ks := key.String()

	if err := env.engine.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := env.engine.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Дедлайн первой стадии истек, пока движок стоял
	env.engine.mu.Lock()
	env.engine.confirmations[ks].Deadline = time.Now().Add(-time.Minute)
	env.engine.mu.Unlock()

	if err := env.engine.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer env.engine.Stop()

	// Просроченная стадия разрешается как таймаут: отказ меньшей
	// стороны, переход ко второй стадии с новым таймером
	waitFor(t, "expired stage advanced", func() bool {
		env.engine.mu.RLock()
		pc := env.engine.confirmations[ks]
		env.engine.mu.RUnlock()
		return pc != nil && pc.State == models.AwaitingLarger
	})
	waitFor(t, "stage 2 timer armed after restart", func() bool {
		return env.engine.timers.Armed(timerConfirmation, ks)
	})
}

func TestResolveOrderPrefix(t *testing.T) {
	env, key := openTestConfirmation(t)

	tests := []struct {
		name   string
		prefix string
		found  bool
	}{
		{"bid prefix", "bid-abcd", true},
		{"offer prefix", "off-1234", true},
		{"unknown prefix", "zzzzzzzz", false},
		{"too short", "bid-a", false},
		{"too long", "bid-abcdef-00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, ok := env.engine.ResolveOrderPrefix(tt.prefix)
			if ok != tt.found {
				t.Fatalf("ResolveOrderPrefix(%q) found=%v, want %v", tt.prefix, ok, tt.found)
			}
			if ok && ks != key.String() {
				t.Errorf("resolved to %q, want %q", ks, key.String())
			}
		})
	}
}

func TestListSolicitationsFollowsStage(t *testing.T) {
	env, key := openTestConfirmation(t)

	// Первая стадия: ждем покупателя (меньшая сторона)
	if got := env.engine.ListSolicitations("buyer"); len(got) != 1 {
		t.Fatalf("expected 1 solicitation for buyer, got %d", len(got))
	}
	if got := env.engine.ListSolicitations("seller"); len(got) != 0 {
		t.Fatalf("seller should not be solicited yet, got %d", len(got))
	}

	if err := env.engine.handleConfirmationResponse(key.String(), false, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Вторая стадия: ждем продавца
	if got := env.engine.ListSolicitations("seller"); len(got) != 1 {
		t.Fatalf("expected 1 solicitation for seller, got %d", len(got))
	}
	if got := env.engine.ListSolicitations("buyer"); len(got) != 0 {
		t.Fatalf("buyer should no longer be solicited, got %d", len(got))
	}
}

func TestSecondaryMessageCarriesPrefixInstructions(t *testing.T) {
	env, _ := openTestConfirmation(t)

	waitFor(t, "secondary confirmation message", func() bool {
		return env.secondary.count() >= 1
	})

	env.secondary.mu.Lock()
	msg := env.secondary.sent[0]
	env.secondary.mu.Unlock()

	for _, want := range []string{"YES bid-abcd", "NO bid-abcd", "$10.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("secondary message missing %q: %s", want, msg)
		}
	}
}
