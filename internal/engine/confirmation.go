package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/pkg/utils"
)

// handleTimerFired - диспетчер таймаутов. Работает в домене
// сериализации; позднее срабатывание не находит состояния и
// завершается no-op внутри обработчика.
func (e *Engine) handleTimerFired(ref timerRef) {
	switch ref.kind {
	case timerConfirmation:
		e.logger.Info("Confirmation stage timed out",
			zap.String("confirmation_key", ref.id))
		if err := e.handleConfirmationResponse(ref.id, false, nil); err != nil {
			e.logger.Error("Failed to process confirmation timeout",
				zap.String("confirmation_key", ref.id),
				zap.Error(err))
		}
	case timerNegotiation:
		e.negotiationTimeout(ref.id)
	}
}

// ============================================================
// Подтверждение количества
// ============================================================

// openConfirmation открывает подтверждение количества для пары
// с совпавшей ценой и разными объемами.
//
// Пара, отклоненная ранее в этом процессе, не переоткрывается.
// Уже открытое подтверждение не дублируется.
func (e *Engine) openConfirmation(asset string, bid, offer *models.Order) {
	key := models.ConfirmationKey{Asset: asset, BidOrderID: bid.ID, OfferOrderID: offer.ID}
	ks := key.String()

	e.mu.RLock()
	_, wasDeclined := e.declined[ks]
	_, exists := e.confirmations[ks]
	e.mu.RUnlock()

	if wasDeclined || exists {
		return
	}

	smallerParty := models.PartyBuyer
	smallerQty, largerQty := bid.Remaining, offer.Remaining
	if bid.Remaining > offer.Remaining {
		smallerParty = models.PartySeller
		smallerQty, largerQty = offer.Remaining, bid.Remaining
	}

	now := time.Now()
	pc := &models.PendingConfirmation{
		Key:           key,
		BidOrder:      bid.Clone(),
		OfferOrder:    offer.Clone(),
		SmallerParty:  smallerParty,
		SmallerQty:    smallerQty,
		LargerQty:     largerQty,
		AdditionalQty: largerQty - smallerQty,
		State:         models.AwaitingSmaller,
		Deadline:      now.Add(e.cfg.ConfirmationTTL),
		CreatedAt:     now,
	}

	e.mu.Lock()
	e.confirmations[ks] = pc
	e.mu.Unlock()

	e.timers.Arm(timerConfirmation, ks, e.cfg.ConfirmationTTL)
	ConfirmationsOpened.Inc()

	e.logger.Info("Quantity confirmation opened",
		zap.String("confirmation_key", ks),
		zap.String("smaller_party", string(smallerParty)),
		zap.Int64("smaller_qty", smallerQty),
		zap.Int64("larger_qty", largerQty))

	e.notifyConfirmationRequest(pc)
}

// handleConfirmationResponse обрабатывает ответ (или таймаут,
// эквивалентный отказу) текущей стадии подтверждения.
//
// Ответ по неизвестному или уже разрешенному ключу молча игнорируется.
func (e *Engine) handleConfirmationResponse(ks string, accepted bool, newQuantity *int64) error {
	e.mu.RLock()
	pc, ok := e.confirmations[ks]
	e.mu.RUnlock()

	if !ok {
		e.logger.Debug("Response for unknown confirmation ignored",
			zap.String("confirmation_key", ks))
		return nil
	}

	switch pc.State {
	case models.AwaitingSmaller:
		if accepted {
			return e.acceptUpsize(pc, newQuantity)
		}
		e.advanceToLarger(pc)
		return nil

	case models.AwaitingLarger:
		if accepted {
			return e.acceptPartialFill(pc)
		}
		e.declinePair(pc)
		return nil
	}

	return fmt.Errorf("confirmation %s in unexpected state %s", ks, pc.State)
}

// acceptUpsize - меньшая сторона согласилась увеличить объем.
//
// Без явного нового количества объем поднимается до объема большей
// стороны (ответ YES по вторичному каналу). Ордер обновляется в
// хранилище, обе стороны перечитываются и коммит идет по свежим
// снапшотам, не по тем, что лежали в подтверждении.
func (e *Engine) acceptUpsize(pc *models.PendingConfirmation, newQuantity *int64) error {
	ks := pc.Key.String()

	newQty := pc.LargerQty
	if newQuantity != nil {
		if *newQuantity < pc.SmallerQty {
			return fmt.Errorf("new quantity %d is below current %d", *newQuantity, pc.SmallerQty)
		}
		newQty = *newQuantity
	}

	if err := e.orders.UpdateAmount(pc.SmallerOrder().ID, newQty); err != nil {
		return fmt.Errorf("failed to upsize order %s: %w", pc.SmallerOrder().ID, err)
	}

	bid, offer, err := e.reloadPair(pc)
	if err != nil {
		return err
	}

	e.removeConfirmation(ks)

	e.logger.Info("Smaller party upsized, committing",
		zap.String("confirmation_key", ks),
		zap.Int64("new_quantity", newQty))

	if _, err := e.commitPair(bid, offer); err != nil {
		return fmt.Errorf("failed to commit after upsize: %w", err)
	}
	return nil
}

// advanceToLarger - меньшая сторона отказалась (или промолчала);
// спрашиваем большую сторону про частичное исполнение
func (e *Engine) advanceToLarger(pc *models.PendingConfirmation) {
	ks := pc.Key.String()
	declinedFlag := false

	e.mu.Lock()
	pc.SmallerResponse = &declinedFlag
	pc.State = models.AwaitingLarger
	pc.Deadline = time.Now().Add(e.cfg.ConfirmationTTL)
	e.mu.Unlock()

	e.timers.Arm(timerConfirmation, ks, e.cfg.ConfirmationTTL)

	e.logger.Info("Smaller party declined, asking larger party for partial fill",
		zap.String("confirmation_key", ks),
		zap.Int64("partial_qty", pc.SmallerQty))

	e.notifyPartialFillApproval(pc)
}

// acceptPartialFill - большая сторона согласилась на частичное
// исполнение; коммит по min(remaining) обеих сторон
func (e *Engine) acceptPartialFill(pc *models.PendingConfirmation) error {
	ks := pc.Key.String()

	bid, offer, err := e.reloadPair(pc)
	if err != nil {
		return err
	}

	e.removeConfirmation(ks)

	e.logger.Info("Larger party accepted partial fill, committing",
		zap.String("confirmation_key", ks),
		zap.Int64("amount", utils.MinInt64(bid.Remaining, offer.Remaining)))

	if _, err := e.commitPair(bid, offer); err != nil {
		return fmt.Errorf("failed to commit partial fill: %w", err)
	}
	return nil
}

// declinePair - обе стороны отказались: пара попадает в список
// отклоненных и не переоткрывается до перезапуска процесса
func (e *Engine) declinePair(pc *models.PendingConfirmation) {
	ks := pc.Key.String()

	e.mu.Lock()
	e.declined[ks] = struct{}{}
	delete(e.confirmations, ks)
	e.mu.Unlock()

	e.timers.Cancel(timerConfirmation, ks)
	ConfirmationsDeclined.Inc()

	e.logger.Info("Pair declined by both parties",
		zap.String("confirmation_key", ks))
}

// removeConfirmation снимает подтверждение и его таймер
func (e *Engine) removeConfirmation(ks string) {
	e.mu.Lock()
	delete(e.confirmations, ks)
	e.mu.Unlock()

	e.timers.Cancel(timerConfirmation, ks)
}

// reloadPair перечитывает оба ордера пары из хранилища
func (e *Engine) reloadPair(pc *models.PendingConfirmation) (bid, offer *models.Order, err error) {
	bid, err = e.orders.GetByID(pc.Key.BidOrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload bid %s: %w", pc.Key.BidOrderID, err)
	}
	offer, err = e.orders.GetByID(pc.Key.OfferOrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload offer %s: %w", pc.Key.OfferOrderID, err)
	}
	return bid, offer, nil
}

// ============================================================
// Поиск подтверждений для ответов по вторичному каналу
// ============================================================

// ResolveOrderPrefix находит подтверждение по 8-символьному префиксу
// ID любого из двух ордеров пары. Возвращает строковый ключ
// подтверждения.
func (e *Engine) ResolveOrderPrefix(prefix string) (string, bool) {
	if len(prefix) != utils.OrderIDPrefixLen {
		return "", false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for ks, pc := range e.confirmations {
		if strings.HasPrefix(pc.Key.BidOrderID, prefix) ||
			strings.HasPrefix(pc.Key.OfferOrderID, prefix) {
			return ks, true
		}
	}
	return "", false
}

// ListSolicitations возвращает подтверждения, в которых сейчас
// ожидается ответ указанного пользователя
func (e *Engine) ListSolicitations(userID string) []*models.PendingConfirmation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var result []*models.PendingConfirmation
	for _, pc := range e.confirmations {
		solicited := pc.SmallerOrder().UserID
		if pc.State == models.AwaitingLarger {
			solicited = pc.LargerOrder().UserID
		}
		if solicited == userID {
			cp := *pc
			result = append(result, &cp)
		}
	}
	return result
}
