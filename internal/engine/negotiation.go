package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lotmarket/internal/models"
)

// ============================================================
// Переговоры по улучшению цены
// ============================================================

// driveNegotiation сверяет состояние переговоров актива с текущей
// вершиной стакана.
//
// Конвенция хода: отвечает та сторона, которая только что не
// двигалась. Новый лучший бид - очередь оффера, новый лучший
// оффер - очередь бида. Если вершина не изменилась, состояние
// не трогаем и даем таймеру дотикать.
func (e *Engine) driveNegotiation(asset string, bestBid, bestOffer *models.Order) {
	e.mu.RLock()
	state := e.negotiations[asset]
	e.mu.RUnlock()

	if state == nil {
		state = &models.NegotiationState{
			Asset:     asset,
			BestBid:   bestBid.Clone(),
			BestOffer: bestOffer.Clone(),
			Turn:      models.SideOffer,
			Deadline:  time.Now().Add(e.cfg.NegotiationTTL),
		}

		e.mu.Lock()
		e.negotiations[asset] = state
		e.mu.Unlock()

		e.timers.Arm(timerNegotiation, asset, e.cfg.NegotiationTTL)
		NegotiationsStarted.Inc()

		e.logger.Info("Negotiation started",
			zap.String("asset", asset),
			zap.String("best_bid", bestBid.Price.String()),
			zap.String("best_offer", bestOffer.Price.String()),
			zap.String("turn", string(state.Turn)))

		e.notifyNegotiationTurn(state)
		return
	}

	switch {
	case state.BestBid.ID != bestBid.ID:
		e.replaceNegotiationTop(state, bestBid, bestOffer, models.SideOffer)
	case state.BestOffer.ID != bestOffer.ID:
		e.replaceNegotiationTop(state, bestBid, bestOffer, models.SideBid)
	}
}

// replaceNegotiationTop обновляет снапшоты вершины стакана, передает
// ход и заново уведомляет
func (e *Engine) replaceNegotiationTop(state *models.NegotiationState, bestBid, bestOffer *models.Order, turn models.Side) {
	e.mu.Lock()
	state.BestBid = bestBid.Clone()
	state.BestOffer = bestOffer.Clone()
	state.Turn = turn
	state.Deadline = time.Now().Add(e.cfg.NegotiationTTL)
	state.Rev++
	e.mu.Unlock()

	e.timers.Arm(timerNegotiation, state.Asset, e.cfg.NegotiationTTL)

	e.logger.Info("Negotiation top of book changed",
		zap.String("asset", state.Asset),
		zap.String("turn", string(turn)))

	e.notifyNegotiationTurn(state)
}

// handleNegotiationResponse обрабатывает ответ пользователя.
//
// Легитимен только ответ стороны, чья сейчас очередь; остальные
// игнорируются. Ответ по активу без переговоров игнорируется.
func (e *Engine) handleNegotiationResponse(asset, userID string, improved bool, newPrice *decimal.Decimal) error {
	e.mu.RLock()
	state := e.negotiations[asset]
	e.mu.RUnlock()

	if state == nil {
		e.logger.Debug("Negotiation response for idle asset ignored",
			zap.String("asset", asset),
			zap.String("user_id", userID))
		return nil
	}

	if state.TurnUserID() != userID {
		e.logger.Debug("Negotiation response from wrong side ignored",
			zap.String("asset", asset),
			zap.String("user_id", userID),
			zap.String("turn", string(state.Turn)))
		return nil
	}

	if !improved {
		e.closeNegotiation(state)
		return nil
	}

	if newPrice == nil {
		// "Улучшу позже": передаем ход без изменения цены
		e.toggleNegotiationTurn(state)
		return nil
	}

	return e.applyPriceImprovement(state, *newPrice)
}

// applyPriceImprovement записывает новую цену ордера и пересматривает
// актив. Пересмотр может закончиться совпадением цен (коммит или
// подтверждение количества) - тогда переговоры уже уничтожены.
// "Улучшение" в худшую сторону может сместить ордер с вершины
// стакана - тогда пересмотр уже заменил снапшоты и передал ход
// (Rev вырос), и здесь состояние не трогаем. Только если снапшоты
// пережили пересмотр нетронутыми, цена записывается и ход переходит
// другой стороне.
func (e *Engine) applyPriceImprovement(state *models.NegotiationState, newPrice decimal.Decimal) error {
	asset := state.Asset
	turnOrder := state.TurnOrder()
	rev := state.Rev

	if newPrice.Sign() <= 0 {
		return fmt.Errorf("improved price must be positive, got %s", newPrice)
	}

	if err := e.orders.UpdatePrice(turnOrder.ID, newPrice); err != nil {
		return fmt.Errorf("failed to update price of order %s: %w", turnOrder.ID, err)
	}

	e.logger.Info("Negotiation price improved",
		zap.String("asset", asset),
		zap.String("order_id", turnOrder.ID),
		zap.String("new_price", newPrice.String()))

	e.cache.Invalidate()

	orders, err := e.orders.FindActiveByAsset(asset)
	if err != nil {
		return fmt.Errorf("failed to reload asset %s: %w", asset, err)
	}
	e.decideAsset(asset, orders)

	e.mu.RLock()
	survived := e.negotiations[asset] == state && state.Rev == rev
	e.mu.RUnlock()

	if survived {
		e.mu.Lock()
		if state.Turn == models.SideBid {
			state.BestBid.Price = newPrice
		} else {
			state.BestOffer.Price = newPrice
		}
		e.mu.Unlock()
		e.toggleNegotiationTurn(state)
	}
	return nil
}

// toggleNegotiationTurn передает ход другой стороне и заново уведомляет
func (e *Engine) toggleNegotiationTurn(state *models.NegotiationState) {
	e.mu.Lock()
	state.Turn = state.Turn.Opposite()
	state.Deadline = time.Now().Add(e.cfg.NegotiationTTL)
	e.mu.Unlock()

	e.timers.Arm(timerNegotiation, state.Asset, e.cfg.NegotiationTTL)
	e.notifyNegotiationTurn(state)
}

// negotiationTimeout - сторона не ответила за отведенное время;
// эквивалент "pass"
func (e *Engine) negotiationTimeout(asset string) {
	e.mu.RLock()
	state := e.negotiations[asset]
	e.mu.RUnlock()

	if state == nil {
		return
	}

	e.logger.Info("Negotiation timed out",
		zap.String("asset", asset),
		zap.String("turn", string(state.Turn)))

	e.closeNegotiation(state)
}

// closeNegotiation завершает переговоры: широковещательное обновление
// рынка и снятие состояния
func (e *Engine) closeNegotiation(state *models.NegotiationState) {
	e.realtime.Broadcast(models.EventMarketUpdate, &models.MarketUpdateEvent{
		Asset:     state.Asset,
		BestBid:   state.BestBid.Price,
		BestOffer: state.BestOffer.Price,
		Message: fmt.Sprintf("%s: bid %s / offer %s",
			state.Asset, state.BestBid.Price.StringFixed(2), state.BestOffer.Price.StringFixed(2)),
	})

	e.dropNegotiation(state.Asset)
}

// dropNegotiation молча снимает состояние переговоров и таймер
func (e *Engine) dropNegotiation(asset string) {
	e.mu.Lock()
	_, existed := e.negotiations[asset]
	delete(e.negotiations, asset)
	e.mu.Unlock()

	if existed {
		e.timers.Cancel(timerNegotiation, asset)
	}
}
