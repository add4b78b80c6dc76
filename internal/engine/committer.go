package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/pkg/utils"
)

// commitPair атомарно исполняет пару по цене оффера.
//
// Объем сделки - min(remaining) обеих сторон, комиссия считается
// от оборота. Успех транзакции хранилища - точка линеаризации:
// до нее никаких видимых изменений, после нее пост-коммитные
// эффекты (инвалидация кэша, проекция стакана, публикация события,
// уведомления) выполняются независимо и их сбои сделку не откатывают.
func (e *Engine) commitPair(bid, offer *models.Order) (*models.Trade, error) {
	amount := utils.MinInt64(bid.Remaining, offer.Remaining)
	price := offer.Price
	commission := utils.Commission(amount, price, e.commissionRate)

	trade, err := e.trades.CommitTrade(bid, offer, amount, price, commission)
	if err != nil {
		TradeCommitErrors.Inc()
		return nil, err
	}

	matchType := models.ClassifyMatch(bid.OriginalAmount, offer.OriginalAmount)
	TradesCommitted.WithLabelValues(string(matchType)).Inc()

	e.logger.Info("Trade committed",
		zap.String("trade_id", trade.ID),
		zap.String("asset", trade.Asset),
		zap.Int64("amount", amount),
		zap.String("price", price.StringFixed(2)),
		zap.String("commission", commission.StringFixed(2)),
		zap.String("match_type", string(matchType)))

	e.cache.Invalidate()

	bidAfter := localFill(bid, amount, offer.UserID)
	offerAfter := localFill(offer, amount, bid.UserID)

	// Пост-коммитный fan-out: каждая ветка независима
	go e.publishTrade(trade, bidAfter, offerAfter, matchType)
	go e.projection.RefreshOrderBook(trade.Asset)
	go e.notifyExecution(trade, bidAfter, offerAfter)

	return trade, nil
}

// localFill строит пост-коммитный снапшот ордера, зеркаля то,
// что транзакция сделала в хранилище
func localFill(order *models.Order, amount int64, counterparty string) *models.Order {
	after := order.Clone()
	after.Remaining -= amount
	if after.Remaining == 0 {
		after.Matched = true
		after.Status = models.OrderStatusMatched
		after.Counterparty = &counterparty
	}
	return after
}

// publishTrade публикует событие сделки в pub/sub топик
func (e *Engine) publishTrade(trade *models.Trade, bidAfter, offerAfter *models.Order, matchType models.MatchType) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := &models.TradeExecutedBroadcast{
		TradeID:           trade.ID,
		Asset:             trade.Asset,
		Price:             trade.Price,
		Amount:            trade.Amount,
		BuyerID:           trade.BuyerID,
		SellerID:          trade.SellerID,
		Timestamp:         trade.CreatedAt,
		BidFullyMatched:   bidAfter.Remaining == 0,
		OfferFullyMatched: offerAfter.Remaining == 0,
		BidOrderID:        trade.BuyerOrderID,
		OfferOrderID:      trade.SellerOrderID,
		MatchType:         matchType,
		PartialFill:       matchType != models.MatchFull,
	}

	if err := e.shared.PublishTrade(ctx, event); err != nil {
		e.logger.Warn("Failed to publish trade event",
			zap.String("trade_id", trade.ID),
			zap.Error(err))
	}
}
