package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы событий realtime канала.
// Полезные нагрузки строго типизированы - никаких map[string]interface{}
// через границы компонентов.
const (
	EventNegotiationTurn     = "negotiation:your_turn"
	EventConfirmationRequest = "quantity:confirmation_request"
	EventPartialFillApproval = "quantity:partial_fill_approval"
	EventTradeExecuted       = "trade:executed"
	EventOrderMatched        = "order:matched" // legacy, только полный матч
	EventMarketUpdate        = "market:update"
	EventOrderBookUpdate     = "orderbook:update"
)

// NegotiationTurnEvent - адресное уведомление "ваша очередь улучшить цену"
type NegotiationTurnEvent struct {
	Asset             string          `json:"asset"`
	BestBid           decimal.Decimal `json:"best_bid"`
	BestOffer         decimal.Decimal `json:"best_offer"`
	BestBidUserID     string          `json:"best_bid_user_id"`
	BestOfferUserID   string          `json:"best_offer_user_id"`
	BestBidUsername   string          `json:"best_bid_username"`
	BestOfferUsername string          `json:"best_offer_username"`
	Turn              Side            `json:"turn"`
	Message           string          `json:"message"`
}

// ConfirmationRequestEvent - запрос меньшей стороне увеличить объем
type ConfirmationRequestEvent struct {
	ConfirmationKey      string          `json:"confirmation_key"`
	Asset                string          `json:"asset"`
	YourOrderID          string          `json:"your_order_id"`
	CounterpartyOrderID  string          `json:"counterparty_order_id"`
	YourQuantity         int64           `json:"your_quantity"`
	CounterpartyQuantity int64           `json:"counterparty_quantity"`
	AdditionalQuantity   int64           `json:"additional_quantity"`
	Price                decimal.Decimal `json:"price"`
	Side                 Side            `json:"side"`
	Message              string          `json:"message"`
}

// PartialFillApprovalEvent - запрос большей стороне согласиться
// на частичное исполнение
type PartialFillApprovalEvent struct {
	ConfirmationKey     string          `json:"confirmation_key"`
	Asset               string          `json:"asset"`
	YourOrderID         string          `json:"your_order_id"`
	CounterpartyOrderID string          `json:"counterparty_order_id"`
	YourQuantity        int64           `json:"your_quantity"`
	PartialFillQuantity int64           `json:"partial_fill_quantity"`
	Price               decimal.Decimal `json:"price"`
	Side                Side            `json:"side"`
	Message             string          `json:"message"`
}

// TradeExecutedEvent - адресное уведомление участника об исполнении
type TradeExecutedEvent struct {
	OrderID         string          `json:"order_id"`
	Asset           string          `json:"asset"`
	Price           decimal.Decimal `json:"price"`
	Amount          int64           `json:"amount"`
	TradeID         string          `json:"trade_id"`
	Side            Side            `json:"side"`
	IsFullyFilled   bool            `json:"is_fully_filled"`
	IsPartialFill   bool            `json:"is_partial_fill"`
	RemainingAmount int64           `json:"remaining_amount"`
	OriginalAmount  int64           `json:"original_amount"`
}

// OrderMatchedEvent - legacy уведомление о полном исполнении
// (та же форма без полей частичного исполнения)
type OrderMatchedEvent struct {
	OrderID string          `json:"order_id"`
	Asset   string          `json:"asset"`
	Price   decimal.Decimal `json:"price"`
	Amount  int64           `json:"amount"`
	TradeID string          `json:"trade_id"`
	Side    Side            `json:"side"`
}

// MarketUpdateEvent - широковещательное обновление рынка по активу
type MarketUpdateEvent struct {
	Asset     string          `json:"asset"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestOffer decimal.Decimal `json:"best_offer"`
	Message   string          `json:"message"`
}

// TradeExecutedBroadcast - событие сделки для pub/sub топика trade:executed
type TradeExecutedBroadcast struct {
	TradeID           string          `json:"trade_id"`
	Asset             string          `json:"asset"`
	Price             decimal.Decimal `json:"price"`
	Amount            int64           `json:"amount"`
	BuyerID           string          `json:"buyer_id"`
	SellerID          string          `json:"seller_id"`
	Timestamp         time.Time       `json:"timestamp"`
	BidFullyMatched   bool            `json:"bid_fully_matched"`
	OfferFullyMatched bool            `json:"offer_fully_matched"`
	BidOrderID        string          `json:"bid_order_id"`
	OfferOrderID      string          `json:"offer_order_id"`
	MatchType         MatchType       `json:"match_type"`
	PartialFill       bool            `json:"partial_fill"` // всегда (MatchType != FULL_MATCH)
}
