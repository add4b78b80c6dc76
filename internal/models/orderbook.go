package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookLevel - одна заявка в проекции стакана
type OrderBookLevel struct {
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Remaining int64           `json:"remaining"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderBook - проекция стакана по активу: топ-10 бидов и офферов
// плюс суммарные итоги по каждой стороне
//
// Строится всегда напрямую из хранилища, минуя снапшот-кэш.
type OrderBook struct {
	Asset          string           `json:"asset"`
	Bids           []OrderBookLevel `json:"bids"`   // по убыванию цены
	Offers         []OrderBookLevel `json:"offers"` // по возрастанию цены
	TotalBidLots   int64            `json:"total_bid_lots"`
	TotalOfferLots int64            `json:"total_offer_lots"`
	BidCount       int              `json:"bid_count"`
	OfferCount     int              `json:"offer_count"`
	Timestamp      time.Time        `json:"timestamp"`
}
