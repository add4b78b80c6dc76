package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade представляет исполненную сделку между двумя ордерами
//
// Создается Committer'ом в одной транзакции с обновлением обоих
// ордеров, после создания неизменяема.
type Trade struct {
	ID            string          `json:"id" db:"id"`
	Asset         string          `json:"asset" db:"asset"`
	Price         decimal.Decimal `json:"price" db:"price"`   // всегда цена оффера
	Amount        int64           `json:"amount" db:"amount"` // лоты, > 0
	BuyerOrderID  string          `json:"buyer_order_id" db:"buyer_order_id"`
	SellerOrderID string          `json:"seller_order_id" db:"seller_order_id"`
	BuyerID       string          `json:"buyer_id" db:"buyer_id"`
	SellerID      string          `json:"seller_id" db:"seller_id"`
	Commission    decimal.Decimal `json:"commission" db:"commission"` // 2 знака
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// MatchType - классификация сделки по соотношению исходных объемов
type MatchType string

// Типы матча
const (
	MatchFull          MatchType = "FULL_MATCH"          // исходные объемы равны
	MatchPartialBuyer  MatchType = "PARTIAL_FILL_BUYER"  // объем покупателя меньше
	MatchPartialSeller MatchType = "PARTIAL_FILL_SELLER" // объем продавца меньше
)

// ClassifyMatch определяет тип матча по исходным объемам ордеров
func ClassifyMatch(bidOriginal, offerOriginal int64) MatchType {
	switch {
	case bidOriginal < offerOriginal:
		return MatchPartialBuyer
	case bidOriginal > offerOriginal:
		return MatchPartialSeller
	default:
		return MatchFull
	}
}
