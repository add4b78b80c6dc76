package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side - сторона ордера
type Side string

// Стороны ордера
const (
	SideBid   Side = "BID"   // заявка на покупку
	SideOffer Side = "OFFER" // заявка на продажу
)

// Opposite возвращает противоположную сторону
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideOffer
	}
	return SideBid
}

// Order представляет заявку на покупку или продажу лотов актива
//
// Создается вне ядра (модуль приема ордеров).
// Ядро изменяет только remaining/matched/status (через Committer)
// и original_amount (при увеличении объема в подтверждении количества).
type Order struct {
	ID             string          `json:"id" db:"id"`
	Side           Side            `json:"side" db:"side"`                       // BID, OFFER
	Asset          string          `json:"asset" db:"asset"`                     // идентификатор актива
	Price          decimal.Decimal `json:"price" db:"price"`                     // цена за лот, 2 знака
	OriginalAmount int64           `json:"original_amount" db:"original_amount"` // исходный объем в лотах
	Remaining      int64           `json:"remaining" db:"remaining"`             // оставшийся объем в лотах
	Matched        bool            `json:"matched" db:"matched"`
	Status         string          `json:"status" db:"status"` // ACTIVE, MATCHED, CANCELLED, EXPIRED
	UserID         string          `json:"user_id" db:"user_id"`
	Counterparty   *string         `json:"counterparty,omitempty" db:"counterparty"` // userID второй стороны после полного исполнения
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Статусы ордера
const (
	OrderStatusActive    = "ACTIVE"
	OrderStatusMatched   = "MATCHED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusExpired   = "EXPIRED"
)

// IsActive возвращает true, если ордер участвует в матчинге
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusActive && o.Remaining > 0
}

// Clone возвращает независимую копию ордера.
// Снапшоты в движке никогда не мутируются на месте, только заменяются.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Counterparty != nil {
		c := *o.Counterparty
		cp.Counterparty = &c
	}
	return &cp
}
