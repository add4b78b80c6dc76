package models

import (
	"fmt"
	"strings"
	"time"
)

// Party - сторона пары с меньшим/большим объемом
type Party string

// Стороны подтверждения
const (
	PartyBuyer  Party = "BUYER"
	PartySeller Party = "SELLER"
)

// ConfirmationState - стадия двухшагового подтверждения количества
type ConfirmationState string

// Стадии подтверждения
const (
	// AwaitingSmaller - ждем ответа меньшей стороны (увеличить объем?)
	AwaitingSmaller ConfirmationState = "AWAITING_SMALLER"
	// AwaitingLarger - ждем ответа большей стороны (согласны на частичное исполнение?)
	AwaitingLarger ConfirmationState = "AWAITING_LARGER"
)

// ConfirmationKey однозначно идентифицирует подтверждение количества
// для пары ордеров: (актив, ордер покупки, ордер продажи)
type ConfirmationKey struct {
	Asset        string `json:"asset"`
	BidOrderID   string `json:"bid_order_id"`
	OfferOrderID string `json:"offer_order_id"`
}

// String сериализует ключ в строку "asset|bidID|offerID"
func (k ConfirmationKey) String() string {
	return k.Asset + "|" + k.BidOrderID + "|" + k.OfferOrderID
}

// ParseConfirmationKey разбирает строковое представление ключа
func ParseConfirmationKey(s string) (ConfirmationKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ConfirmationKey{}, fmt.Errorf("invalid confirmation key: %q", s)
	}
	return ConfirmationKey{Asset: parts[0], BidOrderID: parts[1], OfferOrderID: parts[2]}, nil
}

// PendingConfirmation - состояние подтверждения количества для пары
// ордеров с совпавшей ценой, но разными объемами
//
// Живет только в памяти процесса. Уничтожается при принятии,
// окончательном отказе или таймауте стадии AWAITING_LARGER.
type PendingConfirmation struct {
	Key          ConfirmationKey
	BidOrder     *Order // снапшот на момент создания
	OfferOrder   *Order
	SmallerParty Party
	SmallerQty   int64
	LargerQty    int64
	// AdditionalQty = LargerQty - SmallerQty, всегда > 0
	AdditionalQty   int64
	State           ConfirmationState
	SmallerResponse *bool // ответ меньшей стороны (nil = еще не отвечала)
	Deadline        time.Time
	CreatedAt       time.Time
}

// SmallerOrder возвращает ордер меньшей стороны
func (p *PendingConfirmation) SmallerOrder() *Order {
	if p.SmallerParty == PartyBuyer {
		return p.BidOrder
	}
	return p.OfferOrder
}

// LargerOrder возвращает ордер большей стороны
func (p *PendingConfirmation) LargerOrder() *Order {
	if p.SmallerParty == PartyBuyer {
		return p.OfferOrder
	}
	return p.BidOrder
}
