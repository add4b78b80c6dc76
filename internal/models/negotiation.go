package models

import "time"

// NegotiationState - состояние переговоров по улучшению цены для актива
//
// Существует только пока лучший бид ниже лучшего оффера.
// На каждый актив не более одного состояния. Живет в памяти процесса,
// уничтожается по таймауту, по "pass" или когда пара переходит
// в подтверждение количества.
type NegotiationState struct {
	Asset     string
	BestBid   *Order // снапшоты на момент последнего обновления
	BestOffer *Order
	Turn      Side // чья очередь улучшать цену
	Deadline  time.Time
	Rev       int // растет при каждой замене вершины стакана
}

// TurnUserID возвращает пользователя, чья сейчас очередь отвечать
func (n *NegotiationState) TurnUserID() string {
	if n.Turn == SideBid {
		return n.BestBid.UserID
	}
	return n.BestOffer.UserID
}

// TurnOrder возвращает ордер стороны, чья сейчас очередь
func (n *NegotiationState) TurnOrder() *Order {
	if n.Turn == SideBid {
		return n.BestBid
	}
	return n.BestOffer
}
