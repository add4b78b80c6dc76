package websocket

import (
	"time"
)

// Envelope - стандартный конверт всех WebSocket сообщений.
//
// Тип сообщения совпадает с константами событий из internal/models:
// negotiation:your_turn, quantity:confirmation_request,
// quantity:partial_fill_approval, trade:executed, order:matched,
// market:update, orderbook:update.
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
