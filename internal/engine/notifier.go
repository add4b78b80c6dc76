package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/pkg/utils"
)

// notifier.go - построение и отправка уведомлений протоколов.
//
// Realtime канал fire-and-forget, вторичный канал уходит в отдельной
// горутине и никогда не блокирует домен сериализации. Сбой любой
// доставки логируется и не влияет на состояние движка.

// notifyConfirmationRequest уведомляет меньшую сторону: цена совпала,
// объемов не хватает - готовы ли увеличить?
func (e *Engine) notifyConfirmationRequest(pc *models.PendingConfirmation) {
	smaller := pc.SmallerOrder()
	larger := pc.LargerOrder()
	price := pc.OfferOrder.Price
	prefix := utils.OrderIDPrefix(smaller.ID)

	e.realtime.SendToUser(smaller.UserID, models.EventConfirmationRequest, &models.ConfirmationRequestEvent{
		ConfirmationKey:      pc.Key.String(),
		Asset:                pc.Key.Asset,
		YourOrderID:          smaller.ID,
		CounterpartyOrderID:  larger.ID,
		YourQuantity:         pc.SmallerQty,
		CounterpartyQuantity: pc.LargerQty,
		AdditionalQuantity:   pc.AdditionalQty,
		Price:                price,
		Side:                 smaller.Side,
		Message: fmt.Sprintf("Counterparty has %d lots at %s; you have %d. Add %d more lots to trade in full?",
			pc.LargerQty, utils.FormatMoney(price), pc.SmallerQty, pc.AdditionalQty),
	})

	e.sendSecondaryTo(smaller.UserID, fmt.Sprintf(
		"%s: your %s for %d lots at %s matched a %s for %d lots. Add %d more lots? Reply YES %s to increase or NO %s to decline.",
		pc.Key.Asset, smaller.Side, pc.SmallerQty, utils.FormatMoney(price),
		larger.Side, pc.LargerQty, pc.AdditionalQty, prefix, prefix))
}

// notifyPartialFillApproval уведомляет большую сторону: меньшая
// отказалась увеличивать, согласны ли на частичное исполнение?
func (e *Engine) notifyPartialFillApproval(pc *models.PendingConfirmation) {
	smaller := pc.SmallerOrder()
	larger := pc.LargerOrder()
	price := pc.OfferOrder.Price
	prefix := utils.OrderIDPrefix(larger.ID)

	e.realtime.SendToUser(larger.UserID, models.EventPartialFillApproval, &models.PartialFillApprovalEvent{
		ConfirmationKey:     pc.Key.String(),
		Asset:               pc.Key.Asset,
		YourOrderID:         larger.ID,
		CounterpartyOrderID: smaller.ID,
		YourQuantity:        pc.LargerQty,
		PartialFillQuantity: pc.SmallerQty,
		Price:               price,
		Side:                larger.Side,
		Message: fmt.Sprintf("Counterparty can only trade %d of your %d lots at %s. Accept a partial fill?",
			pc.SmallerQty, pc.LargerQty, utils.FormatMoney(price)),
	})

	e.sendSecondaryTo(larger.UserID, fmt.Sprintf(
		"%s: counterparty can take %d of your %d lots at %s. Accept partial fill? Reply YES %s to accept or NO %s to decline.",
		pc.Key.Asset, pc.SmallerQty, pc.LargerQty, utils.FormatMoney(price), prefix, prefix))
}

// notifyNegotiationTurn уведомляет сторону, чья очередь улучшать цену
func (e *Engine) notifyNegotiationTurn(state *models.NegotiationState) {
	bidUser := e.lookupUser(state.BestBid.UserID)
	offerUser := e.lookupUser(state.BestOffer.UserID)

	e.realtime.SendToUser(state.TurnUserID(), models.EventNegotiationTurn, &models.NegotiationTurnEvent{
		Asset:             state.Asset,
		BestBid:           state.BestBid.Price,
		BestOffer:         state.BestOffer.Price,
		BestBidUserID:     state.BestBid.UserID,
		BestOfferUserID:   state.BestOffer.UserID,
		BestBidUsername:   bidUser.Username,
		BestOfferUsername: offerUser.Username,
		Turn:              state.Turn,
		Message: fmt.Sprintf("%s: bid %s / offer %s. Your turn to improve the price or pass.",
			state.Asset, utils.FormatMoney(state.BestBid.Price), utils.FormatMoney(state.BestOffer.Price)),
	})
}

// notifyExecution уведомляет обе стороны об исполнении сделки
func (e *Engine) notifyExecution(trade *models.Trade, bidAfter, offerAfter *models.Order) {
	e.notifySideExecution(trade, bidAfter)
	e.notifySideExecution(trade, offerAfter)
}

func (e *Engine) notifySideExecution(trade *models.Trade, order *models.Order) {
	fully := order.Remaining == 0

	e.realtime.SendToUser(order.UserID, models.EventTradeExecuted, &models.TradeExecutedEvent{
		OrderID:         order.ID,
		Asset:           trade.Asset,
		Price:           trade.Price,
		Amount:          trade.Amount,
		TradeID:         trade.ID,
		Side:            order.Side,
		IsFullyFilled:   fully,
		IsPartialFill:   !fully,
		RemainingAmount: order.Remaining,
		OriginalAmount:  order.OriginalAmount,
	})

	// Legacy-событие для клиентов, знающих только полный матч
	if fully {
		e.realtime.SendToUser(order.UserID, models.EventOrderMatched, &models.OrderMatchedEvent{
			OrderID: order.ID,
			Asset:   trade.Asset,
			Price:   trade.Price,
			Amount:  trade.Amount,
			TradeID: trade.ID,
			Side:    order.Side,
		})
	}

	total := trade.Price.Mul(decimal.NewFromInt(trade.Amount))
	text := fmt.Sprintf("Trade executed: %d lots of %s at %s (total %s).",
		trade.Amount, trade.Asset, utils.FormatMoney(trade.Price), utils.FormatMoney(total))
	if !fully {
		text += fmt.Sprintf(" Your order has %d lots remaining.", order.Remaining)
	}
	e.sendSecondaryTo(order.UserID, text)
}

// sendSecondaryTo отправляет текст на адрес пользователя во вторичном
// канале. Отсутствие адреса не ошибка - realtime путь независим.
func (e *Engine) sendSecondaryTo(userID, text string) {
	user := e.lookupUser(userID)
	if user.SecondaryAddress == "" {
		e.logger.Debug("User has no secondary address, skipping",
			zap.String("user_id", userID))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := e.secondary.Send(ctx, user.SecondaryAddress, text); err != nil {
			e.logger.Warn("Secondary channel delivery failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}()
}

// lookupUser читает пользователя; при сбое возвращает пустую запись,
// чтобы уведомления деградировали, а не падали
func (e *Engine) lookupUser(userID string) *models.User {
	user, err := e.users.GetByID(userID)
	if err != nil {
		e.logger.Warn("Failed to load user for notification",
			zap.String("user_id", userID),
			zap.Error(err))
		return &models.User{ID: userID}
	}
	return user
}
