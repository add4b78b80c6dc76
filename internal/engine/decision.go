package engine

import (
	"go.uber.org/zap"

	"lotmarket/internal/models"
)

// decideAsset - решение по одному активу.
//
// Выбирает лучший бид и лучший оффер, затем:
//   - цены равны: немедленный коммит при равных объемах, иначе
//     подтверждение количества;
//   - бид ниже оффера: advisory о конкурентных ценах и переговоры;
//   - бид выше оффера (пересекшийся стакан, в норме невозможен):
//     коммит по цене оффера.
//
// Вызывается только из домена сериализации.
func (e *Engine) decideAsset(asset string, orders []*models.Order) {
	bids, offers := splitSides(orders)
	if len(bids) == 0 || len(offers) == 0 {
		// Одна из сторон опустела - переговоры по активу больше
		// не имеют предмета
		e.dropNegotiation(asset)
		return
	}

	bestBid := bestOf(bids, models.SideBid)
	bestOffer := bestOf(offers, models.SideOffer)

	cmp := bestBid.Price.Cmp(bestOffer.Price)
	switch {
	case cmp < 0:
		e.maybeSendAdvisories(asset, bestBid, bestOffer)
		e.driveNegotiation(asset, bestBid, bestOffer)

	default:
		// Равные цены или пересекшийся стакан. Пересечение лечится
		// так же: пассивный ордер задает цену сделки
		if cmp > 0 {
			e.logger.Warn("Crossing book observed, committing at offer price",
				zap.String("asset", asset),
				zap.String("bid_price", bestBid.Price.String()),
				zap.String("offer_price", bestOffer.Price.String()))
		}

		// Пара дошла до совпадения цен - переговоры по активу
		// завершены, дальше решает протокол количества
		e.dropNegotiation(asset)

		if bestBid.Remaining == bestOffer.Remaining {
			if _, err := e.commitPair(bestBid, bestOffer); err != nil {
				e.logger.Error("Failed to commit exact match",
					zap.String("asset", asset),
					zap.String("bid_id", bestBid.ID),
					zap.String("offer_id", bestOffer.ID),
					zap.Error(err))
			}
			return
		}

		e.openConfirmation(asset, bestBid, bestOffer)
	}
}

// splitSides делит ордера актива на биды и офферы
func splitSides(orders []*models.Order) (bids, offers []*models.Order) {
	for _, order := range orders {
		if order.Side == models.SideBid {
			bids = append(bids, order)
		} else {
			offers = append(offers, order)
		}
	}
	return bids, offers
}

// bestOf выбирает лучший ордер стороны: максимальная цена для бидов,
// минимальная для офферов, при равенстве - более ранний createdAt
func bestOf(orders []*models.Order, side models.Side) *models.Order {
	best := orders[0]
	for _, order := range orders[1:] {
		cmp := order.Price.Cmp(best.Price)
		better := false
		switch {
		case side == models.SideBid && cmp > 0:
			better = true
		case side == models.SideOffer && cmp < 0:
			better = true
		case cmp == 0 && order.CreatedAt.Before(best.CreatedAt):
			better = true
		}
		if better {
			best = order
		}
	}
	return best
}
