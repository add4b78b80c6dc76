package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lotmarket/internal/models"
	"lotmarket/pkg/utils"
)

// maybeSendAdvisories рассылает информационные уведомления о
// конкурентных ценах, когда лучший бид ниже лучшего оффера.
//
// Только вторичный канал, только при спреде в пределах порога:
// широкий спред означает, что стороны далеки и дергать их рано.
// Advisory ничего не меняет в ордерах и состоянии движка.
// Повторная рассылка по активу сдерживается минимальным интервалом,
// иначе пользователей заваливало бы каждым проходом.
func (e *Engine) maybeSendAdvisories(asset string, bestBid, bestOffer *models.Order) {
	spreadPct := utils.SpreadPct(bestBid.Price, bestOffer.Price)
	if spreadPct.Sign() <= 0 ||
		spreadPct.GreaterThan(decimal.NewFromFloat(e.cfg.AdvisoryMaxSpreadPct)) {
		return
	}

	e.mu.RLock()
	last := e.advisorySent[asset]
	e.mu.RUnlock()

	if e.cfg.AdvisoryMinGap > 0 && time.Since(last) < e.cfg.AdvisoryMinGap {
		return
	}

	e.mu.Lock()
	e.advisorySent[asset] = time.Now()
	e.mu.Unlock()

	AdvisoriesSent.Inc()

	spread := bestOffer.Price.Sub(bestBid.Price)

	e.sendSecondaryTo(bestBid.UserID, fmt.Sprintf(
		"%s: your bid of %d lots at %s is below the best offer %s (spread %s, %s%%). A small improvement could trade.",
		asset, bestBid.Remaining,
		utils.FormatMoney(bestBid.Price), utils.FormatMoney(bestOffer.Price),
		utils.FormatMoney(spread), spreadPct.StringFixed(1)))

	e.sendSecondaryTo(bestOffer.UserID, fmt.Sprintf(
		"%s: your offer of %d lots at %s is above the best bid %s (spread %s, %s%%). A small improvement could trade.",
		asset, bestOffer.Remaining,
		utils.FormatMoney(bestOffer.Price), utils.FormatMoney(bestBid.Price),
		utils.FormatMoney(spread), spreadPct.StringFixed(1)))
}
