package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ядра матчинга
// ============================================================

// ============ Цикл матчинга ============

// TicksTotal - количество проходов матчинга
var TicksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "ticks_total",
		Help:      "Total number of matching passes",
	},
)

// TicksSkipped - тики, пропущенные из-за незавершенного прохода
var TicksSkipped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "ticks_skipped_total",
		Help:      "Number of ticks skipped because the previous pass was still running",
	},
)

// TickDuration - длительность прохода матчинга
var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full matching pass",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
	},
)

// AssetErrors - ошибки и паники при обработке активов
var AssetErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "asset_errors_total",
		Help:      "Errors caught at the asset boundary",
	},
	[]string{"asset"},
)

// ============ Снапшот-кэш ============

// SnapshotRefreshes - успешные обновления снапшота
var SnapshotRefreshes = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "snapshot_refreshes_total",
		Help:      "Successful snapshot cache refreshes",
	},
)

// SnapshotErrors - сбои обновления (выдан устаревший снапшот)
var SnapshotErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "snapshot_errors_total",
		Help:      "Snapshot refresh failures, stale data served",
	},
)

// ============ Сделки ============

// TradesCommitted - исполненные сделки по типам матча
var TradesCommitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "trades_committed_total",
		Help:      "Committed trades by match type",
	},
	[]string{"match_type"}, // FULL_MATCH, PARTIAL_FILL_BUYER, PARTIAL_FILL_SELLER
)

// TradeCommitErrors - откаты транзакции коммита
var TradeCommitErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "trade_commit_errors_total",
		Help:      "Aborted trade commit transactions",
	},
)

// ============ Протоколы ============

// ConfirmationsOpened - открытые подтверждения количества
var ConfirmationsOpened = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "confirmations_opened_total",
		Help:      "Quantity confirmations opened",
	},
)

// ConfirmationsDeclined - пары, отклоненные обеими сторонами
var ConfirmationsDeclined = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "confirmations_declined_total",
		Help:      "Pairs declined by both parties",
	},
)

// NegotiationsStarted - начатые переговоры по цене
var NegotiationsStarted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "negotiations_started_total",
		Help:      "Price negotiations started",
	},
)

// AdvisoriesSent - разосланные advisory о конкурентных ценах
var AdvisoriesSent = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lotmarket",
		Subsystem: "matching",
		Name:      "advisories_sent_total",
		Help:      "Competitive bidding advisories sent",
	},
)
