// Package api настраивает HTTP маршруты сервиса матчинга.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lotmarket/internal/api/handlers"
	"lotmarket/internal/api/middleware"
	"lotmarket/internal/service"
	"lotmarket/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine           service.MatchingEngineInterface
	OrderBookService service.OrderBookServiceInterface
	InboundService   service.InboundServiceInterface
	Hub              *websocket.Hub
	DB               handlers.DatabasePinger
	SharedState      handlers.SharedStatePinger
	Logger           *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /engine/
//	│   ├── POST /start - запустить цикл матчинга
//	│   ├── POST /stop - остановить цикл матчинга
//	│   └── GET  /status - состояние движка
//	├── /assets/
//	│   └── POST /{asset}/process - внеочередной проход по активу
//	├── /orders/
//	│   └── POST /mark-active - поднять флаг активных ордеров
//	├── /orderbook/
//	│   ├── GET /{asset} - проекция стакана
//	│   └── GET /{asset}/trades - последние сделки
//	├── /negotiations/
//	│   └── POST /{asset}/response - ход в переговорах о цене
//	├── /confirmations/
//	│   ├── POST /response - ответ на подтверждение количества
//	│   └── GET  / - открытые подтверждения пользователя
//	└── /inbound/
//	    └── POST /secondary - webhook шлюза вторичного канала
//
// /ws/stream - WebSocket для real-time уведомлений
// /metrics   - метрики Prometheus
// /health    - health check
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var engineHandler *handlers.EngineHandler
	var negotiationHandler *handlers.NegotiationHandler
	var confirmationHandler *handlers.ConfirmationHandler
	if deps != nil && deps.Engine != nil {
		engineHandler = handlers.NewEngineHandler(deps.Engine)
		negotiationHandler = handlers.NewNegotiationHandler(deps.Engine)
		confirmationHandler = handlers.NewConfirmationHandler(deps.Engine)
	}

	var orderBookHandler *handlers.OrderBookHandler
	if deps != nil && deps.OrderBookService != nil {
		orderBookHandler = handlers.NewOrderBookHandler(deps.OrderBookService)
	}

	var inboundHandler *handlers.InboundHandler
	if deps != nil && deps.InboundService != nil {
		inboundHandler = handlers.NewInboundHandler(deps.InboundService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Engine routes
	if engineHandler != nil {
		api.HandleFunc("/engine/start", engineHandler.Start).Methods("POST")
		api.HandleFunc("/engine/stop", engineHandler.Stop).Methods("POST")
		api.HandleFunc("/engine/status", engineHandler.Status).Methods("GET")
		api.HandleFunc("/assets/{asset}/process", engineHandler.ProcessAsset).Methods("POST")
		api.HandleFunc("/orders/mark-active", engineHandler.MarkActiveOrders).Methods("POST")
	}

	// Order book routes
	if orderBookHandler != nil {
		api.HandleFunc("/orderbook/{asset}", orderBookHandler.GetOrderBook).Methods("GET")
		api.HandleFunc("/orderbook/{asset}/trades", orderBookHandler.GetRecentTrades).Methods("GET")
	}

	// Negotiation routes
	if negotiationHandler != nil {
		api.HandleFunc("/negotiations/{asset}/response", negotiationHandler.Respond).Methods("POST")
	}

	// Confirmation routes
	if confirmationHandler != nil {
		api.HandleFunc("/confirmations/response", confirmationHandler.Respond).Methods("POST")
		api.HandleFunc("/confirmations", confirmationHandler.List).Methods("GET")
	}

	// Inbound routes
	if inboundHandler != nil {
		api.HandleFunc("/inbound/secondary", inboundHandler.Receive).Methods("POST")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	var healthEngine service.MatchingEngineInterface
	var healthDB handlers.DatabasePinger
	var healthShared handlers.SharedStatePinger
	var healthHub handlers.HubStats
	if deps != nil {
		healthEngine = deps.Engine
		healthDB = deps.DB
		healthShared = deps.SharedState
		if deps.Hub != nil {
			healthHub = deps.Hub
		}
	}
	healthHandler := handlers.NewHealthHandler(healthEngine, healthDB, healthShared, healthHub)
	router.HandleFunc("/health", healthHandler.Check).Methods("GET")

	return router
}
