package handlers

import (
	"context"
	"net/http"
	"time"

	"lotmarket/internal/service"
)

// DatabasePinger проверяет доступность базы данных (*sql.DB подходит)
type DatabasePinger interface {
	PingContext(ctx context.Context) error
}

// SharedStatePinger проверяет доступность общего key/value хранилища
type SharedStatePinger interface {
	Ping(ctx context.Context) error
}

// HubStats - счетчики WebSocket hub
type HubStats interface {
	ClientCount() int
	DroppedMessages() int64
}

// HealthResponse - состояние компонентов сервиса
type HealthResponse struct {
	Status        string `json:"status"`
	EngineRunning bool   `json:"engine_running"`
	Database      string `json:"database"`
	SharedState   string `json:"shared_state"`
	WSClients     int    `json:"ws_clients"`
	WSDropped     int64  `json:"ws_dropped_messages"`
}

// HealthHandler отдает состояние сервиса и его зависимостей
type HealthHandler struct {
	engine service.MatchingEngineInterface
	db     DatabasePinger
	shared SharedStatePinger
	hub    HubStats
}

// NewHealthHandler создает новый HealthHandler. Любая зависимость
// может быть nil - тогда соответствующий компонент помечается
// как "disabled".
func NewHealthHandler(engine service.MatchingEngineInterface, db DatabasePinger, shared SharedStatePinger, hub HubStats) *HealthHandler {
	return &HealthHandler{
		engine: engine,
		db:     db,
		shared: shared,
		hub:    hub,
	}
}

// Check обрабатывает GET /health
//
// Возвращает 200, если база данных доступна (или не подключена),
// и 503, если база данных недоступна. Потеря shared state не
// считается деградацией: цикл матчинга работает и без него.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "ok",
		Database:    "disabled",
		SharedState: "disabled",
	}

	if h.engine != nil {
		resp.EngineRunning = h.engine.IsRunning()
	}

	status := http.StatusOK
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Database = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "up"
		}
	}

	if h.shared != nil {
		if err := h.shared.Ping(ctx); err != nil {
			resp.SharedState = "down"
		} else {
			resp.SharedState = "up"
		}
	}

	if h.hub != nil {
		resp.WSClients = h.hub.ClientCount()
		resp.WSDropped = h.hub.DroppedMessages()
	}

	writeJSON(w, status, resp)
}
