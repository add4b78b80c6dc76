package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"lotmarket/internal/engine"
	"lotmarket/internal/service"
)

// EngineHandler обрабатывает HTTP запросы управления движком матчинга.
//
// Endpoints:
// - POST /api/v1/engine/start - запустить цикл матчинга
// - POST /api/v1/engine/stop - остановить цикл матчинга
// - GET  /api/v1/engine/status - текущее состояние движка
// - POST /api/v1/assets/{asset}/process - внеочередной проход по активу
// - POST /api/v1/orders/mark-active - поднять флаг активных ордеров
//
// Проход по активу используется модулем приема ордеров: новый ордер
// не должен ждать следующего тика, чтобы попасть в матчинг.
type EngineHandler struct {
	engine service.MatchingEngineInterface
}

// NewEngineHandler создает новый EngineHandler с внедрением зависимостей
func NewEngineHandler(eng service.MatchingEngineInterface) *EngineHandler {
	return &EngineHandler{engine: eng}
}

// Start запускает цикл матчинга.
//
// POST /api/v1/engine/start
//
// Response 200 OK: {"message": "engine started"}
// Response 409 Conflict: движок уже запущен
func (h *EngineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "engine already running", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start engine", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "engine started"})
}

// Stop останавливает цикл матчинга.
//
// POST /api/v1/engine/stop
//
// Response 200 OK: {"message": "engine stopped"}
// Response 409 Conflict: движок не запущен
func (h *EngineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			writeError(w, http.StatusConflict, "engine not running", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop engine", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "engine stopped"})
}

// Status возвращает текущее состояние движка.
//
// GET /api/v1/engine/status
//
// Response 200 OK: {"running": true}
func (h *EngineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"running": h.engine.IsRunning(),
	})
}

// ProcessAsset запускает внеочередной проход матчинга по активу.
//
// POST /api/v1/assets/{asset}/process
//
// Response 202 Accepted: проход поставлен в очередь и выполнен
// Response 409 Conflict: движок не запущен
// Response 503 Service Unavailable: движок занят
func (h *EngineHandler) ProcessAsset(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required", nil)
		return
	}

	if err := h.engine.ProcessAsset(asset); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotRunning):
			writeError(w, http.StatusConflict, "engine not running", nil)
		case errors.Is(err, engine.ErrEngineBusy):
			writeError(w, http.StatusServiceUnavailable, "engine busy, retry later", nil)
		default:
			writeError(w, http.StatusInternalServerError, "failed to process asset", err)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, SuccessResponse{Message: "asset processed"})
}

// MarkActiveOrders поднимает флаг наличия активных ордеров.
//
// POST /api/v1/orders/mark-active
//
// Вызывается модулем приема ордеров при создании ордера, чтобы
// цикл матчинга не пропускал тики по устаревшей подсказке.
//
// Response 200 OK: {"message": "active orders flag set"}
func (h *EngineHandler) MarkActiveOrders(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.MarkActiveOrders(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set active orders flag", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "active orders flag set"})
}
