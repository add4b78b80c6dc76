package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"lotmarket/internal/engine"
	"lotmarket/internal/service"
)

// NegotiationHandler обрабатывает ответы участников переговоров о цене.
//
// Endpoints:
// - POST /api/v1/negotiations/{asset}/response - ход в переговорах
type NegotiationHandler struct {
	engine service.MatchingEngineInterface
}

// NewNegotiationHandler создает новый NegotiationHandler с внедрением зависимостей
func NewNegotiationHandler(eng service.MatchingEngineInterface) *NegotiationHandler {
	return &NegotiationHandler{engine: eng}
}

// negotiationResponseRequest - тело хода в переговорах.
//
// improved=false означает пас: переговоры завершаются. При improved=true
// new_price необязателен - без него ход просто переходит другой стороне.
type negotiationResponseRequest struct {
	UserID   string           `json:"user_id"`
	Improved bool             `json:"improved"`
	NewPrice *decimal.Decimal `json:"new_price,omitempty"`
}

// Respond применяет ход участника к переговорам по активу.
//
// POST /api/v1/negotiations/{asset}/response
//
// Request:
//
//	{"user_id": "u1", "improved": true, "new_price": "9.80"}
//
// Ответы вне очереди и по активам без переговоров молча принимаются:
// состояние могло измениться, пока ответ был в пути, и это не ошибка
// клиента.
//
// Response 200 OK: {"message": "response accepted"}
// Response 409 Conflict: движок не запущен
// Response 503 Service Unavailable: движок занят
func (h *NegotiationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required", nil)
		return
	}

	var req negotiationResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	if req.NewPrice != nil && req.NewPrice.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "new_price must be positive", nil)
		return
	}

	if err := h.engine.HandleNegotiationResponse(asset, req.UserID, req.Improved, req.NewPrice); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotRunning):
			writeError(w, http.StatusConflict, "engine not running", nil)
		case errors.Is(err, engine.ErrEngineBusy):
			writeError(w, http.StatusServiceUnavailable, "engine busy, retry later", nil)
		default:
			writeError(w, http.StatusInternalServerError, "failed to apply response", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "response accepted"})
}
