package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"lotmarket/internal/engine"
	"lotmarket/internal/models"
	"lotmarket/internal/service"
)

// ConfirmationHandler обрабатывает ответы на подтверждения количества.
//
// Endpoints:
// - POST /api/v1/confirmations/response - ответ стороны подтверждения
// - GET  /api/v1/confirmations?user_id=... - открытые запросы пользователя
//
// Ключ подтверждения передается в теле, а не в пути: он содержит
// символ "|" и в URL выглядел бы хуже, чем есть.
type ConfirmationHandler struct {
	engine service.MatchingEngineInterface
}

// NewConfirmationHandler создает новый ConfirmationHandler с внедрением зависимостей
func NewConfirmationHandler(eng service.MatchingEngineInterface) *ConfirmationHandler {
	return &ConfirmationHandler{engine: eng}
}

// confirmationResponseRequest - тело ответа на подтверждение количества.
//
// new_quantity имеет смысл только для меньшей стороны при accepted=true:
// до какого объема она готова увеличиться. Без него принимается объем
// большей стороны целиком.
type confirmationResponseRequest struct {
	ConfirmationKey string `json:"confirmation_key"`
	Accepted        bool   `json:"accepted"`
	NewQuantity     *int64 `json:"new_quantity,omitempty"`
}

// Respond применяет ответ стороны к открытому подтверждению.
//
// POST /api/v1/confirmations/response
//
// Request:
//
//	{"confirmation_key": "GOLD|bid-...|off-...", "accepted": true, "new_quantity": 7}
//
// Ответы по неизвестным ключам молча принимаются: подтверждение могло
// истечь, пока ответ был в пути.
//
// Response 200 OK: {"message": "response accepted"}
// Response 400 Bad Request: невалидный ключ или количество
// Response 409 Conflict: движок не запущен
func (h *ConfirmationHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req confirmationResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if _, err := models.ParseConfirmationKey(req.ConfirmationKey); err != nil {
		writeError(w, http.StatusBadRequest, "invalid confirmation key", err)
		return
	}
	if req.NewQuantity != nil && *req.NewQuantity <= 0 {
		writeError(w, http.StatusBadRequest, "new_quantity must be positive", nil)
		return
	}

	if err := h.engine.HandleConfirmationResponse(req.ConfirmationKey, req.Accepted, req.NewQuantity); err != nil {
		switch {
		case errors.Is(err, engine.ErrNotRunning):
			writeError(w, http.StatusConflict, "engine not running", nil)
		case errors.Is(err, engine.ErrEngineBusy):
			writeError(w, http.StatusServiceUnavailable, "engine busy, retry later", nil)
		default:
			writeError(w, http.StatusBadRequest, "failed to apply response", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "response accepted"})
}

// List возвращает открытые подтверждения, ждущие ответа пользователя.
//
// GET /api/v1/confirmations?user_id=u1
//
// Response 200 OK:
//
//	[{"key": {...}, "state": "AWAITING_SMALLER", "deadline": "...", ...}]
func (h *ConfirmationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	pending := h.engine.ListSolicitations(userID)
	if pending == nil {
		pending = []*models.PendingConfirmation{}
	}

	writeJSON(w, http.StatusOK, pending)
}
