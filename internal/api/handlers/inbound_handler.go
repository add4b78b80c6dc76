package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"lotmarket/internal/service"
)

// InboundHandler принимает webhook шлюза вторичного канала.
//
// Endpoints:
// - POST /api/v1/inbound/secondary - входящий текстовый ответ
type InboundHandler struct {
	inbound service.InboundServiceInterface
}

// NewInboundHandler создает новый InboundHandler с внедрением зависимостей
func NewInboundHandler(inbound service.InboundServiceInterface) *InboundHandler {
	return &InboundHandler{inbound: inbound}
}

// inboundMessageRequest - входящее сообщение от шлюза
type inboundMessageRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Receive разбирает входящий ответ и применяет его к подтверждению.
//
// POST /api/v1/inbound/secondary
//
// Request:
//
//	{"from": "+15551234567", "text": "YES bid-abcd"}
//
// Response 200 OK: ответ применен
// Response 400 Bad Request: текст не по формату "YES/NO <префикс>"
// Response 404 Not Found: префикс не находит открытого подтверждения
func (h *InboundHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", nil)
		return
	}

	if err := h.inbound.HandleReply(req.From, req.Text); err != nil {
		switch {
		case errors.Is(err, service.ErrUnparsableReply):
			writeError(w, http.StatusBadRequest, "unparsable reply", err)
		case errors.Is(err, service.ErrUnknownPrefix):
			writeError(w, http.StatusNotFound, "no pending confirmation for prefix", err)
		default:
			writeError(w, http.StatusInternalServerError, "failed to apply reply", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "reply applied"})
}
