package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lotmarket/internal/models"
	"lotmarket/internal/service"
)

// OrderBookHandler обрабатывает HTTP запросы проекции стакана.
//
// Endpoints:
// - GET /api/v1/orderbook/{asset} - топ-10 заявок каждой стороны + итоги
// - GET /api/v1/orderbook/{asset}/trades?limit=20 - последние сделки
type OrderBookHandler struct {
	bookService service.OrderBookServiceInterface
}

// NewOrderBookHandler создает новый OrderBookHandler с внедрением зависимостей
func NewOrderBookHandler(bookService service.OrderBookServiceInterface) *OrderBookHandler {
	return &OrderBookHandler{bookService: bookService}
}

// GetOrderBook возвращает проекцию стакана по активу.
//
// GET /api/v1/orderbook/{asset}
//
// Response 200 OK:
//
//	{
//	  "asset": "GOLD",
//	  "bids": [{"order_id": "...", "price": "101.00", "remaining": 5, "created_at": "..."}],
//	  "offers": [...],
//	  "total_bid_lots": 7,
//	  "total_offer_lots": 4,
//	  "bid_count": 2,
//	  "offer_count": 1,
//	  "timestamp": "..."
//	}
func (h *OrderBookHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required", nil)
		return
	}

	book, err := h.bookService.GetOrderBook(asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build order book", err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// GetRecentTrades возвращает последние сделки по активу.
//
// GET /api/v1/orderbook/{asset}/trades?limit=20
//
// Query Parameters:
// - limit (optional): количество сделок (по умолчанию 20, максимум 100)
func (h *OrderBookHandler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset is required", nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 100 {
				limit = 100
			}
		}
	}

	trades, err := h.bookService.GetRecentTrades(asset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load trades", err)
		return
	}

	// Пустой результат возвращается как [], а не null
	if trades == nil {
		trades = []*models.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}
