package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"lotmarket/internal/models"
)

// ============ OrderBookHandler Tests ============

func bookRequest(path, asset string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return mux.SetURLVars(req, map[string]string{"asset": asset})
}

func TestOrderBookHandler_GetOrderBook(t *testing.T) {
	t.Run("returns order book", func(t *testing.T) {
		mockSvc := NewMockOrderBookService()
		mockSvc.SetBook(&models.OrderBook{
			Asset: "GOLD",
			Bids: []models.OrderBookLevel{
				{OrderID: "b1", Price: decimal.RequireFromString("101.00"), Remaining: 5, CreatedAt: time.Now()},
			},
			Offers:         []models.OrderBookLevel{},
			TotalBidLots:   5,
			TotalOfferLots: 0,
			BidCount:       1,
			Timestamp:      time.Now().UTC(),
		})
		handler := NewOrderBookHandler(mockSvc)

		w := httptest.NewRecorder()
		handler.GetOrderBook(w, bookRequest("/api/v1/orderbook/GOLD", "GOLD"))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response models.OrderBook
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Asset != "GOLD" || len(response.Bids) != 1 || response.TotalBidLots != 5 {
			t.Errorf("response: %+v", response)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mockSvc := NewMockOrderBookService()
		mockSvc.SetError(ErrMockFailure)
		handler := NewOrderBookHandler(mockSvc)

		w := httptest.NewRecorder()
		handler.GetOrderBook(w, bookRequest("/api/v1/orderbook/GOLD", "GOLD"))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestOrderBookHandler_GetRecentTrades(t *testing.T) {
	t.Run("returns trades", func(t *testing.T) {
		mockSvc := NewMockOrderBookService()
		mockSvc.SetTrades([]*models.Trade{
			{ID: "t1", Asset: "GOLD", Amount: 4, Price: decimal.RequireFromString("102.00")},
		})
		handler := NewOrderBookHandler(mockSvc)

		w := httptest.NewRecorder()
		handler.GetRecentTrades(w, bookRequest("/api/v1/orderbook/GOLD/trades", "GOLD"))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response []*models.Trade
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response) != 1 || response[0].ID != "t1" {
			t.Errorf("response: %+v", response)
		}
	})

	t.Run("returns empty array without trades", func(t *testing.T) {
		mockSvc := NewMockOrderBookService()
		handler := NewOrderBookHandler(mockSvc)

		w := httptest.NewRecorder()
		handler.GetRecentTrades(w, bookRequest("/api/v1/orderbook/GOLD/trades", "GOLD"))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("expected [], got %s", body)
		}
	})
}
