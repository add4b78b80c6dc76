package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"lotmarket/internal/engine"
)

// ============ EngineHandler Tests ============

func TestEngineHandler_Start(t *testing.T) {
	t.Run("starts engine", func(t *testing.T) {
		mockEng := NewMockEngine()
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil)
		w := httptest.NewRecorder()

		handler.Start(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if !mockEng.IsRunning() {
			t.Error("engine not started")
		}
	})

	t.Run("returns 409 when already running", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetError("start", engine.ErrAlreadyRunning)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/start", nil)
		w := httptest.NewRecorder()

		handler.Start(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})
}

func TestEngineHandler_Stop(t *testing.T) {
	t.Run("stops engine", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetRunning(true)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/stop", nil)
		w := httptest.NewRecorder()

		handler.Stop(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if mockEng.IsRunning() {
			t.Error("engine not stopped")
		}
	})

	t.Run("returns 409 when not running", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetError("stop", engine.ErrNotRunning)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/stop", nil)
		w := httptest.NewRecorder()

		handler.Stop(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})
}

func TestEngineHandler_Status(t *testing.T) {
	mockEng := NewMockEngine()
	mockEng.SetRunning(true)
	handler := NewEngineHandler(mockEng)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/engine/status", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response["running"] {
		t.Error("expected running=true")
	}
}

func TestEngineHandler_ProcessAsset(t *testing.T) {
	t.Run("processes asset", func(t *testing.T) {
		mockEng := NewMockEngine()
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/GOLD/process", nil)
		req = mux.SetURLVars(req, map[string]string{"asset": "GOLD"})
		w := httptest.NewRecorder()

		handler.ProcessAsset(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status %d, got %d", http.StatusAccepted, w.Code)
		}
		if len(mockEng.processedAssets) != 1 || mockEng.processedAssets[0] != "GOLD" {
			t.Errorf("processed assets: %v", mockEng.processedAssets)
		}
	})

	t.Run("returns 409 when engine not running", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetError("process", engine.ErrNotRunning)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/GOLD/process", nil)
		req = mux.SetURLVars(req, map[string]string{"asset": "GOLD"})
		w := httptest.NewRecorder()

		handler.ProcessAsset(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})

	t.Run("returns 503 when engine busy", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetError("process", engine.ErrEngineBusy)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/GOLD/process", nil)
		req = mux.SetURLVars(req, map[string]string{"asset": "GOLD"})
		w := httptest.NewRecorder()

		handler.ProcessAsset(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})

	t.Run("returns 400 without asset", func(t *testing.T) {
		mockEng := NewMockEngine()
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/assets//process", nil)
		w := httptest.NewRecorder()

		handler.ProcessAsset(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}

func TestEngineHandler_MarkActiveOrders(t *testing.T) {
	t.Run("sets flag", func(t *testing.T) {
		mockEng := NewMockEngine()
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/mark-active", nil)
		w := httptest.NewRecorder()

		handler.MarkActiveOrders(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if mockEng.markActiveCalls != 1 {
			t.Errorf("mark calls: %d", mockEng.markActiveCalls)
		}
	})

	t.Run("returns 500 on failure", func(t *testing.T) {
		mockEng := NewMockEngine()
		mockEng.SetError("mark", ErrMockFailure)
		handler := NewEngineHandler(mockEng)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/mark-active", nil)
		w := httptest.NewRecorder()

		handler.MarkActiveOrders(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
