package logger

import (
	"testing"
)

func TestInitLevels(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectError bool
	}{
		{"debug json", "debug", "json", false},
		{"info console", "info", "console", false},
		{"warn default format", "warn", "", false},
		{"warning alias", "WARNING", "json", false},
		{"error text alias", "error", "text", false},
		{"empty level defaults to info", "", "json", false},
		{"unknown level", "verbose", "json", true},
		{"unknown format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := Init(tt.level, tt.format)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if log == nil {
				t.Fatal("Init returned nil logger")
			}
			// Логгер должен быть рабочим
			log.Debug("debug message")
			log.Info("info message")
		})
	}
}
