//go:build integration

// Package integration contains integration tests for the matching service.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle against a real database
// - WebSocket tests: connection, targeted delivery, broadcast
// - Database tests: repository queries and the atomic trade commit
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lotmarket/internal/api"
	"lotmarket/internal/config"
	"lotmarket/internal/engine"
	"lotmarket/internal/models"
	"lotmarket/internal/repository"
	"lotmarket/internal/service"
	"lotmarket/internal/websocket"

	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB        *sql.DB
	Router    *mux.Router
	Server    *httptest.Server
	Hub       *websocket.Hub
	Engine    *engine.Engine
	OrderRepo *repository.OrderRepository
	TradeRepo *repository.TradeRepository
	Secondary *memorySecondary
	Cleanup   func()
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "lotmarket_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// memorySharedState replaces Redis for integration tests: the matching
// loop must work when the shared key/value store is unavailable, so a
// no-op stand-in is enough here.
type memorySharedState struct {
	mu         sync.Mutex
	heartbeats int
	published  int
}

func (s *memorySharedState) RecordHeartbeat(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return nil
}

func (s *memorySharedState) SetActiveOrdersFlag(ctx context.Context, active bool) error {
	return nil
}

func (s *memorySharedState) HasActiveOrdersHint(ctx context.Context) (bool, bool, error) {
	return false, false, nil
}

func (s *memorySharedState) PublishTrade(ctx context.Context, event *models.TradeExecutedBroadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++
	return nil
}

// memorySecondary collects secondary-channel messages instead of
// calling an external gateway
type memorySecondary struct {
	mu   sync.Mutex
	sent []string
}

func (m *memorySecondary) Send(ctx context.Context, address, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, address+": "+text)
	return nil
}

func (m *memorySecondary) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// testMatchingConfig returns engine settings suitable for tests:
// the periodic tick is effectively disabled, assets are processed
// through the API instead
func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		TickInterval:         time.Hour,
		StartupGrace:         0,
		SnapshotTTL:          30 * time.Second,
		NegotiationTTL:       time.Minute,
		ConfirmationTTL:      time.Minute,
		HeartbeatTTL:         10 * time.Minute,
		ActiveFlagTTL:        5 * time.Minute,
		AdvisoryMinGap:       5 * time.Minute,
		CommissionRate:       0.001,
		AdvisoryMaxSpreadPct: 20.0,
	}
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	logger := zap.NewNop()

	hub := websocket.NewHub(logger)
	go hub.Run()

	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	userRepo := repository.NewUserRepository(db)

	bookService := service.NewOrderBookService(orderRepo, tradeRepo, logger)
	bookService.SetWebSocketHub(hub)

	secondary := &memorySecondary{}

	eng := engine.New(
		testMatchingConfig(),
		orderRepo,
		tradeRepo,
		userRepo,
		&memorySharedState{},
		hub,
		secondary,
		bookService,
		logger,
	)
	if err := eng.Start(); err != nil {
		t.Fatalf("failed to start engine: %v", err)
	}

	inboundService := service.NewInboundService(eng, logger)

	deps := &api.Dependencies{
		Engine:           eng,
		OrderBookService: bookService,
		InboundService:   inboundService,
		Hub:              hub,
		DB:               db,
		Logger:           logger,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		eng.Stop()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:        db,
		Router:    router,
		Server:    server,
		Hub:       hub,
		Engine:    eng,
		OrderRepo: orderRepo,
		TradeRepo: tradeRepo,
		Secondary: secondary,
		Cleanup:   cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			secondary_address VARCHAR(100)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			side VARCHAR(10) NOT NULL,
			asset VARCHAR(20) NOT NULL,
			price DECIMAL(20, 2) NOT NULL,
			original_amount BIGINT NOT NULL,
			remaining BIGINT NOT NULL,
			matched BOOLEAN DEFAULT false,
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			user_id VARCHAR(64) NOT NULL,
			counterparty VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(64) PRIMARY KEY,
			asset VARCHAR(20) NOT NULL,
			price DECIMAL(20, 2) NOT NULL,
			amount BIGINT NOT NULL,
			buyer_order_id VARCHAR(64) NOT NULL,
			seller_order_id VARCHAR(64) NOT NULL,
			buyer_id VARCHAR(64) NOT NULL,
			seller_id VARCHAR(64) NOT NULL,
			commission DECIMAL(20, 2) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	cleanupTestTables(db)
	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	for _, table := range []string{"trades", "orders", "users"} {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// insertUser seeds a user row
func insertUser(t *testing.T, db *sql.DB, id, username, secondaryAddress string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO users (id, username, secondary_address) VALUES ($1, $2, NULLIF($3, ''))`,
		id, username, secondaryAddress,
	)
	if err != nil {
		t.Fatalf("failed to insert user %s: %v", id, err)
	}
}

// insertOrder seeds an active order row
func insertOrder(t *testing.T, db *sql.DB, id string, side models.Side, asset, price string, amount int64, userID string, createdAt time.Time) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO orders (id, side, asset, price, original_amount, remaining, matched, status, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5, false, $6, $7, $8)`,
		id, side, asset, decimal.RequireFromString(price), amount, models.OrderStatusActive, userID, createdAt,
	)
	if err != nil {
		t.Fatalf("failed to insert order %s: %v", id, err)
	}
}

// countTrades returns the number of rows in trades
func countTrades(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&n); err != nil {
		t.Fatalf("failed to count trades: %v", err)
	}
	return n
}
