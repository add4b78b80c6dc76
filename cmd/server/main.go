package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/api"
	"lotmarket/internal/config"
	"lotmarket/internal/engine"
	"lotmarket/internal/kv"
	"lotmarket/internal/notify"
	"lotmarket/internal/repository"
	"lotmarket/internal/service"
	"lotmarket/internal/websocket"
	"lotmarket/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	zlog, err := logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	zlog.Info("Database connection established",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация общего key/value состояния (Redis)
	shared, err := kv.NewSharedState(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer shared.Close()

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	userRepo := repository.NewUserRepository(db)

	if count, err := orderRepo.CountActive(); err != nil {
		zlog.Warn("Failed to count active orders", zap.Error(err))
	} else {
		zlog.Info("Active orders at startup", zap.Int("count", count))
	}

	// WebSocket hub для realtime уведомлений
	hub := websocket.NewHub(zlog)
	go hub.Run()
	defer hub.Stop()

	// Клиент шлюза вторичного канала
	secondary := notify.NewSecondaryClient(cfg.Secondary, zlog)
	defer secondary.Close()

	// Инициализация сервисов
	bookService := service.NewOrderBookService(orderRepo, tradeRepo, zlog)
	bookService.SetWebSocketHub(hub)

	// Движок матчинга
	matchingEngine := engine.New(
		cfg.Matching,
		orderRepo,
		tradeRepo,
		userRepo,
		shared,
		hub,
		secondary,
		bookService,
		zlog,
	)
	if err := matchingEngine.Start(); err != nil {
		zlog.Fatal("Failed to start matching engine", zap.Error(err))
	}

	inboundService := service.NewInboundService(matchingEngine, zlog)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		Engine:           matchingEngine,
		OrderBookService: bookService,
		InboundService:   inboundService,
		Hub:              hub,
		DB:               db,
		SharedState:      shared,
		Logger:           zlog,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		zlog.Info("Server starting", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("Server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("Server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")

	// Останавливаем цикл матчинга до закрытия соединений
	if err := matchingEngine.Stop(); err != nil && err != engine.ErrNotRunning {
		zlog.Warn("Failed to stop matching engine", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zlog.Fatal("Server forced to shut down", zap.Error(err))
	}

	zlog.Info("Server stopped")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
