package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"lotmarket/internal/config"
	"lotmarket/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ключи и каналы в Redis
const (
	keyLastRun         = "matching:last_run"
	keyHasActiveOrders = "matching:has_active_orders"
	channelTradeExec   = "trade:executed"
)

// SharedState - мягкое состояние цикла матчинга в Redis.
//
// Все записи best-effort: Redis хранит только подсказки для внешних
// модулей (heartbeat, флаг активных ордеров) и шину публикации сделок.
// Недоступность Redis не должна останавливать матчинг, поэтому ошибки
// здесь логируются вызывающим кодом, а не прерывают проход.
type SharedState struct {
	client *redis.Client
	cfg    config.MatchingConfig
	logger *zap.Logger
}

// NewSharedState создает клиент Redis и проверяет соединение
func NewSharedState(cfg *config.Config, logger *zap.Logger) (*SharedState, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &SharedState{
		client: client,
		cfg:    cfg.Matching,
		logger: logger,
	}, nil
}

// Close закрывает соединение с Redis
func (s *SharedState) Close() error {
	return s.client.Close()
}

// Ping проверяет доступность Redis
func (s *SharedState) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RecordHeartbeat отмечает момент начала прохода матчинга
func (s *SharedState) RecordHeartbeat(ctx context.Context, at time.Time) error {
	return s.client.Set(ctx, keyLastRun, at.UTC().Format(time.RFC3339), s.cfg.HeartbeatTTL).Err()
}

// SetActiveOrdersFlag записывает пересчитанный флаг наличия активных
// ордеров. TTL защищает от устаревания при падении процесса.
func (s *SharedState) SetActiveOrdersFlag(ctx context.Context, active bool) error {
	value := "false"
	if active {
		value = "true"
	}
	return s.client.Set(ctx, keyHasActiveOrders, value, s.cfg.ActiveFlagTTL).Err()
}

// MarkActiveOrders взводит флаг немедленно, не дожидаясь следующего
// прохода. Вызывается модулем приема ордеров через API.
func (s *SharedState) MarkActiveOrders(ctx context.Context) error {
	return s.client.Set(ctx, keyHasActiveOrders, "true", s.cfg.ActiveFlagTTL).Err()
}

// HasActiveOrdersHint читает флаг активных ордеров.
//
// Отсутствие ключа - не ошибка: подсказки нет, вызывающий считает
// состояние неизвестным и идет в базу.
func (s *SharedState) HasActiveOrdersHint(ctx context.Context) (bool, bool, error) {
	value, err := s.client.Get(ctx, keyHasActiveOrders).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == "true", true, nil
}

// PublishTrade публикует исполненную сделку в канал trade:executed
func (s *SharedState) PublishTrade(ctx context.Context, event *models.TradeExecutedBroadcast) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	if err := s.client.Publish(ctx, channelTradeExec, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish trade event: %w", err)
	}

	s.logger.Debug("Trade published",
		zap.String("trade_id", event.TradeID),
		zap.String("asset", event.Asset))

	return nil
}
