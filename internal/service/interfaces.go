package service

import (
	"context"

	"github.com/shopspring/decimal"

	"lotmarket/internal/engine"
	"lotmarket/internal/models"
)

// ============ Интерфейсы для Dependency Injection в handlers ============

// OrderBookServiceInterface определяет интерфейс сервиса стакана
type OrderBookServiceInterface interface {
	GetOrderBook(asset string) (*models.OrderBook, error)
	GetRecentTrades(asset string, limit int) ([]*models.Trade, error)
	RefreshOrderBook(asset string)
}

// InboundServiceInterface определяет интерфейс сервиса входящих ответов
type InboundServiceInterface interface {
	HandleReply(from, text string) error
	PendingFor(userID string) []*models.PendingConfirmation
}

// MatchingEngineInterface - операции движка матчинга, доступные через API
type MatchingEngineInterface interface {
	Start() error
	Stop() error
	IsRunning() bool
	ProcessAsset(asset string) error
	MarkActiveOrders(ctx context.Context) error
	HandleNegotiationResponse(asset, userID string, improved bool, newPrice *decimal.Decimal) error
	HandleConfirmationResponse(key string, accepted bool, newQuantity *int64) error
	ListSolicitations(userID string) []*models.PendingConfirmation
}

// Проверяем, что реальные реализации соответствуют интерфейсам
var _ OrderBookServiceInterface = (*OrderBookService)(nil)
var _ InboundServiceInterface = (*InboundService)(nil)
var _ MatchingEngineInterface = (*engine.Engine)(nil)
var _ ConfirmationResponder = (*engine.Engine)(nil)
