// Package service содержит бизнес-логику поверх репозиториев:
// проекцию стакана и разбор ответов вторичного канала.
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/models"
	"lotmarket/internal/repository"
)

// глубина проекции стакана на сторону
const bookDepth = 10

// BookBroadcaster - интерфейс для рассылки обновлений стакана через WebSocket
type BookBroadcaster interface {
	Broadcast(messageType string, payload interface{})
}

// OrderBookService строит проекцию стакана по активу.
//
// Проекция всегда читается напрямую из хранилища, минуя снапшот-кэш
// движка: стакан показывают пользователю, и он должен отражать
// состояние сразу после сделки, а не окно валидности кэша.
type OrderBookService struct {
	orderRepo *repository.OrderRepository
	tradeRepo *repository.TradeRepository
	hub       BookBroadcaster
	logger    *zap.Logger
}

// NewOrderBookService создает новый экземпляр OrderBookService
func NewOrderBookService(orderRepo *repository.OrderRepository, tradeRepo *repository.TradeRepository, logger *zap.Logger) *OrderBookService {
	return &OrderBookService{
		orderRepo: orderRepo,
		tradeRepo: tradeRepo,
		logger:    logger,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast обновлений стакана.
// Вызывается после инициализации Hub в main.go.
func (s *OrderBookService) SetWebSocketHub(hub BookBroadcaster) {
	s.hub = hub
}

// GetOrderBook возвращает проекцию стакана: топ-10 заявок на каждой
// стороне плюс суммарные итоги по всем активным заявкам актива.
func (s *OrderBookService) GetOrderBook(asset string) (*models.OrderBook, error) {
	if asset == "" {
		return nil, fmt.Errorf("asset is required")
	}

	bids, err := s.orderRepo.FindTopOfBook(asset, models.SideBid, bookDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load bids: %w", err)
	}
	offers, err := s.orderRepo.FindTopOfBook(asset, models.SideOffer, bookDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load offers: %w", err)
	}

	bidCount, bidLots, err := s.orderRepo.SideTotals(asset, models.SideBid)
	if err != nil {
		return nil, fmt.Errorf("failed to load bid totals: %w", err)
	}
	offerCount, offerLots, err := s.orderRepo.SideTotals(asset, models.SideOffer)
	if err != nil {
		return nil, fmt.Errorf("failed to load offer totals: %w", err)
	}

	return &models.OrderBook{
		Asset:          asset,
		Bids:           toLevels(bids),
		Offers:         toLevels(offers),
		TotalBidLots:   bidLots,
		TotalOfferLots: offerLots,
		BidCount:       bidCount,
		OfferCount:     offerCount,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// GetRecentTrades возвращает последние сделки по активу
func (s *OrderBookService) GetRecentTrades(asset string, limit int) ([]*models.Trade, error) {
	if asset == "" {
		return nil, fmt.Errorf("asset is required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.tradeRepo.GetRecentByAsset(asset, limit)
}

// RefreshOrderBook перестраивает проекцию и рассылает ее всем
// подключенным клиентам. Вызывается движком после каждой сделки.
//
// Ошибки не возвращаются: рассылка best-effort, следующая сделка
// или явный запрос стакана перечитают состояние заново.
func (s *OrderBookService) RefreshOrderBook(asset string) {
	book, err := s.GetOrderBook(asset)
	if err != nil {
		s.logger.Error("Failed to rebuild order book projection",
			zap.String("asset", asset),
			zap.Error(err))
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(models.EventOrderBookUpdate, book)
	}

	s.logger.Debug("Order book projection refreshed",
		zap.String("asset", asset),
		zap.Int("bids", len(book.Bids)),
		zap.Int("offers", len(book.Offers)))
}

func toLevels(orders []*models.Order) []models.OrderBookLevel {
	levels := make([]models.OrderBookLevel, 0, len(orders))
	for _, o := range orders {
		levels = append(levels, models.OrderBookLevel{
			OrderID:   o.ID,
			Price:     o.Price,
			Remaining: o.Remaining,
			CreatedAt: o.CreatedAt,
		})
	}
	return levels
}
