package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"lotmarket/internal/models"
)

// ErrMockFailure - типовая ошибка для негативных сценариев
var ErrMockFailure = errors.New("mock failure")

// ============ MockEngine ============

// MockEngine - мок движка матчинга для тестов handlers
type MockEngine struct {
	mu sync.Mutex

	running bool
	errs    map[string]error

	processedAssets []string
	markActiveCalls int

	negotiationCalls []negotiationCall
	confirmCalls     []confirmCall

	solicitations []*models.PendingConfirmation
}

type negotiationCall struct {
	asset    string
	userID   string
	improved bool
	newPrice *decimal.Decimal
}

type confirmCall struct {
	key         string
	accepted    bool
	newQuantity *int64
}

func NewMockEngine() *MockEngine {
	return &MockEngine{errs: make(map[string]error)}
}

// SetError устанавливает ошибку для операции
// ("start", "stop", "process", "mark", "negotiation", "confirmation")
func (m *MockEngine) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

func (m *MockEngine) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

func (m *MockEngine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["start"]; err != nil {
		return err
	}
	m.running = true
	return nil
}

func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["stop"]; err != nil {
		return err
	}
	m.running = false
	return nil
}

func (m *MockEngine) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockEngine) ProcessAsset(asset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["process"]; err != nil {
		return err
	}
	m.processedAssets = append(m.processedAssets, asset)
	return nil
}

func (m *MockEngine) MarkActiveOrders(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["mark"]; err != nil {
		return err
	}
	m.markActiveCalls++
	return nil
}

func (m *MockEngine) HandleNegotiationResponse(asset, userID string, improved bool, newPrice *decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["negotiation"]; err != nil {
		return err
	}
	m.negotiationCalls = append(m.negotiationCalls, negotiationCall{asset, userID, improved, newPrice})
	return nil
}

func (m *MockEngine) HandleConfirmationResponse(key string, accepted bool, newQuantity *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs["confirmation"]; err != nil {
		return err
	}
	m.confirmCalls = append(m.confirmCalls, confirmCall{key, accepted, newQuantity})
	return nil
}

func (m *MockEngine) ListSolicitations(userID string) []*models.PendingConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.solicitations
}

// ============ MockOrderBookService ============

type MockOrderBookService struct {
	mu       sync.Mutex
	book     *models.OrderBook
	trades   []*models.Trade
	err      error
	refreshd []string
}

func NewMockOrderBookService() *MockOrderBookService {
	return &MockOrderBookService{}
}

func (m *MockOrderBookService) SetBook(book *models.OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book = book
}

func (m *MockOrderBookService) SetTrades(trades []*models.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = trades
}

func (m *MockOrderBookService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockOrderBookService) GetOrderBook(asset string) (*models.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.book, nil
}

func (m *MockOrderBookService) GetRecentTrades(asset string, limit int) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.trades, nil
}

func (m *MockOrderBookService) RefreshOrderBook(asset string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshd = append(m.refreshd, asset)
}

// ============ MockInboundService ============

type MockInboundService struct {
	mu      sync.Mutex
	err     error
	replies []string
	pending []*models.PendingConfirmation
}

func NewMockInboundService() *MockInboundService {
	return &MockInboundService{}
}

func (m *MockInboundService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockInboundService) HandleReply(from, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.replies = append(m.replies, from+"|"+text)
	return nil
}

func (m *MockInboundService) PendingFor(userID string) []*models.PendingConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}
