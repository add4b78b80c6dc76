package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lotmarket/internal/config"
	"lotmarket/internal/models"
)

// Ошибки административной поверхности движка
var (
	ErrAlreadyRunning = errors.New("matching engine is already running")
	ErrNotRunning     = errors.New("matching engine is not running")
	ErrEngineBusy     = errors.New("matching engine inbox is full")
)

// ============================================================
// Интерфейсы внешних систем
// ============================================================
// Движок зависит только от этих контрактов; конкретные реализации
// (Postgres, Redis, WebSocket hub, шлюз вторичного канала)
// подключаются при сборке процесса.

// OrderStore - операции над ордерами в персистентном хранилище
type OrderStore interface {
	FindActive() ([]*models.Order, error)
	FindActiveByAsset(asset string) ([]*models.Order, error)
	GetByID(id string) (*models.Order, error)
	UpdatePrice(id string, price decimal.Decimal) error
	UpdateAmount(id string, amount int64) error
}

// TradeStore - атомарный коммит сделки
type TradeStore interface {
	CommitTrade(bid, offer *models.Order, amount int64, price, commission decimal.Decimal) (*models.Trade, error)
}

// UserDirectory - чтение участников (имя, адрес вторичного канала)
type UserDirectory interface {
	GetByID(id string) (*models.User, error)
}

// SharedState - мягкое состояние в общем key/value хранилище.
// Все операции best-effort: их отказ логируется, но не останавливает матчинг.
type SharedState interface {
	RecordHeartbeat(ctx context.Context, at time.Time) error
	SetActiveOrdersFlag(ctx context.Context, active bool) error
	HasActiveOrdersHint(ctx context.Context) (active bool, found bool, err error)
	PublishTrade(ctx context.Context, event *models.TradeExecutedBroadcast) error
}

// RealtimeNotifier - realtime канал (WebSocket hub)
type RealtimeNotifier interface {
	SendToUser(userID, messageType string, payload interface{}) int
	Broadcast(messageType string, payload interface{})
}

// SecondaryNotifier - вторичный канал доставки (текстовые сообщения).
// Доставка best-effort и не должна блокировать цикл матчинга.
type SecondaryNotifier interface {
	Send(ctx context.Context, address, text string) error
}

// ProjectionRefresher перестраивает проекцию стакана после сделки
type ProjectionRefresher interface {
	RefreshOrderBook(asset string)
}

// ============================================================
// Движок
// ============================================================

// Engine - ядро матчинга.
//
// Вся мутация внутреннего состояния (переговоры, подтверждения,
// отклоненные пары, кэш) сериализована через единственную горутину,
// читающую inbox. Обработчики ответов, таймеры и административные
// вызовы кладут работу в inbox и никогда не трогают состояние напрямую.
type Engine struct {
	cfg    config.MatchingConfig
	logger *zap.Logger

	orders     OrderStore
	trades     TradeStore
	users      UserDirectory
	shared     SharedState
	realtime   RealtimeNotifier
	secondary  SecondaryNotifier
	projection ProjectionRefresher

	cache  *snapshotCache
	timers *timerService

	commissionRate decimal.Decimal

	// Состояние протоколов. Мутируется только из горутины inbox;
	// mu защищает конкурентное чтение (резолв префиксов, списки
	// запросов, статус для API).
	mu            sync.RWMutex
	negotiations  map[string]*models.NegotiationState
	confirmations map[string]*models.PendingConfirmation
	declined      map[string]struct{}
	advisorySent  map[string]time.Time

	inbox   chan func()
	running atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New создает движок поверх внешних систем
func New(
	cfg config.MatchingConfig,
	orders OrderStore,
	trades TradeStore,
	users UserDirectory,
	shared SharedState,
	realtime RealtimeNotifier,
	secondary SecondaryNotifier,
	projection ProjectionRefresher,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		cfg:            cfg,
		logger:         logger,
		orders:         orders,
		trades:         trades,
		users:          users,
		shared:         shared,
		realtime:       realtime,
		secondary:      secondary,
		projection:     projection,
		cache:          newSnapshotCache(orders, cfg.SnapshotTTL, logger),
		commissionRate: decimal.NewFromFloat(cfg.CommissionRate),
		negotiations:   make(map[string]*models.NegotiationState),
		confirmations:  make(map[string]*models.PendingConfirmation),
		declined:       make(map[string]struct{}),
		advisorySent:   make(map[string]time.Time),
		inbox:          make(chan func(), 64),
	}
	e.timers = newTimerService(e.postTimerFire)
	return e
}

// Start запускает цикл матчинга.
//
// Первый проход начинается после стартовой паузы, затем проходы
// идут с фиксированным периодом. Новый проход не стартует, пока
// не завершился предыдущий. Таймеры протоколов, снятые остановкой,
// перевзводятся до первого прохода.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	go e.run()
	e.inbox <- e.rearmProtocolTimers
	go e.schedule()

	e.logger.Info("Matching engine started",
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Duration("startup_grace", e.cfg.StartupGrace))
	return nil
}

// Stop останавливает цикл матчинга.
//
// Активные переговоры и подтверждения остаются в памяти с их
// дедлайнами; повторный Start перевзводит таймеры, а просроченные
// за простой стадии разрешает как таймаут.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	close(e.stopCh)
	e.timers.CancelAll()
	<-e.done

	e.logger.Info("Matching engine stopped")
	return nil
}

// IsRunning сообщает, запущен ли цикл матчинга
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// rearmProtocolTimers восстанавливает таймеры подтверждений и
// переговоров, переживших перезапуск движка. Стадии, чей дедлайн
// истек за время простоя, разрешаются как таймаут. Выполняется
// в домене сериализации до первого прохода.
func (e *Engine) rearmProtocolTimers() {
	now := time.Now()

	e.mu.RLock()
	confirmations := make(map[string]time.Time, len(e.confirmations))
	for ks, pc := range e.confirmations {
		confirmations[ks] = pc.Deadline
	}
	negotiations := make(map[string]time.Time, len(e.negotiations))
	for asset, state := range e.negotiations {
		negotiations[asset] = state.Deadline
	}
	e.mu.RUnlock()

	for ks, deadline := range confirmations {
		e.rearmOrExpire(timerConfirmation, ks, deadline.Sub(now))
	}
	for asset, deadline := range negotiations {
		e.rearmOrExpire(timerNegotiation, asset, deadline.Sub(now))
	}
}

func (e *Engine) rearmOrExpire(kind timerKind, id string, remaining time.Duration) {
	if remaining > 0 {
		e.timers.Arm(kind, id, remaining)
		e.logger.Info("Protocol timer re-armed",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Duration("remaining", remaining))
		return
	}

	e.logger.Info("Protocol stage expired while engine was stopped",
		zap.String("kind", string(kind)),
		zap.String("id", id))
	e.handleTimerFired(timerRef{kind: kind, id: id})
}

// run - единственный потребитель inbox
func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.stopCh:
			return
		case fn := <-e.inbox:
			fn()
		}
	}
}

// schedule выдает тики в inbox
func (e *Engine) schedule() {
	grace := time.NewTimer(e.cfg.StartupGrace)
	defer grace.Stop()

	select {
	case <-e.stopCh:
		return
	case <-grace.C:
	}

	e.postTick()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.postTick()
		}
	}
}

// postTick кладет проход в inbox. Если предыдущий проход еще
// не разобран, тик пропускается: догонять смысла нет.
func (e *Engine) postTick() {
	select {
	case e.inbox <- e.tick:
	default:
		TicksSkipped.Inc()
		e.logger.Warn("Matching tick skipped, engine busy")
	}
}

// postTimerFire доставляет сработавший таймер в домен сериализации.
// Поздние срабатывания после остановки движка отбрасываются.
func (e *Engine) postTimerFire(ref timerRef) {
	fn := func() { e.handleTimerFired(ref) }
	select {
	case e.inbox <- fn:
	default:
		// inbox переполнен: перевзводим таймер на короткий интервал,
		// чтобы не потерять таймаут
		e.timers.Arm(ref.kind, ref.id, time.Second)
	}
}

// do выполняет fn в домене сериализации и ждет результата
func (e *Engine) do(fn func() error) error {
	if !e.running.Load() {
		return ErrNotRunning
	}

	errCh := make(chan error, 1)
	select {
	case e.inbox <- func() { errCh <- fn() }:
	case <-e.stopCh:
		return ErrNotRunning
	case <-time.After(5 * time.Second):
		return ErrEngineBusy
	}

	select {
	case err := <-errCh:
		return err
	case <-e.stopCh:
		return ErrNotRunning
	}
}

// ============================================================
// Административная поверхность
// ============================================================

// ProcessAsset немедленно прогоняет решение по одному активу
// и сбрасывает снапшот-кэш
func (e *Engine) ProcessAsset(asset string) error {
	return e.do(func() error {
		orders, err := e.orders.FindActiveByAsset(asset)
		if err != nil {
			return err
		}
		e.decideAsset(asset, orders)
		e.cache.Invalidate()
		return nil
	})
}

// HandleNegotiationResponse принимает ответ пользователя в переговорах
func (e *Engine) HandleNegotiationResponse(asset, userID string, improved bool, newPrice *decimal.Decimal) error {
	return e.do(func() error {
		return e.handleNegotiationResponse(asset, userID, improved, newPrice)
	})
}

// HandleConfirmationResponse принимает ответ пользователя
// в подтверждении количества
func (e *Engine) HandleConfirmationResponse(key string, accepted bool, newQuantity *int64) error {
	return e.do(func() error {
		return e.handleConfirmationResponse(key, accepted, newQuantity)
	})
}

// MarkActiveOrders взводит флаг активных ордеров в общем хранилище.
// Вызывается модулем приема ордеров, чтобы следующий проход не ждал
// пересчета флага.
func (e *Engine) MarkActiveOrders(ctx context.Context) error {
	return e.shared.SetActiveOrdersFlag(ctx, true)
}

// ============================================================
// Проход матчинга
// ============================================================

func (e *Engine) tick() {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TickInterval)
	defer cancel()

	TicksTotal.Inc()

	if err := e.shared.RecordHeartbeat(ctx, started); err != nil {
		e.logger.Warn("Failed to record heartbeat", zap.Error(err))
	}

	// Подсказка из общего хранилища только логируется: снапшот
	// перечитывается и флаг пересчитывается в любом случае
	if hint, found, err := e.shared.HasActiveOrdersHint(ctx); err == nil && found {
		e.logger.Debug("Active orders hint", zap.Bool("active", hint))
	}

	orders := e.cache.Get()

	active := len(orders) > 0
	if err := e.shared.SetActiveOrdersFlag(ctx, active); err != nil {
		e.logger.Warn("Failed to update active orders flag", zap.Error(err))
	}
	if !active {
		return
	}

	byAsset := groupByAsset(orders)
	assets := assetsByActivity(byAsset)

	for _, asset := range assets {
		e.decideAssetSafe(asset, byAsset[asset])
	}

	TickDuration.Observe(time.Since(started).Seconds())
	e.logger.Debug("Matching pass finished",
		zap.Int("orders", len(orders)),
		zap.Int("assets", len(assets)),
		zap.Duration("elapsed", time.Since(started)))
}

// decideAssetSafe изолирует ошибки одного актива: паника или сбой
// не должны сорвать обработку остальных активов и сам цикл
func (e *Engine) decideAssetSafe(asset string, orders []*models.Order) {
	defer func() {
		if r := recover(); r != nil {
			AssetErrors.WithLabelValues(asset).Inc()
			e.logger.Error("Panic while matching asset",
				zap.String("asset", asset),
				zap.Any("panic", r))
		}
	}()

	e.decideAsset(asset, orders)
}

// groupByAsset разбивает снапшот по активам
func groupByAsset(orders []*models.Order) map[string][]*models.Order {
	byAsset := make(map[string][]*models.Order)
	for _, order := range orders {
		byAsset[order.Asset] = append(byAsset[order.Asset], order)
	}
	return byAsset
}

// assetsByActivity сортирует активы по убыванию числа ордеров:
// самые загруженные рынки обрабатываются первыми
func assetsByActivity(byAsset map[string][]*models.Order) []string {
	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool {
		if len(byAsset[assets[i]]) != len(byAsset[assets[j]]) {
			return len(byAsset[assets[i]]) > len(byAsset[assets[j]])
		}
		return assets[i] < assets[j]
	})
	return assets
}
