package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"lotmarket/internal/models"
)

// snapshotCache - процесс-локальный снапшот активных ордеров
// с ограниченной свежестью.
//
// Кэш никогда не мутируется на месте, только заменяется целиком:
// вектор, выданный одному проходу, не меняется под ним. При ошибке
// хранилища возвращается предыдущий снапшот - проход продолжается
// на возможно устаревших данных, а корректность записи гарантирует
// транзакция коммита, которая перечитывает ордера сама.
type snapshotCache struct {
	store OrderStore
	ttl   time.Duration

	mu        sync.Mutex
	orders    []*models.Order
	fetchedAt time.Time

	logger *zap.Logger
}

func newSnapshotCache(store OrderStore, ttl time.Duration, logger *zap.Logger) *snapshotCache {
	return &snapshotCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get возвращает снапшот активных ордеров, обновляя его при
// истечении окна валидности
func (c *snapshotCache) Get() []*models.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.orders
	}

	orders, err := c.store.FindActive()
	if err != nil {
		SnapshotErrors.Inc()
		c.logger.Warn("Snapshot refresh failed, serving stale data",
			zap.Error(err),
			zap.Time("fetched_at", c.fetchedAt))
		return c.orders
	}

	c.orders = orders
	c.fetchedAt = time.Now()
	SnapshotRefreshes.Inc()
	return c.orders
}

// Invalidate сбрасывает отметку времени: следующий Get пойдет
// в хранилище
func (c *snapshotCache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
