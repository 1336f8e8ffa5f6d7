package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/models"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
)

const DefaultRefreshInterval = time.Minute

type Cache interface {
	Refresh(ctx context.Context, repo repository.Repository) error
}

// ActiveOrdersCache holds orders that can still change status. Delivered and
// cancelled orders are evicted on Put.
type ActiveOrdersCache struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	// seq numbers every Put/Delete; touched keeps the last one per order so a
	// refresh never installs a snapshot older than a write it raced with.
	seq     uint64
	touched map[string]uint64
}

var _ Cache = (*ActiveOrdersCache)(nil)

func NewActiveOrdersCache() *ActiveOrdersCache {
	return &ActiveOrdersCache{
		orders:  make(map[string]*models.Order),
		touched: make(map[string]uint64),
	}
}

func (c *ActiveOrdersCache) Get(id string) (*models.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

func (c *ActiveOrdersCache) Put(o *models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch(o.ID)
	if o.Status.IsTerminal() {
		delete(c.orders, o.ID)
		return
	}
	c.orders[o.ID] = o.Clone()
}

func (c *ActiveOrdersCache) Delete(id string) {
	c.mu.Lock()
	c.touch(id)
	delete(c.orders, id)
	c.mu.Unlock()
}

func (c *ActiveOrdersCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.orders)
}

// touch must be called with mu held.
func (c *ActiveOrdersCache) touch(id string) {
	c.seq++
	c.touched[id] = c.seq
}

// Refresh replaces the cached set with the non-terminal orders from repo.
// Orders written through Put or Delete while the list was loading keep the
// state from that write.
func (c *ActiveOrdersCache) Refresh(ctx context.Context, repo repository.Repository) error {
	c.mu.RLock()
	start := c.seq
	c.mu.RUnlock()

	orders, err := repo.List(ctx, repository.ListFilter{Limit: 1000})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	newMap := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		if c.touched[o.ID] > start || o.Status.IsTerminal() {
			continue
		}
		newMap[o.ID] = o
	}
	for id, at := range c.touched {
		if at <= start {
			delete(c.touched, id)
			continue
		}
		if o, ok := c.orders[id]; ok {
			newMap[id] = o
		}
	}
	c.orders = newMap
	return nil
}

// StartAutoRefresh refreshes every interval until ctx is done. A non-positive
// interval falls back to DefaultRefreshInterval.
func (c *ActiveOrdersCache) StartAutoRefresh(ctx context.Context, repo repository.Repository, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Refresh(ctx, repo); err != nil {
				log.Printf("[cache] refresh: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
