package cache

import (
	"context"
	"sync"
	"time"

	"lojapdv/backend/internal/domain"
)

// CatalogCache holds the product listing between catalog writes.
//
// Every Invalidate bumps a generation counter. A reader takes Generation
// before loading the store and passes it to SetProducts; a listing stored
// under an older generation is never served, so a fill that raced a commit
// cannot outlive it.
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	Generation(ctx context.Context) (int64, error)
	SetProducts(ctx context.Context, generation int64, products []domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopCatalogCache) SetProducts(_ context.Context, _ int64, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}

// LocalCatalogCache keeps the listing in process memory. It serves a single
// instance; replicas share RedisCatalogCache instead.
type LocalCatalogCache struct {
	mu         sync.Mutex
	generation int64
	stored     int64
	products   []domain.Product
	expires    time.Time
	now        func() time.Time
}

func NewLocalCatalogCache() *LocalCatalogCache {
	return &LocalCatalogCache{now: time.Now}
}

func (c *LocalCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.products == nil || c.stored != c.generation || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return append([]domain.Product(nil), c.products...), true, nil
}

func (c *LocalCatalogCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *LocalCatalogCache) SetProducts(_ context.Context, generation int64, products []domain.Product, ttl time.Duration) error {
	if products == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return nil
	}
	c.stored = generation
	c.products = append([]domain.Product(nil), products...)
	c.expires = c.now().Add(ttl)
	return nil
}

func (c *LocalCatalogCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.products = nil
	return nil
}
