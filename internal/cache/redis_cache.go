package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lojapdv/backend/internal/domain"
)

const catalogKey = "lojapdv:catalog"

type RedisCatalogCache struct {
	client *redis.Client
	key    string
}

type catalogEntry struct {
	Generation int64            `json:"generation"`
	Products   []domain.Product `json:"products"`
}

func NewRedisCatalogCache(client *redis.Client) *RedisCatalogCache {
	return &RedisCatalogCache{client: client, key: catalogKey}
}

func (c *RedisCatalogCache) productsKey() string   { return c.key + ":products" }
func (c *RedisCatalogCache) generationKey() string { return c.key + ":generation" }

func (c *RedisCatalogCache) GetProducts(ctx context.Context) ([]domain.Product, bool, error) {
	vals, err := c.client.MGet(ctx, c.productsKey(), c.generationKey()).Result()
	if err != nil {
		return nil, false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, false, nil
	}
	current, err := parseGeneration(vals[1])
	if err != nil {
		return nil, false, err
	}

	var entry catalogEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, err
	}
	if entry.Generation != current {
		return nil, false, nil
	}
	return entry.Products, true, nil
}

func (c *RedisCatalogCache) Generation(ctx context.Context) (int64, error) {
	val, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// SetProducts writes unconditionally; GetProducts drops an entry whose
// generation is behind the counter.
func (c *RedisCatalogCache) SetProducts(ctx context.Context, generation int64, products []domain.Product, ttl time.Duration) error {
	if products == nil {
		return nil
	}
	payload, err := json.Marshal(catalogEntry{Generation: generation, Products: products})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.productsKey(), payload, ttl).Err()
}

func (c *RedisCatalogCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey())
		pipe.Del(ctx, c.productsKey())
		return nil
	})
	return err
}

func parseGeneration(val any) (int64, error) {
	raw, ok := val.(string)
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
