package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojapdv/backend/internal/domain"
)

func TestNoopCatalogCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCatalogCache{}
	require.NoError(t, c.SetProducts(context.Background(), 0, []domain.Product{{ID: "p1"}}, time.Minute))

	products, ok, err := c.GetProducts(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, products)
}

func TestRedisCatalogCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("LOJAPDV_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LOJAPDV_TEST_REDIS_ADDR to run redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	c := NewRedisCatalogCache(client)
	c.key = fmt.Sprintf("lojapdv:test:catalog:%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = client.Del(ctx, c.productsKey(), c.generationKey()).Err() })

	_, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []domain.Product{{ID: "p1", Name: "Cabo", SalePrice: decimal.RequireFromString("24.90"), Stock: 3}}
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetProducts(ctx, gen, want, time.Minute))

	got, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Cabo", got[0].Name)
	assert.True(t, got[0].SalePrice.Equal(want[0].SalePrice))

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// A fill that started before the invalidation is not served.
	require.NoError(t, c.SetProducts(ctx, gen, want, time.Minute))
	_, ok, err = c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalCatalogCacheRejectsFillFromOlderGeneration(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCatalogCache()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.SetProducts(ctx, gen, []domain.Product{{ID: "p1", Stock: 5}}, time.Minute))

	_, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "listing read before the invalidation must not be cached")

	gen, err = c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetProducts(ctx, gen, []domain.Product{{ID: "p1", Stock: 2}}, time.Minute))
	got, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got[0].Stock)
}

func TestLocalCatalogCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := NewLocalCatalogCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetProducts(ctx, 0, []domain.Product{{ID: "p1"}}, time.Minute))
	_, ok, _ := c.GetProducts(ctx)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.GetProducts(ctx)
	assert.False(t, ok)
}
