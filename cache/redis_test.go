package cache_test

import (
	"context"
	"testing"

	"Storefront/cache"
	"Storefront/models"
	"Storefront/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCacheTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func cachedProduct(id uint, slug string) *models.Product {
	return &models.Product{Model: gorm.Model{ID: id}, Slug: slug, Published: true}
}

func slugs(products []models.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Slug
	}
	return out
}

func TestRedisProductCachePutReplacesByScore(t *testing.T) {
	_, rdb := setupCacheTestRedis(t)
	c := cache.NewRedisProductCache(rdb, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, cachedProduct(2, "hat")))
	require.NoError(t, c.Put(ctx, cachedProduct(1, "shirt")))
	require.NoError(t, c.Put(ctx, cachedProduct(1, "shirt-v2")))

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shirt-v2", "hat"}, slugs(all))
	assert.Equal(t, uint(1), all[0].ID)

	page, err := c.Range(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"hat"}, slugs(page))

	require.NoError(t, c.Remove(ctx, 1))
	all, err = c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hat"}, slugs(all))
}

func TestRedisProductCacheReplace(t *testing.T) {
	mr, rdb := setupCacheTestRedis(t)
	c := cache.NewRedisProductCache(rdb, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, cachedProduct(9, "old")))
	require.NoError(t, c.Replace(ctx, []models.Product{*cachedProduct(4, "lamp"), *cachedProduct(3, "mug")}))

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mug", "lamp"}, slugs(all))

	require.NoError(t, c.Replace(ctx, nil))
	assert.False(t, mr.Exists("products"))
}

func TestRedisProductCacheSkipsUndecodableMembers(t *testing.T) {
	_, rdb := setupCacheTestRedis(t)
	c := cache.NewRedisProductCache(rdb, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, cachedProduct(1, "shirt")))
	require.NoError(t, rdb.ZAdd(ctx, "products", redis.Z{Score: 2, Member: "not json"}).Err())

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shirt"}, slugs(all))
}

func TestCatalogOverRedis(t *testing.T) {
	db := testutil.NewDB(t)
	_, rdb := setupCacheTestRedis(t)
	ctx := context.Background()

	first := testutil.SeedProduct(t, db, "shirt", testutil.VariantSpec{SKU: "S-1", Price: "100", Currency: "USD", Stock: 3})
	testutil.SeedProduct(t, db, "hat", testutil.VariantSpec{SKU: "H-1", Price: "50", Currency: "USD", Stock: 1})

	catalog := cache.NewCatalog(db, cache.NewRedisProductCache(rdb, zap.NewNop()), zap.NewNop())
	products, total, err := catalog.Page(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"shirt", "hat"}, slugs(products))
	require.Len(t, products[0].Variants, 1)
	assert.Equal(t, "S-1", products[0].Variants[0].SKU)

	card, err := rdb.ZCard(ctx, "products").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", first.ID).Update("published", false).Error)
	require.NoError(t, catalog.Refresh(ctx, first.ID))
	products, total, err = catalog.Page(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"hat"}, slugs(products))
}
