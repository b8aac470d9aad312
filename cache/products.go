// Package cache keeps the published catalog in a redis sorted set scored by
// product id, so listing pages never touch the database on a warm cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"Storefront/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const productsKey = "products"

// ProductCache stores serialized products ordered by id.
type ProductCache interface {
	Range(ctx context.Context, offset, limit int64) ([]models.Product, error)
	All(ctx context.Context) ([]models.Product, error)
	Count(ctx context.Context) (int64, error)
	Put(ctx context.Context, product *models.Product) error
	Remove(ctx context.Context, productID uint) error
	Replace(ctx context.Context, products []models.Product) error
}

type RedisProductCache struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisProductCache(rdb *redis.Client, log *zap.Logger) *RedisProductCache {
	return &RedisProductCache{rdb: rdb, log: log.Named("product-cache")}
}

func (r *RedisProductCache) decode(members []string) []models.Product {
	products := make([]models.Product, 0, len(members))
	for _, member := range members {
		var product models.Product
		if err := json.Unmarshal([]byte(member), &product); err != nil {
			r.log.Warn("無法反序列化商品資料", zap.Error(err))
			continue
		}
		products = append(products, product)
	}
	return products
}

func (r *RedisProductCache) Range(ctx context.Context, offset, limit int64) ([]models.Product, error) {
	members, err := r.rdb.ZRange(ctx, productsKey, offset, offset+limit-1).Result()
	if err != nil {
		return nil, err
	}
	return r.decode(members), nil
}

func (r *RedisProductCache) All(ctx context.Context) ([]models.Product, error) {
	return r.Range(ctx, 0, 0)
}

func (r *RedisProductCache) Count(ctx context.Context) (int64, error) {
	return r.rdb.ZCard(ctx, productsKey).Result()
}

func (r *RedisProductCache) Put(ctx context.Context, product *models.Product) error {
	productJSON, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("無法序列化商品資料: %w", err)
	}

	score := strconv.FormatUint(uint64(product.ID), 10)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, productsKey, score, score)
		pipe.ZAdd(ctx, productsKey, redis.Z{Score: float64(product.ID), Member: productJSON})
		return nil
	})
	return err
}

func (r *RedisProductCache) Remove(ctx context.Context, productID uint) error {
	score := strconv.FormatUint(uint64(productID), 10)
	return r.rdb.ZRemRangeByScore(ctx, productsKey, score, score).Err()
}

func (r *RedisProductCache) Replace(ctx context.Context, products []models.Product) error {
	members := make([]redis.Z, 0, len(products))
	for i := range products {
		productJSON, err := json.Marshal(&products[i])
		if err != nil {
			r.log.Warn("無法序列化商品資料", zap.Uint("product_id", products[i].ID), zap.Error(err))
			continue
		}
		members = append(members, redis.Z{Score: float64(products[i].ID), Member: productJSON})
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, productsKey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, productsKey, members...)
		}
		return nil
	})
	return err
}

// MemoryProductCache is an in-process ProductCache for tests and single-node
// development runs.
type MemoryProductCache struct {
	mu       sync.RWMutex
	products map[uint]models.Product
}

func NewMemoryProductCache() *MemoryProductCache {
	return &MemoryProductCache{products: make(map[uint]models.Product)}
}

func (m *MemoryProductCache) sorted() []models.Product {
	products := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

func (m *MemoryProductCache) Range(_ context.Context, offset, limit int64) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	products := m.sorted()
	if offset >= int64(len(products)) {
		return nil, nil
	}
	end := int64(len(products))
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return products[offset:end], nil
}

func (m *MemoryProductCache) All(ctx context.Context) ([]models.Product, error) {
	return m.Range(ctx, 0, 0)
}

func (m *MemoryProductCache) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.products)), nil
}

func (m *MemoryProductCache) Put(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = *product
	return nil
}

func (m *MemoryProductCache) Remove(_ context.Context, productID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, productID)
	return nil
}

func (m *MemoryProductCache) Replace(_ context.Context, products []models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = make(map[uint]models.Product, len(products))
	for _, p := range products {
		m.products[p.ID] = p
	}
	return nil
}

// Catalog serves published products from the cache, refilling it from the
// database when it is empty.
type Catalog struct {
	db    *gorm.DB
	cache ProductCache
	log   *zap.Logger
}

func NewCatalog(db *gorm.DB, cache ProductCache, log *zap.Logger) *Catalog {
	return &Catalog{db: db, cache: cache, log: log}
}

func (c *Catalog) publishedQuery(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).
		Preload("Translations").
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Categories").
		Where("published = ?", true)
}

// Warm reloads every published product into the cache.
func (c *Catalog) Warm(ctx context.Context) error {
	var products []models.Product
	if err := c.publishedQuery(ctx).Order("id").Find(&products).Error; err != nil {
		return err
	}
	return c.cache.Replace(ctx, products)
}

func (c *Catalog) ensureWarm(ctx context.Context) (int64, error) {
	count, err := c.cache.Count(ctx)
	if err == nil && count > 0 {
		return count, nil
	}
	if err != nil {
		c.log.Warn("product cache unavailable, refilling", zap.Error(err))
	}
	if err := c.Warm(ctx); err != nil {
		return 0, err
	}
	return c.cache.Count(ctx)
}

// Page returns products [offset, offset+limit) and the total count.
func (c *Catalog) Page(ctx context.Context, offset, limit int) ([]models.Product, int64, error) {
	total, err := c.ensureWarm(ctx)
	if err != nil {
		return nil, 0, err
	}
	products, err := c.cache.Range(ctx, int64(offset), int64(limit))
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// All returns every cached published product.
func (c *Catalog) All(ctx context.Context) ([]models.Product, error) {
	if _, err := c.ensureWarm(ctx); err != nil {
		return nil, err
	}
	return c.cache.All(ctx)
}

// Refresh re-reads one product and updates or evicts its cache entry.
func (c *Catalog) Refresh(ctx context.Context, productID uint) error {
	var product models.Product
	err := c.publishedQuery(ctx).First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.cache.Remove(ctx, productID)
	}
	if err != nil {
		return err
	}
	return c.cache.Put(ctx, &product)
}
