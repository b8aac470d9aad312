// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"Storefront/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory sqlite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// VariantSpec describes a variant created by SeedProduct.
type VariantSpec struct {
	SKU      string
	Price    string
	Currency string
	Stock    uint
	Weight   uint
}

// SeedProduct creates a published product with an English and a Persian
// translation and the given variants.
func SeedProduct(t *testing.T, db *gorm.DB, slug string, variants ...VariantSpec) models.Product {
	t.Helper()
	product := models.Product{
		Slug:      slug,
		Published: true,
		Translations: []models.ProductTranslation{
			{Locale: "en", Name: "Product " + slug},
			{Locale: "fa", Name: "محصول " + slug},
		},
	}
	for _, v := range variants {
		product.Variants = append(product.Variants, models.ProductVariant{
			SKU:         v.SKU,
			Size:        "M",
			Color:       "black",
			Price:       decimal.RequireFromString(v.Price),
			Currency:    v.Currency,
			Stock:       v.Stock,
			WeightGrams: v.Weight,
		})
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}
