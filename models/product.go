package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category struct {
	gorm.Model
	Name     string    `gorm:"uniqueIndex;not null"`
	Products []Product `gorm:"many2many:category_products;" json:"-"`
}

type Product struct {
	gorm.Model
	Slug         string `gorm:"uniqueIndex;not null"`
	ImageURL     string
	Published    bool `gorm:"not null;index"`
	Translations []ProductTranslation
	Variants     []ProductVariant
	Categories   []Category `gorm:"many2many:category_products;"`
	Reviews      []Review   `json:"-"`
}

// ProductTranslation carries the localized name and description of a product.
type ProductTranslation struct {
	gorm.Model
	ProductID   uint   `gorm:"uniqueIndex:idx_product_locale"`
	Locale      string `gorm:"uniqueIndex:idx_product_locale;size:8;not null"`
	Name        string `gorm:"not null"`
	Description string
}

// ProductVariant is a size/color combination with its own price and stock.
type ProductVariant struct {
	gorm.Model
	ProductID   uint    `gorm:"index"`
	Product     Product `json:"-"`
	SKU         string  `gorm:"uniqueIndex;not null"`
	Size        string
	Color       string
	Price       decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency    string          `gorm:"size:3;not null"`
	Stock       uint            `gorm:"not null"`
	WeightGrams uint
	LengthCm    uint
	WidthCm     uint
	HeightCm    uint
}

// Translation picks the translation for locale, falling back to the first one.
func (p *Product) Translation(locale string) ProductTranslation {
	for _, t := range p.Translations {
		if t.Locale == locale {
			return t
		}
	}
	if len(p.Translations) > 0 {
		return p.Translations[0]
	}
	return ProductTranslation{Name: p.Slug}
}
