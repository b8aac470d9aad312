package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CartItem struct {
	gorm.Model
	CartID    uint `gorm:"index"`
	VariantID uint
	Variant   ProductVariant
	Quantity  uint            `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency  string          `gorm:"size:3;not null"`
}
