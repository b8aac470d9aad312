package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderItem struct {
	gorm.Model
	OrderID     uint `gorm:"index"`
	VariantID   uint
	ProductID   uint
	ProductName string
	Size        string
	Color       string
	Quantity    uint            `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
}
