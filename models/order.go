package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

// Order is a placed checkout. GatewayAmount is Total in rials as fixed at
// checkout; payment verification repeats exactly that amount.
type Order struct {
	gorm.Model
	UserID           uint `gorm:"index"`
	User             User `json:"-"`
	OrderItems       []OrderItem
	Status           string          `gorm:"not null;index"`
	Currency         string          `gorm:"size:3;not null"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	ShippingCost     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Total            decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	GatewayAmount    decimal.Decimal `gorm:"type:decimal(20,0);not null;default:0"`
	Recipient        string          `gorm:"not null"`
	Phone            string          `gorm:"not null"`
	Province         string          `gorm:"not null"`
	City             string          `gorm:"not null"`
	Street           string          `gorm:"not null"`
	PostalCode       string
	PaymentReference string `gorm:"uniqueIndex"`
	PaymentAuthority string `gorm:"index"`
	PaymentRefID     string
	PaidAt           *time.Time
}

var orderTransitions = map[string][]string{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReleasesStock reports whether entering status returns reserved units to stock.
func ReleasesStock(status string) bool {
	return status == OrderStatusCancelled
}
