package models

import "gorm.io/gorm"

type ShippingAddress struct {
	gorm.Model
	UserID     uint   `gorm:"index"`
	Recipient  string `gorm:"not null"`
	Phone      string `gorm:"not null"`
	Province   string `gorm:"not null"`
	City       string `gorm:"not null"`
	Street     string `gorm:"not null"`
	PostalCode string
	IsDefault  bool
}
