package models

import "gorm.io/gorm"

type Cart struct {
	gorm.Model
	UserID            *uint      `gorm:"uniqueIndex"`
	AnonymousCartUUID *string    `gorm:"uniqueIndex"`
	LockedCurrency    string     `gorm:"size:3"`
	CartItems         []CartItem `gorm:"foreignKey:CartID"`
}
