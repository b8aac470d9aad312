package models

import "gorm.io/gorm"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Phone             *string `gorm:"uniqueIndex"`
	Username          *string `gorm:"uniqueIndex"`
	Email             string
	Password          string `json:"-"`
	Name              string
	Locale            string `gorm:"not null;default:'en'"`
	Role              string `gorm:"not null;default:'user'"`
	Cart              Cart
	Orders            []Order
	ShippingAddresses []ShippingAddress
	LoginTokens       []LoginToken `json:"-"`
}
