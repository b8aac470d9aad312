package models

import "gorm.io/gorm"

type Review struct {
	gorm.Model
	ProductID uint `gorm:"uniqueIndex:idx_review_user_product"`
	UserID    uint `gorm:"uniqueIndex:idx_review_user_product"`
	User      User `json:"-"`
	Rating    uint `gorm:"not null"`
	Title     string
	Body      string
	Approved  bool `gorm:"not null;default:false"`
}

type Bookmark struct {
	gorm.Model
	UserID    uint `gorm:"uniqueIndex:idx_bookmark_user_product"`
	ProductID uint `gorm:"uniqueIndex:idx_bookmark_user_product"`
	Product   Product
}
