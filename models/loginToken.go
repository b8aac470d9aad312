package models

import (
	"time"

	"gorm.io/gorm"
)

type LoginToken struct {
	gorm.Model
	Token          string `gorm:"uniqueIndex;size:1024"`
	ExpirationTime time.Time
	UserID         uint `gorm:"index"`
	Role           string
}
