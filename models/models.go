package models

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&LoginToken{},
		&Category{},
		&Product{},
		&ProductTranslation{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&ShippingAddress{},
		&Order{},
		&OrderItem{},
		&Review{},
		&Bookmark{},
	}
}
