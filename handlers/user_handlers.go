package handlers

import (
	"errors"
	"net/http"
	"slices"

	"Storefront/i18n"
	"Storefront/models"
	"Storefront/otp"
	"Storefront/shipping"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 查詢使用者資料
func GetUserProfileHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		dbError(c, "request.unauthorized", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
	})
}

// 變更使用者資料
func UpdateUserProfileHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var newUserData struct {
		Name   *string `json:"name"`
		Email  *string `json:"email"`
		Locale *string `json:"locale"`
	}
	if err := c.ShouldBindJSON(&newUserData); err != nil {
		badRequest(c, err)
		return
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		dbError(c, "request.unauthorized", err)
		return
	}

	//如果使用者有提供資料則覆蓋(包含空字串)
	if newUserData.Name != nil {
		user.Name = *newUserData.Name
	}
	if newUserData.Email != nil {
		if *newUserData.Email != "" && !ValidateEmail(*newUserData.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "profile.invalid_email")})
			return
		}
		user.Email = *newUserData.Email
	}
	if newUserData.Locale != nil {
		if !slices.Contains(i18n.Supported(), *newUserData.Locale) {
			c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "profile.invalid_locale")})
			return
		}
		user.Locale = *newUserData.Locale
	}

	if err := db.Save(&user).Error; err != nil {
		serverError(c, "save profile", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "profile.updated"),
		"user":    user,
	})
}

type addressRequest struct {
	Recipient  string `json:"recipient" binding:"required"`
	Phone      string `json:"phone" binding:"required,phone"`
	Province   string `json:"province" binding:"required"`
	City       string `json:"city" binding:"required"`
	Street     string `json:"street" binding:"required"`
	PostalCode string `json:"postalCode" binding:"omitempty,numeric,len=10"`
	IsDefault  bool   `json:"isDefault"`
}

func (r addressRequest) apply(a *models.ShippingAddress) {
	phone, _ := otp.NormalizePhone(r.Phone)
	a.Recipient = r.Recipient
	a.Phone = phone
	a.Province = shipping.NormalizeProvince(r.Province)
	a.City = r.City
	a.Street = r.Street
	a.PostalCode = r.PostalCode
	a.IsDefault = r.IsDefault
}

// saveAddress stores a and keeps at most one default address per user.
func saveAddress(db *gorm.DB, a *models.ShippingAddress) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if a.IsDefault {
			err := tx.Model(&models.ShippingAddress{}).
				Where("user_id = ? AND id <> ?", a.UserID, a.ID).
				Update("is_default", false).
				Error
			if err != nil {
				return err
			}
		} else {
			var count int64
			if err := tx.Model(&models.ShippingAddress{}).Where("user_id = ? AND id <> ?", a.UserID, a.ID).Count(&count).Error; err != nil {
				return err
			}
			// the first address becomes the default
			a.IsDefault = count == 0
		}
		return tx.Save(a).Error
	})
}

// 查詢收件地址列表
func GetAddressListHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var addresses []models.ShippingAddress
	err := db.Where("user_id = ?", userID).Order("is_default DESC, id").Find(&addresses).Error
	if err != nil {
		serverError(c, "load addresses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"addresses": addresses,
	})
}

// 新增收件地址
func CreateAddressHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !shipping.IsProvince(req.Province) {
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "shipping.unknown_province")})
		return
	}

	address := models.ShippingAddress{UserID: userID}
	req.apply(&address)
	if err := saveAddress(db, &address); err != nil {
		serverError(c, "create address", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": i18n.Tr(c, "address.saved"),
		"address": address,
	})
}

// 修改收件地址
func UpdateAddressHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	addressID, ok := uintParam(c, "addressID")
	if !ok {
		return
	}

	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !shipping.IsProvince(req.Province) {
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "shipping.unknown_province")})
		return
	}

	var address models.ShippingAddress
	if err := db.Where("id = ? AND user_id = ?", addressID, userID).First(&address).Error; err != nil {
		dbError(c, "address.not_found", err)
		return
	}
	req.apply(&address)
	if err := saveAddress(db, &address); err != nil {
		serverError(c, "update address", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "address.saved"),
		"address": address,
	})
}

// 刪除收件地址
func DeleteAddressHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	addressID, ok := uintParam(c, "addressID")
	if !ok {
		return
	}

	result := db.Where("id = ? AND user_id = ?", addressID, userID).Delete(&models.ShippingAddress{})
	if result.Error != nil {
		serverError(c, "delete address", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		notFound(c, "address.not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "address.deleted"),
	})
}

// 新增商品評論，需經管理員審核後才會顯示
func CreateReviewHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}

	var req struct {
		Rating uint   `json:"rating" binding:"required,min=1,max=5"`
		Title  string `json:"title" binding:"max=120"`
		Body   string `json:"body" binding:"max=4000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var product models.Product
	if err := db.Where("published = ?", true).First(&product, productID).Error; err != nil {
		dbError(c, "product.not_found", err)
		return
	}

	var count int64
	if err := db.Model(&models.Review{}).Where("user_id = ? AND product_id = ?", userID, productID).Count(&count).Error; err != nil {
		serverError(c, "count reviews", err)
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"message": i18n.Tr(c, "review.duplicate")})
		return
	}

	review := models.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    req.Rating,
		Title:     req.Title,
		Body:      req.Body,
	}
	if err := db.Create(&review).Error; err != nil {
		serverError(c, "create review", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  i18n.Tr(c, "review.created"),
		"reviewID": review.ID,
	})
}

// 收藏或取消收藏商品
func ToggleBookmarkHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}

	var bookmark models.Bookmark
	err := db.Unscoped().Where("user_id = ? AND product_id = ?", userID, productID).First(&bookmark).Error
	switch {
	case err == nil:
		if err := db.Unscoped().Delete(&bookmark).Error; err != nil {
			serverError(c, "delete bookmark", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":    i18n.Tr(c, "bookmark.removed"),
			"bookmarked": false,
		})
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		serverError(c, "load bookmark", err)
		return
	}

	var product models.Product
	if err := db.Where("published = ?", true).First(&product, productID).Error; err != nil {
		dbError(c, "product.not_found", err)
		return
	}
	bookmark = models.Bookmark{UserID: userID, ProductID: productID}
	if err := db.Create(&bookmark).Error; err != nil {
		serverError(c, "create bookmark", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    i18n.Tr(c, "bookmark.added"),
		"bookmarked": true,
	})
}

// 查詢收藏商品列表
func GetBookmarkListHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var bookmarks []models.Bookmark
	err := db.
		Preload("Product.Translations").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookmarks).
		Error
	if err != nil {
		serverError(c, "load bookmarks", err)
		return
	}

	locale := i18n.Locale(c)
	items := make([]gin.H, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b.Product.ID == 0 {
			continue
		}
		items = append(items, gin.H{
			"productID": b.ProductID,
			"slug":      b.Product.Slug,
			"name":      b.Product.Translation(locale).Name,
			"imageURL":  b.Product.ImageURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"bookmarks": items,
	})
}
