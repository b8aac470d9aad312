package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"Storefront/cache"
	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/logger"
	"Storefront/models"
	"Storefront/payment"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func isValidImageExtensions(file *multipart.FileHeader) bool {
	allowExtensions := []string{".jpg", ".jpeg", ".png"}
	fileExt := strings.ToLower(filepath.Ext(file.Filename))
	return slices.Contains(allowExtensions, fileExt)
}

func makeUniqueFileName(file *multipart.FileHeader) string {
	fileExt := filepath.Ext(file.Filename)
	fileBase := strings.TrimSuffix(filepath.Base(file.Filename), fileExt)
	return fmt.Sprintf("%s_%d%s", fileBase, time.Now().UnixNano(), strings.ToLower(fileExt))
}

// 查詢使用者列表
func GetUserListHandler(c *gin.Context, db *gorm.DB) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}

	var users []models.User
	var total int64
	query := db.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.Count(&total).Error; err != nil {
		serverError(c, "count users", err)
		return
	}
	if err := query.Order("id").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		serverError(c, "load users", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userList":   users,
		"totalCount": total,
	})
}

type translationRequest struct {
	Locale      string `json:"locale" binding:"required,oneof=en fa"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type variantRequest struct {
	ID          uint   `json:"id"`
	SKU         string `json:"sku" binding:"required"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	Price       string `json:"price" binding:"required"`
	Currency    string `json:"currency" binding:"required,currency"`
	Stock       uint   `json:"stock"`
	WeightGrams uint   `json:"weightGrams"`
	LengthCm    uint   `json:"length"`
	WidthCm     uint   `json:"width"`
	HeightCm    uint   `json:"height"`
}

func (r variantRequest) toModel(productID uint) (models.ProductVariant, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil || !price.IsPositive() {
		return models.ProductVariant{}, fmt.Errorf("variant %s: price must be a positive number", r.SKU)
	}
	v := models.ProductVariant{
		ProductID:   productID,
		SKU:         r.SKU,
		Size:        r.Size,
		Color:       r.Color,
		Price:       currency.Round(price, r.Currency),
		Currency:    currency.Normalize(r.Currency),
		Stock:       r.Stock,
		WeightGrams: r.WeightGrams,
		LengthCm:    r.LengthCm,
		WidthCm:     r.WidthCm,
		HeightCm:    r.HeightCm,
	}
	v.ID = r.ID
	return v, nil
}

// resolveCategories finds categories by name and creates the missing ones.
func resolveCategories(tx *gorm.DB, names []string) ([]models.Category, error) {
	categories := make([]models.Category, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var category models.Category
		if err := tx.Where(models.Category{Name: name}).FirstOrCreate(&category).Error; err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func refreshCatalog(c *gin.Context, catalog *cache.Catalog, productID uint) {
	if err := catalog.Refresh(c.Request.Context(), productID); err != nil {
		logger.FromGin(c).Warn("無法更新商品快取", zap.Uint("product_id", productID), zap.Error(err))
	}
}

// 查詢商品完整資料
func GetProductAllDataHandler(c *gin.Context, db *gorm.DB) {
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}

	var product models.Product
	err := db.
		Preload("Translations").
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Categories").
		First(&product, productID).
		Error
	if err != nil {
		dbError(c, "product.not_found", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product": product,
	})
}

// 上傳商品圖片
func UploadImageHandler(c *gin.Context, uploadsDir string) {
	file, err := c.FormFile("image")
	if err != nil {
		badRequest(c, err)
		return
	}
	if !isValidImageExtensions(file) {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": i18n.Tr(c, "image.invalid"),
		})
		return
	}

	//檢查uploads資料夾是否存在，如不存在則創建
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		serverError(c, "create uploads dir", err)
		return
	}

	imageName := makeUniqueFileName(file)
	filePath := filepath.Join(uploadsDir, imageName)
	if err := c.SaveUploadedFile(file, filePath); err != nil {
		serverError(c, "save image", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   i18n.Tr(c, "image.uploaded"),
		"imagePath": "/uploads/" + imageName,
	})
}

// 新增商品
func CreateProductHandler(c *gin.Context, db *gorm.DB, catalog *cache.Catalog) {
	var req struct {
		Slug         string               `json:"slug" binding:"required"`
		ImageURL     string               `json:"imageURL"`
		Published    bool                 `json:"published"`
		Translations []translationRequest `json:"translations" binding:"required,min=1,dive"`
		Variants     []variantRequest     `json:"variants" binding:"required,min=1,dive"`
		Categories   []string             `json:"categories"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product := models.Product{
		Slug:      req.Slug,
		ImageURL:  req.ImageURL,
		Published: req.Published,
	}
	for _, t := range req.Translations {
		product.Translations = append(product.Translations, models.ProductTranslation{
			Locale:      t.Locale,
			Name:        t.Name,
			Description: t.Description,
		})
	}
	for _, v := range req.Variants {
		variant, err := v.toModel(0)
		if err != nil {
			badRequest(c, err)
			return
		}
		variant.ID = 0
		product.Variants = append(product.Variants, variant)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		categories, err := resolveCategories(tx, req.Categories)
		if err != nil {
			return err
		}
		product.Categories = categories
		return tx.Create(&product).Error
	})
	if err != nil {
		serverError(c, "create product", err)
		return
	}
	refreshCatalog(c, catalog, product.ID)

	c.JSON(http.StatusCreated, gin.H{
		"message": i18n.Tr(c, "product.created"),
		"product": product,
	})
}

// 修改商品。有提供的欄位才會覆蓋；variants 以 id 對應，未列出的規格會被刪除。
func UpdateProductHandler(c *gin.Context, db *gorm.DB, catalog *cache.Catalog) {
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}

	var req struct {
		Slug         *string              `json:"slug"`
		ImageURL     *string              `json:"imageURL"`
		Published    *bool                `json:"published"`
		Translations []translationRequest `json:"translations" binding:"omitempty,dive"`
		Variants     []variantRequest     `json:"variants" binding:"omitempty,dive"`
		Categories   []string             `json:"categories"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var variants []models.ProductVariant
	for _, v := range req.Variants {
		variant, err := v.toModel(productID)
		if err != nil {
			badRequest(c, err)
			return
		}
		variants = append(variants, variant)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}

		if req.Slug != nil {
			product.Slug = *req.Slug
		}
		if req.ImageURL != nil {
			product.ImageURL = *req.ImageURL
		}
		if req.Published != nil {
			product.Published = *req.Published
		}
		if err := tx.Save(&product).Error; err != nil {
			return err
		}

		for _, t := range req.Translations {
			translation := models.ProductTranslation{ProductID: product.ID, Locale: t.Locale}
			if err := tx.Where(translation).FirstOrInit(&translation).Error; err != nil {
				return err
			}
			translation.Name = t.Name
			translation.Description = t.Description
			if err := tx.Save(&translation).Error; err != nil {
				return err
			}
		}

		if req.Variants != nil {
			keep := make([]uint, 0, len(variants))
			for i := range variants {
				if variants[i].ID != 0 {
					keep = append(keep, variants[i].ID)
				}
			}
			remove := tx.Where("product_id = ?", product.ID)
			if len(keep) > 0 {
				remove = remove.Where("id NOT IN ?", keep)
			}
			if err := remove.Delete(&models.ProductVariant{}).Error; err != nil {
				return err
			}
			for i := range variants {
				if variants[i].ID != 0 {
					var existing models.ProductVariant
					if err := tx.Where("id = ? AND product_id = ?", variants[i].ID, product.ID).First(&existing).Error; err != nil {
						return err
					}
					variants[i].CreatedAt = existing.CreatedAt
				}
				if err := tx.Save(&variants[i]).Error; err != nil {
					return err
				}
			}
		}

		if req.Categories != nil {
			categories, err := resolveCategories(tx, req.Categories)
			if err != nil {
				return err
			}
			if err := tx.Model(&product).Association("Categories").Replace(categories); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		dbError(c, "product.not_found", err)
		return
	}
	refreshCatalog(c, catalog, productID)

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "product.updated"),
	})
}

// 刪除商品
func DeleteProductHandler(c *gin.Context, db *gorm.DB, catalog *cache.Catalog) {
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		if err := tx.Model(&product).Association("Categories").Clear(); err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductVariant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		dbError(c, "product.not_found", err)
		return
	}
	refreshCatalog(c, catalog, productID)

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "product.deleted"),
	})
}

// 刪除商品標籤
func DeleteCategoryHandler(c *gin.Context, db *gorm.DB, catalog *cache.Catalog) {
	categoryID, ok := uintParam(c, "categoryID")
	if !ok {
		return
	}

	var category models.Category
	if err := db.Preload("Products").First(&category, categoryID).Error; err != nil {
		dbError(c, "category.not_found", err)
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&category).Association("Products").Clear(); err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		serverError(c, "delete category", err)
		return
	}
	for _, product := range category.Products {
		refreshCatalog(c, catalog, product.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "category.deleted"),
	})
}

// 查詢所有訂單，可用 status 篩選
func GetAllOrdersHandler(c *gin.Context, db *gorm.DB) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}

	query := db.Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		serverError(c, "count orders", err)
		return
	}
	var orders []models.Order
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		serverError(c, "load orders", err)
		return
	}

	orderList := make([]gin.H, 0, len(orders))
	for i := range orders {
		body := orderJSON(c, &orders[i])
		body["userID"] = orders[i].UserID
		orderList = append(orderList, body)
	}
	c.JSON(http.StatusOK, gin.H{
		"orderList":  orderList,
		"totalCount": total,
	})
}

// 變更訂單狀態，取消訂單時歸還庫存
func UpdateOrderStatusHandler(c *gin.Context, db *gorm.DB, catalog *cache.Catalog, gateway payment.Gateway) {
	orderID, ok := uintParam(c, "orderID")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var order models.Order
	if err := db.First(&order, orderID).Error; err != nil {
		dbError(c, "order.not_found", err)
		return
	}

	//付款頁面可能仍在進行中，取消前先向閘道確認是否已付款
	if order.Status == models.OrderStatusPendingPayment && order.PaymentAuthority != "" && req.Status == models.OrderStatusCancelled {
		ctx := c.Request.Context()
		log := logger.FromGin(c).With(zap.Uint("order_id", order.ID), zap.String("authority", order.PaymentAuthority))
		verification, err := gateway.Verify(ctx, order.PaymentAuthority, order.GatewayAmount)
		switch {
		case err == nil:
			if err := markPaid(ctx, db, &order, verification.RefID); err != nil {
				serverError(c, "mark order paid", err)
				return
			}
			log.Info("payment captured before cancellation", zap.String("ref_id", verification.RefID))
			c.JSON(http.StatusConflict, gin.H{
				"message": i18n.Tr(c, "order.already_paid"),
				"status":  order.Status,
			})
			return
		case !errors.Is(err, payment.ErrVerificationFailed):
			log.Error("verify payment before cancellation", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"message": i18n.Tr(c, "server.error"),
				"error":   err.Error(),
			})
			return
		}
	}

	errInvalidTransition := errors.New("invalid status transition")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Preload("OrderItems").First(&order, orderID).Error; err != nil {
			return err
		}
		if !models.CanTransition(order.Status, req.Status) {
			return errInvalidTransition
		}
		if err := tx.Model(&order).Update("status", req.Status).Error; err != nil {
			return err
		}
		if models.ReleasesStock(req.Status) {
			return restoreStock(tx, &order)
		}
		return nil
	})
	if errors.Is(err, errInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{
			"message": i18n.Tr(c, "order.status_invalid"),
			"from":    order.Status,
			"to":      req.Status,
		})
		return
	}
	if err != nil {
		dbError(c, "order.not_found", err)
		return
	}
	order.Status = req.Status
	if models.ReleasesStock(req.Status) {
		for _, item := range order.OrderItems {
			refreshCatalog(c, catalog, item.ProductID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "order.status_updated"),
		"status":  order.Status,
	})
}

// 查詢評論，可用 approved=false 找出待審核評論
func GetReviewListHandler(c *gin.Context, db *gorm.DB) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}

	query := db.Model(&models.Review{})
	switch c.Query("approved") {
	case "true":
		query = query.Where("approved = ?", true)
	case "false":
		query = query.Where("approved = ?", false)
	}
	var reviews []models.Review
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reviews).Error; err != nil {
		serverError(c, "load reviews", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews": reviews,
	})
}

// 審核通過評論
func ApproveReviewHandler(c *gin.Context, db *gorm.DB) {
	reviewID, ok := uintParam(c, "reviewID")
	if !ok {
		return
	}

	result := db.Model(&models.Review{}).Where("id = ?", reviewID).Update("approved", true)
	if result.Error != nil {
		serverError(c, "approve review", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		notFound(c, "review.not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "review.approved"),
	})
}

// 刪除評論
func DeleteReviewHandler(c *gin.Context, db *gorm.DB) {
	reviewID, ok := uintParam(c, "reviewID")
	if !ok {
		return
	}

	result := db.Delete(&models.Review{}, reviewID)
	if result.Error != nil {
		serverError(c, "delete review", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		notFound(c, "review.not_found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "review.deleted"),
	})
}

// RateEditor is a rate source whose overrides can be changed at runtime.
type RateEditor interface {
	currency.RateSource
	Set(ctx context.Context, code string, rate decimal.Decimal) error
	Reset(ctx context.Context) error
}

type revenueRow struct {
	Currency string
	Revenue  decimal.Decimal
	Orders   int64
}

func loadDashboard(ctx context.Context, db *gorm.DB) (gin.H, error) {
	db = db.WithContext(ctx)

	var users, products, pendingReviews int64
	if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).Count(&products).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Review{}).Where("approved = ?", false).Count(&pendingReviews).Error; err != nil {
		return nil, err
	}

	var statusRows []struct {
		Status string
		Count  int64
	}
	err := db.Model(&models.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&statusRows).
		Error
	if err != nil {
		return nil, err
	}
	ordersByStatus := make(map[string]int64, len(statusRows))
	for _, row := range statusRows {
		ordersByStatus[row.Status] = row.Count
	}

	var revenue []revenueRow
	err = db.Model(&models.Order{}).
		Select("currency, SUM(total) AS revenue, COUNT(*) AS orders").
		Where("status IN ?", []string{
			models.OrderStatusPaid,
			models.OrderStatusProcessing,
			models.OrderStatusShipped,
			models.OrderStatusDelivered,
		}).
		Group("currency").
		Order("currency").
		Scan(&revenue).
		Error
	if err != nil {
		return nil, err
	}

	var lowStock int64
	if err := db.Model(&models.ProductVariant{}).Where("stock < ?", 5).Count(&lowStock).Error; err != nil {
		return nil, err
	}

	return gin.H{
		"users":            users,
		"products":         products,
		"pendingReviews":   pendingReviews,
		"lowStockVariants": lowStock,
		"ordersByStatus":   ordersByStatus,
		"revenue":          revenue,
	}, nil
}

// 管理後台總覽
func GetDashboardHandler(c *gin.Context, db *gorm.DB) {
	dashboard, err := loadDashboard(c.Request.Context(), db)
	if err != nil {
		serverError(c, "load dashboard", err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// 設定匯率，rate 為每單位外幣可換得的基準幣別數量
func UpdateCurrencyRateHandler(c *gin.Context, rates RateEditor) {
	var req struct {
		Code string `json:"code" binding:"required,currency"`
		Rate string `json:"rate" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := rates.Set(c.Request.Context(), req.Code, rate); err != nil {
		if errors.Is(err, currency.ErrInvalidRate) || errors.Is(err, currency.ErrUnsupportedCurrency) {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": i18n.Tr(c, "currency.rate_invalid"),
				"error":   err.Error(),
			})
			return
		}
		serverError(c, "set currency rate", err)
		return
	}

	GetCurrenciesHandler(c, rates)
}

// 清除所有匯率覆寫，回到設定檔數值
func ResetCurrencyRatesHandler(c *gin.Context, rates RateEditor) {
	if err := rates.Reset(c.Request.Context()); err != nil {
		serverError(c, "reset currency rates", err)
		return
	}
	GetCurrenciesHandler(c, rates)
}
