package handlers

import (
	"errors"
	"net/http"

	"Storefront/cart"
	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/logger"
	"Storefront/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const anonymousCartCookie = "anonymous_cart_id"

// 從Cookie讀取匿名購物車ID
func getAnonymousCartID(c *gin.Context) string {
	anonymousCartID, err := c.Cookie(anonymousCartCookie)
	if err != nil {
		return ""
	}
	return anonymousCartID
}

// 儲存匿名購物車ID至Cookie
func setAnonymousCartID(c *gin.Context, cartID string) {
	c.SetCookie(anonymousCartCookie, cartID, 0, "/", "", false, true)
}

// findCart locates the caller's cart: the user's cart when signed in, the
// anonymous cookie cart otherwise. With create it makes one when missing.
func findCart(c *gin.Context, db *gorm.DB, create bool) (*models.Cart, error) {
	var m models.Cart
	if userID, ok := currentUserID(c); ok {
		err := db.Where("user_id = ?", userID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) && create {
			m = models.Cart{UserID: &userID}
			err = db.Create(&m).Error
		}
		if err != nil {
			return nil, err
		}
		return &m, nil
	}

	//判斷是否已有匿名購物車
	anonymousCartID := getAnonymousCartID(c)
	if anonymousCartID != "" {
		err := db.Where("anonymous_cart_uuid = ?", anonymousCartID).First(&m).Error
		if err == nil {
			return &m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if !create {
		return nil, gorm.ErrRecordNotFound
	}

	newAnonymousCartID := uuid.NewString()
	m = models.Cart{AnonymousCartUUID: &newAnonymousCartID}
	if err := db.Create(&m).Error; err != nil {
		return nil, err
	}
	setAnonymousCartID(c, newAnonymousCartID)
	return &m, nil
}

// cartError maps cart rule violations onto responses.
func cartError(c *gin.Context, state *cart.Cart, requested string, err error) {
	switch {
	case errors.Is(err, cart.ErrCurrencyMismatch):
		c.JSON(http.StatusConflict, gin.H{
			"message":        i18n.Tr(c, "cart.currency_mismatch", state.LockedCurrency, requested),
			"error":          err.Error(),
			"lockedCurrency": state.LockedCurrency,
		})
	case errors.Is(err, cart.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"message": i18n.Tr(c, "cart.out_of_stock")})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "cart.invalid_quantity")})
	case errors.Is(err, cart.ErrItemNotFound):
		notFound(c, "cart.item_not_found")
	case errors.Is(err, cart.ErrVariantGone):
		notFound(c, "product.not_found")
	case errors.Is(err, currency.ErrUnsupportedCurrency):
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "currency.unsupported")})
	default:
		serverError(c, "cart operation", err)
	}
}

func reportJSON(report cart.RevalidationReport) gin.H {
	return gin.H{
		"changed":  report.Changed(),
		"dropped":  nonNil(report.Dropped),
		"clamped":  nonNil(report.Clamped),
		"repriced": nonNil(report.Repriced),
	}
}

func nonNil(ids []uint) []uint {
	if ids == nil {
		return []uint{}
	}
	return ids
}

// renderCart writes the cart with localized names and totals.
func renderCart(c *gin.Context, db *gorm.DB, cartID uint, extra gin.H) {
	var m models.Cart
	err := db.
		Preload("CartItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("CartItems.Variant.Product.Translations").
		First(&m, cartID).
		Error
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}

	locale := i18n.Locale(c)
	state := cart.FromModel(&m)
	items := make([]gin.H, 0, len(m.CartItems))
	for _, item := range m.CartItems {
		product := item.Variant.Product
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		items = append(items, gin.H{
			"variantID": item.VariantID,
			"productID": product.ID,
			"name":      product.Translation(locale).Name,
			"imageURL":  product.ImageURL,
			"size":      item.Variant.Size,
			"color":     item.Variant.Color,
			"quantity":  item.Quantity,
			"stock":     item.Variant.Stock,
			"unitPrice": priceJSON(c, item.UnitPrice, item.Currency),
			"lineTotal": priceJSON(c, lineTotal, item.Currency),
		})
	}

	body := gin.H{
		"lockedCurrency": m.LockedCurrency,
		"items":          items,
		"totalQuantity":  state.TotalQuantity(),
	}
	if m.LockedCurrency != "" {
		body["subtotal"] = priceJSON(c, state.Subtotal(), m.LockedCurrency)
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// 新增商品至購物車
func AddToCartHandler(c *gin.Context, db *gorm.DB, carts *cart.Store, rateSource currency.RateSource) {
	var req struct {
		VariantID uint   `json:"variantID" binding:"required"`
		Quantity  uint   `json:"quantity" binding:"required,min=1"`
		Currency  string `json:"currency" binding:"omitempty,currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rates, ok := currentRates(c, rateSource)
	if !ok {
		return
	}
	code := currency.Normalize(req.Currency)
	if code == "" {
		if code, ok = displayCurrency(c, rates); !ok {
			return
		}
	}

	ctx := c.Request.Context()
	quote, err := carts.Lookup(ctx, req.VariantID, code)
	if err != nil {
		cartError(c, nil, code, err)
		return
	}

	m, err := findCart(c, db, true)
	if err != nil {
		serverError(c, "find cart", err)
		return
	}
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	state := cart.FromModel(m)
	err = state.Add(cart.Item{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		UnitPrice: quote.UnitPrice,
		Currency:  code,
	}, &quote.Stock)
	if err != nil {
		cartError(c, state, code, err)
		return
	}
	if err := carts.Save(ctx, m, state); err != nil {
		serverError(c, "save cart", err)
		return
	}

	item, _ := state.Find(req.VariantID)
	c.JSON(http.StatusOK, gin.H{
		"message":        i18n.Tr(c, "cart.item_added"),
		"variantID":      item.VariantID,
		"quantity":       item.Quantity,
		"lockedCurrency": state.LockedCurrency,
	})
}

// 更新購物車商品數量
func UpdateCartItemQuantityHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	var req struct {
		VariantID uint `json:"variantID" binding:"required"`
		Quantity  uint `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Quantity < 1 {
		cartError(c, nil, "", cart.ErrInvalidQuantity)
		return
	}

	m, err := findCart(c, db, false)
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}
	ctx := c.Request.Context()
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	state := cart.FromModel(m)
	existing, found := state.Find(req.VariantID)
	if !found {
		cartError(c, state, "", cart.ErrItemNotFound)
		return
	}
	quote, err := carts.Lookup(ctx, req.VariantID, existing.Currency)
	if err != nil {
		cartError(c, state, existing.Currency, err)
		return
	}

	//如果請求的數量大於庫存則更新為庫存數量
	if err := state.UpdateQuantity(req.VariantID, req.Quantity, &quote.Stock); err != nil {
		cartError(c, state, existing.Currency, err)
		return
	}
	if err := carts.Save(ctx, m, state); err != nil {
		serverError(c, "save cart", err)
		return
	}

	item, _ := state.Find(req.VariantID)
	c.JSON(http.StatusOK, gin.H{
		"message":   i18n.Tr(c, "cart.updated"),
		"variantID": item.VariantID,
		"quantity":  item.Quantity,
	})
}

// 刪除購物車商品
func DeleteCartItemHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	variantID, ok := uintParam(c, "variantID")
	if !ok {
		return
	}

	m, err := findCart(c, db, false)
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}
	ctx := c.Request.Context()
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	state := cart.FromModel(m)
	if err := state.Remove(variantID); err != nil {
		cartError(c, state, "", err)
		return
	}
	if err := carts.Save(ctx, m, state); err != nil {
		serverError(c, "save cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        i18n.Tr(c, "cart.updated"),
		"variantID":      variantID,
		"lockedCurrency": state.LockedCurrency,
	})
}

// 查詢購物車商品，查詢前先重新驗證價格與庫存
func GetCartHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	m, err := findCart(c, db, false)
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}
	ctx := c.Request.Context()
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	extra := gin.H{"revalidated": true}
	report, err := carts.Revalidate(ctx, m, logger.FromGin(c))
	if err != nil {
		// the stored cart is served as is
		extra["revalidated"] = false
	} else {
		extra["revalidation"] = reportJSON(report)
		if report.Changed() {
			extra["message"] = i18n.Tr(c, "cart.changed")
		}
	}
	renderCart(c, db, m.ID, extra)
}

// 手動重新驗證購物車
func RevalidateCartHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	m, err := findCart(c, db, false)
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}
	ctx := c.Request.Context()
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	report, err := carts.Revalidate(ctx, m, logger.FromGin(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": i18n.Tr(c, "server.error"),
			"error":   err.Error(),
		})
		return
	}

	extra := gin.H{"revalidation": reportJSON(report)}
	if report.Changed() {
		extra["message"] = i18n.Tr(c, "cart.changed")
	}
	renderCart(c, db, m.ID, extra)
}

// 清除購物車商品
func ClearCartHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	m, err := findCart(c, db, false)
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}

	state := cart.FromModel(m)
	state.Clear()
	if err := carts.Save(c.Request.Context(), m, state); err != nil {
		serverError(c, "clear cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "cart.cleared"),
	})
}

// 合併匿名和使用者購物車(登入後呼叫)。與使用者購物車幣別不同的商品不會合併。
func MergeCartHandler(c *gin.Context, db *gorm.DB, carts *cart.Store) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	//判斷是否已有匿名購物車
	anonymousCartID := getAnonymousCartID(c)
	if anonymousCartID == "" {
		c.JSON(http.StatusOK, gin.H{
			"message": i18n.Tr(c, "cart.empty"),
			"merged":  0,
			"skipped": []uint{},
		})
		return
	}

	ctx := c.Request.Context()
	var anonymous models.Cart
	err := db.
		Where("anonymous_cart_uuid = ?", anonymousCartID).
		Preload("CartItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("CartItems.Variant").
		First(&anonymous).
		Error
	if err != nil {
		dbError(c, "cart.not_found", err)
		return
	}

	m, err := findCart(c, db, true)
	if err != nil {
		serverError(c, "find cart", err)
		return
	}
	m, err = carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	state := cart.FromModel(m)
	merged := 0
	skipped := []uint{}
	for _, item := range anonymous.CartItems {
		stock := item.Variant.Stock
		err := state.Add(cart.Item{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
		}, &stock)
		if err != nil {
			logger.FromGin(c).Info("cart item not merged",
				zap.Uint("user_id", userID),
				zap.Uint("variant_id", item.VariantID),
				zap.Error(err))
			skipped = append(skipped, item.VariantID)
			continue
		}
		merged++
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := cart.NewStore(tx, nil).Save(ctx, m, state); err != nil {
			return err
		}
		if err := tx.Unscoped().Where("cart_id = ?", anonymous.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&anonymous).Error
	})
	if err != nil {
		serverError(c, "merge carts", err)
		return
	}
	c.SetCookie(anonymousCartCookie, "", -1, "/", "", false, true)

	c.JSON(http.StatusOK, gin.H{
		"message":        i18n.Tr(c, "cart.merged"),
		"merged":         merged,
		"skipped":        skipped,
		"lockedCurrency": state.LockedCurrency,
	})
}
