package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Storefront/cache"
	"Storefront/cart"
	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/logger"
	"Storefront/models"
	"Storefront/payment"
	"Storefront/shipping"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gatewayCurrency is what the payment gateway and the shipping tables charge in.
const gatewayCurrency = "IRR"

// Checkout bundles what placing and paying for an order needs.
type Checkout struct {
	DB             *gorm.DB
	Carts          *cart.Store
	Rates          currency.RateSource
	Gateway        payment.Gateway
	Catalog        *cache.Catalog
	OriginProvince string
}

var errInsufficientStock = errors.New("insufficient stock")

type stockError struct {
	product string
}

func (e *stockError) Error() string { return fmt.Sprintf("insufficient stock for %s", e.product) }
func (e *stockError) Unwrap() error { return errInsufficientStock }

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// restoreStock puts the units of order back on their variants.
func restoreStock(tx *gorm.DB, order *models.Order) error {
	for _, item := range order.OrderItems {
		err := tx.Model(&models.ProductVariant{}).
			Where("id = ?", item.VariantID).
			Update("stock", gorm.Expr("stock + ?", item.Quantity)).
			Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (co *Checkout) refreshProducts(ctx context.Context, log *zap.Logger, order *models.Order) {
	seen := make(map[uint]bool)
	for _, item := range order.OrderItems {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		if err := co.Catalog.Refresh(ctx, item.ProductID); err != nil {
			log.Warn("refresh product cache", zap.Uint("product_id", item.ProductID), zap.Error(err))
		}
	}
}

func orderJSON(c *gin.Context, order *models.Order) gin.H {
	body := gin.H{
		"orderID":       order.ID,
		"status":        order.Status,
		"currency":      order.Currency,
		"subtotal":      priceJSON(c, order.Subtotal, order.Currency),
		"shippingCost":  priceJSON(c, order.ShippingCost, order.Currency),
		"total":         priceJSON(c, order.Total, order.Currency),
		"gatewayAmount": priceJSON(c, order.GatewayAmount, gatewayCurrency),
		"orderTime":     order.CreatedAt,
		"paidAt":        order.PaidAt,
		"recipient":     order.Recipient,
		"phone":         order.Phone,
		"province":      order.Province,
		"city":          order.City,
		"street":        order.Street,
		"postalCode":    order.PostalCode,
	}
	if order.PaymentRefID != "" {
		body["paymentRefID"] = order.PaymentRefID
	}
	if order.OrderItems != nil {
		items := make([]gin.H, 0, len(order.OrderItems))
		for _, item := range order.OrderItems {
			items = append(items, gin.H{
				"variantID": item.VariantID,
				"productID": item.ProductID,
				"name":      item.ProductName,
				"size":      item.Size,
				"color":     item.Color,
				"quantity":  item.Quantity,
				"unitPrice": priceJSON(c, item.UnitPrice, order.Currency),
			})
		}
		body["orderItems"] = items
	}
	return body
}

// 送出訂單：重新驗證購物車、計算運費、扣除庫存並建立付款
func (co *Checkout) PlaceOrderHandler(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var req struct {
		AddressID uint `json:"addressID"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.AddressID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "checkout.address_required")})
		return
	}

	ctx := c.Request.Context()
	log := logger.FromGin(c)
	db := co.DB.WithContext(ctx)

	var address models.ShippingAddress
	if err := db.Where("id = ? AND user_id = ?", req.AddressID, userID).First(&address).Error; err != nil {
		dbError(c, "address.not_found", err)
		return
	}

	var m models.Cart
	if err := db.Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "cart.empty")})
			return
		}
		serverError(c, "find cart", err)
		return
	}
	loaded, err := co.Carts.Load(ctx, m.ID)
	if err != nil {
		serverError(c, "load cart", err)
		return
	}

	report, err := co.Carts.Revalidate(ctx, loaded, log)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": i18n.Tr(c, "server.error"),
			"error":   err.Error(),
		})
		return
	}
	if report.Changed() {
		c.JSON(http.StatusConflict, gin.H{
			"message":      i18n.Tr(c, "cart.changed"),
			"revalidation": reportJSON(report),
		})
		return
	}

	state := cart.FromModel(loaded)
	if state.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "cart.empty")})
		return
	}

	rates, ok := currentRates(c, co.Rates)
	if !ok {
		return
	}
	orderCurrency := state.LockedCurrency
	subtotal := state.Subtotal()

	declared, err := rates.Convert(subtotal, orderCurrency, gatewayCurrency)
	if err != nil {
		serverError(c, "convert subtotal", err)
		return
	}
	lines := make([]shipping.Line, 0, len(loaded.CartItems))
	for _, item := range loaded.CartItems {
		lines = append(lines, shipping.Line{
			Quantity:    item.Quantity,
			WeightGrams: max(item.Variant.WeightGrams, 1),
			LengthCm:    item.Variant.LengthCm,
			WidthCm:     item.Variant.WidthCm,
			HeightCm:    item.Variant.HeightCm,
		})
	}
	quote, err := shipping.Estimate(shipping.Pack(co.OriginProvince, address.Province, declared.IntPart(), lines...))
	if err != nil {
		if errors.Is(err, shipping.ErrUnknownProvince) {
			c.JSON(http.StatusBadRequest, gin.H{"message": i18n.Tr(c, "shipping.unknown_province"), "error": err.Error()})
			return
		}
		serverError(c, "estimate shipping", err)
		return
	}
	shippingCost, err := rates.Convert(quote.TotalRial, gatewayCurrency, orderCurrency)
	if err != nil {
		serverError(c, "convert shipping", err)
		return
	}

	total := subtotal.Add(shippingCost)
	gatewayAmount, err := rates.Convert(total, orderCurrency, gatewayCurrency)
	if err != nil {
		serverError(c, "convert order total", err)
		return
	}

	order := models.Order{
		UserID:           userID,
		Status:           models.OrderStatusPendingPayment,
		Currency:         orderCurrency,
		Subtotal:         subtotal,
		ShippingCost:     shippingCost,
		Total:            total,
		GatewayAmount:    gatewayAmount,
		Recipient:        address.Recipient,
		Phone:            address.Phone,
		Province:         address.Province,
		City:             address.City,
		Street:           address.Street,
		PostalCode:       address.PostalCode,
		PaymentReference: uuid.NewString(),
	}

	locale := i18n.Locale(c)
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, item := range state.Items {
			var variant models.ProductVariant
			err := forUpdate(tx).
				Preload("Product.Translations").
				First(&variant, item.VariantID).
				Error
			if err != nil {
				return err
			}

			name := variant.Product.Translation(locale).Name
			if variant.Stock < item.Quantity {
				return &stockError{product: name}
			}
			err = tx.Model(&variant).Update("stock", gorm.Expr("stock - ?", item.Quantity)).Error
			if err != nil {
				return err
			}

			order.OrderItems = append(order.OrderItems, models.OrderItem{
				VariantID:   variant.ID,
				ProductID:   variant.ProductID,
				ProductName: name,
				Size:        variant.Size,
				Color:       variant.Color,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}

		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		emptied := cart.FromModel(loaded)
		emptied.Clear()
		return cart.NewStore(tx, co.Rates).Save(ctx, loaded, emptied)
	})
	if err != nil {
		var se *stockError
		if errors.As(err, &se) {
			c.JSON(http.StatusConflict, gin.H{
				"message": i18n.Tr(c, "checkout.insufficient_stock", se.product),
				"error":   err.Error(),
			})
			return
		}
		serverError(c, "place order", err)
		return
	}
	co.refreshProducts(ctx, log, &order)

	session, err := co.openPayment(ctx, &order)
	if err != nil {
		log.Error("open payment", zap.Uint("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"message": i18n.Tr(c, "payment.failed"),
			"error":   err.Error(),
			"order":   orderJSON(c, &order),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     i18n.Tr(c, "checkout.created"),
		"order":       orderJSON(c, &order),
		"shipping":    quote,
		"redirectURL": session.RedirectURL,
	})
}

// openPayment asks the gateway for a session over the amount fixed at
// checkout and stores its authority.
func (co *Checkout) openPayment(ctx context.Context, order *models.Order) (*payment.Session, error) {
	if !order.GatewayAmount.IsPositive() {
		return nil, fmt.Errorf("order %d has no gateway amount", order.ID)
	}
	session, err := co.Gateway.Open(ctx, payment.Request{
		Amount:      order.GatewayAmount,
		Description: fmt.Sprintf("order %d", order.ID),
		Mobile:      order.Phone,
		Reference:   order.PaymentReference,
	})
	if err != nil {
		return nil, err
	}

	order.PaymentAuthority = session.Authority
	err = co.DB.WithContext(ctx).
		Model(order).
		Update("payment_authority", session.Authority).
		Error
	if err != nil {
		return nil, err
	}
	return session, nil
}

// 重新建立尚未付款訂單的付款
func (co *Checkout) PayOrderHandler(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "orderID")
	if !ok {
		return
	}

	var order models.Order
	err := co.DB.Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if err != nil {
		dbError(c, "order.not_found", err)
		return
	}
	if order.Status != models.OrderStatusPendingPayment {
		c.JSON(http.StatusConflict, gin.H{
			"message": i18n.Tr(c, "order.not_payable"),
			"status":  order.Status,
		})
		return
	}

	session, err := co.openPayment(c.Request.Context(), &order)
	if err != nil {
		logger.FromGin(c).Error("open payment", zap.Uint("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"message": i18n.Tr(c, "payment.failed"),
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redirectURL": session.RedirectURL,
	})
}

// 付款閘道回呼：驗證付款並更新訂單狀態
func (co *Checkout) PaymentCallbackHandler(c *gin.Context) {
	authority := c.Query("Authority")
	status := c.Query("Status")
	if authority == "" {
		badRequest(c, errors.New("Authority is required"))
		return
	}

	ctx := c.Request.Context()
	log := logger.FromGin(c).With(zap.String("authority", authority))

	var order models.Order
	err := co.DB.WithContext(ctx).
		Preload("OrderItems").
		Where("payment_authority = ?", authority).
		First(&order).
		Error
	if err != nil {
		dbError(c, "order.not_found", err)
		return
	}

	if order.Status != models.OrderStatusPendingPayment {
		c.JSON(http.StatusOK, gin.H{
			"message": i18n.Tr(c, paymentMessageKey(order.Status)),
			"order":   orderJSON(c, &order),
		})
		return
	}

	if status != "OK" {
		if err := co.cancel(ctx, &order); err != nil {
			serverError(c, "cancel order", err)
			return
		}
		co.refreshProducts(ctx, log, &order)
		c.JSON(http.StatusOK, gin.H{
			"message": i18n.Tr(c, "payment.failed"),
			"order":   orderJSON(c, &order),
		})
		return
	}

	verification, err := co.Gateway.Verify(ctx, authority, order.GatewayAmount)
	switch {
	case errors.Is(err, payment.ErrVerificationFailed):
		log.Warn("payment verification failed", zap.Error(err))
		if err := co.cancel(ctx, &order); err != nil {
			serverError(c, "cancel order", err)
			return
		}
		co.refreshProducts(ctx, log, &order)
		c.JSON(http.StatusOK, gin.H{
			"message": i18n.Tr(c, "payment.failed"),
			"order":   orderJSON(c, &order),
		})
		return
	case err != nil:
		log.Error("verify payment", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"message": i18n.Tr(c, "server.error"),
			"error":   err.Error(),
		})
		return
	}

	if err := markPaid(ctx, co.DB, &order, verification.RefID); err != nil {
		serverError(c, "mark order paid", err)
		return
	}

	log.Info("order paid", zap.Uint("order_id", order.ID), zap.String("ref_id", verification.RefID))
	c.JSON(http.StatusOK, gin.H{
		"message": i18n.Tr(c, "payment.succeeded"),
		"order":   orderJSON(c, &order),
	})
}

// markPaid moves a pending order to paid with the gateway reference.
func markPaid(ctx context.Context, db *gorm.DB, order *models.Order, refID string) error {
	now := time.Now()
	result := db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPendingPayment).
		Updates(map[string]any{
			"status":         models.OrderStatusPaid,
			"payment_ref_id": refID,
			"paid_at":        now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %d changed status concurrently", order.ID)
	}
	order.Status = models.OrderStatusPaid
	order.PaymentRefID = refID
	order.PaidAt = &now
	return nil
}

func paymentMessageKey(status string) string {
	if status == models.OrderStatusCancelled || status == models.OrderStatusPendingPayment {
		return "payment.failed"
	}
	return "payment.succeeded"
}

// cancel marks order cancelled and returns its units to stock.
func (co *Checkout) cancel(ctx context.Context, order *models.Order) error {
	err := co.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("status", models.OrderStatusCancelled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("order %d changed status concurrently", order.ID)
		}
		return restoreStock(tx, order)
	})
	if err != nil {
		return err
	}
	order.Status = models.OrderStatusCancelled
	return nil
}

// 查詢訂單列表
func GetOrderListHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	var orders []models.Order
	err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&orders).Error
	if err != nil {
		serverError(c, "load orders", err)
		return
	}

	orderList := make([]gin.H, 0, len(orders))
	for i := range orders {
		orderList = append(orderList, orderJSON(c, &orders[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"orderList": orderList,
	})
}

// 查詢訂單詳細資訊
func GetOrderDataHandler(c *gin.Context, db *gorm.DB) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "orderID")
	if !ok {
		return
	}

	var order models.Order
	err := db.
		Where("id = ? AND user_id = ?", orderID, userID).
		Preload("OrderItems").
		First(&order).
		Error
	if err != nil {
		dbError(c, "order.not_found", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": orderJSON(c, &order),
	})
}
