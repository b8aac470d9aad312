package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"Storefront/cache"
	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const currencyCookie = "currency"

// displayCurrency picks ?currency=, then the currency cookie, then the base.
func displayCurrency(c *gin.Context, rates *currency.Rates) (string, bool) {
	code := c.Query("currency")
	if code == "" {
		code, _ = c.Cookie(currencyCookie)
	}
	if code == "" {
		return rates.Base(), true
	}
	code = currency.Normalize(code)
	if !rates.Supported(code) {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": i18n.Tr(c, "currency.unsupported"),
			"error":   code,
		})
		return "", false
	}
	return code, true
}

func currentRates(c *gin.Context, source currency.RateSource) (*currency.Rates, bool) {
	rates, err := source.Current(c.Request.Context())
	if err != nil {
		serverError(c, "load currency rates", err)
		return nil, false
	}
	return rates, true
}

// priceJSON renders amount in code for the request locale.
func priceJSON(c *gin.Context, amount decimal.Decimal, code string) gin.H {
	return gin.H{
		"amount":   amount.StringFixed(currency.Scale(code)),
		"currency": code,
		"display":  currency.Format(amount, code, i18n.Tag(i18n.Locale(c))),
	}
}

func variantJSON(c *gin.Context, rates *currency.Rates, v models.ProductVariant, code string) gin.H {
	body := gin.H{
		"id":     v.ID,
		"sku":    v.SKU,
		"size":   v.Size,
		"color":  v.Color,
		"stock":  v.Stock,
		"native": priceJSON(c, v.Price, v.Currency),
	}
	if converted, err := rates.Convert(v.Price, v.Currency, code); err == nil {
		body["price"] = priceJSON(c, converted, code)
	}
	return body
}

func categoriesJSON(categories []models.Category) []gin.H {
	out := make([]gin.H, len(categories))
	for i, category := range categories {
		out[i] = gin.H{"id": category.ID, "name": category.Name}
	}
	return out
}

// productSummary is a list entry: the cheapest variant sets the price.
func productSummary(c *gin.Context, rates *currency.Rates, p models.Product, code string) gin.H {
	translation := p.Translation(i18n.Locale(c))
	body := gin.H{
		"id":         p.ID,
		"slug":       p.Slug,
		"name":       translation.Name,
		"imageURL":   p.ImageURL,
		"categories": categoriesJSON(p.Categories),
	}

	var cheapest *decimal.Decimal
	var stock uint
	for _, v := range p.Variants {
		stock += v.Stock
		converted, err := rates.Convert(v.Price, v.Currency, code)
		if err != nil {
			continue
		}
		if cheapest == nil || converted.LessThan(*cheapest) {
			cheapest = &converted
		}
	}
	if cheapest != nil {
		body["price"] = priceJSON(c, *cheapest, code)
	}
	body["inStock"] = stock > 0
	return body
}

// 查詢商品列表
func GetProductListHandler(c *gin.Context, catalog *cache.Catalog, rateSource currency.RateSource) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	rates, ok := currentRates(c, rateSource)
	if !ok {
		return
	}
	code, ok := displayCurrency(c, rates)
	if !ok {
		return
	}

	//從Redis讀取商品列表，快取為空時從資料庫重建
	products, total, err := catalog.Page(c.Request.Context(), offset, limit)
	if err != nil {
		serverError(c, "load product page", err)
		return
	}

	productsData := make([]gin.H, 0, len(products))
	for _, product := range products {
		productsData = append(productsData, productSummary(c, rates, product, code))
	}

	c.JSON(http.StatusOK, gin.H{
		"products":   productsData,
		"totalCount": total,
		"currency":   code,
	})
}

func parseCategoryIDs(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil, errors.New("categories must list at least one id")
	}
	return ids, nil
}

func hasAllCategories(p models.Product, ids []uint) bool {
	for _, id := range ids {
		found := false
		for _, category := range p.Categories {
			if category.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// 搜尋完整包含標籤的所有商品
func GetProductsFromCategoriesHandler(c *gin.Context, catalog *cache.Catalog, rateSource currency.RateSource) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	ids, err := parseCategoryIDs(c.Query("categories"))
	if err != nil {
		badRequest(c, err)
		return
	}
	rates, ok := currentRates(c, rateSource)
	if !ok {
		return
	}
	code, ok := displayCurrency(c, rates)
	if !ok {
		return
	}

	products, err := catalog.All(c.Request.Context())
	if err != nil {
		serverError(c, "load products", err)
		return
	}

	//遍歷商品列表，找出含有所有標籤的商品
	var matched []gin.H
	for _, product := range products {
		if hasAllCategories(product, ids) {
			matched = append(matched, productSummary(c, rates, product, code))
		}
	}

	totalCount := len(matched)
	start := min(offset, totalCount)
	end := min(offset+limit, totalCount)
	c.JSON(http.StatusOK, gin.H{
		"products":   append([]gin.H{}, matched[start:end]...),
		"totalCount": totalCount,
		"currency":   code,
	})
}

type reviewSummary struct {
	Count   int64
	Average float64
}

func loadReviewSummary(ctx context.Context, db *gorm.DB, productID uint) (reviewSummary, error) {
	var summary reviewSummary
	err := db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average").
		Where("product_id = ? AND approved = ?", productID, true).
		Scan(&summary).
		Error
	return summary, err
}

// 查詢商品詳細資料
func GetProductDataHandler(c *gin.Context, db *gorm.DB, rateSource currency.RateSource) {
	productID, ok := uintParam(c, "productID")
	if !ok {
		return
	}
	rates, ok := currentRates(c, rateSource)
	if !ok {
		return
	}
	code, ok := displayCurrency(c, rates)
	if !ok {
		return
	}

	var product models.Product
	err := db.
		Preload("Translations").
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Categories").
		Where("published = ?", true).
		First(&product, productID).
		Error
	if err != nil {
		dbError(c, "product.not_found", err)
		return
	}

	var reviews []models.Review
	err = db.
		Preload("User").
		Where("product_id = ? AND approved = ?", product.ID, true).
		Order("created_at DESC").
		Limit(20).
		Find(&reviews).
		Error
	if err != nil {
		serverError(c, "load reviews", err)
		return
	}
	summary, err := loadReviewSummary(c.Request.Context(), db, product.ID)
	if err != nil {
		serverError(c, "load review summary", err)
		return
	}

	translation := product.Translation(i18n.Locale(c))
	variants := make([]gin.H, 0, len(product.Variants))
	for _, v := range product.Variants {
		variants = append(variants, variantJSON(c, rates, v, code))
	}
	reviewsData := make([]gin.H, 0, len(reviews))
	for _, r := range reviews {
		reviewsData = append(reviewsData, gin.H{
			"id":        r.ID,
			"author":    r.User.Name,
			"rating":    r.Rating,
			"title":     r.Title,
			"body":      r.Body,
			"createdAt": r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"product": gin.H{
			"id":          product.ID,
			"slug":        product.Slug,
			"name":        translation.Name,
			"description": translation.Description,
			"imageURL":    product.ImageURL,
			"categories":  categoriesJSON(product.Categories),
			"variants":    variants,
		},
		"reviews":       reviewsData,
		"reviewCount":   summary.Count,
		"averageRating": decimal.NewFromFloat(summary.Average).Round(1),
		"currency":      code,
	})
}

// 查詢商品標籤列表
func GetCategoryListHandler(c *gin.Context, db *gorm.DB) {
	var categories []struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	err := db.
		Model(&models.Category{}).
		Select("id", "name").
		Order("name").
		Find(&categories).
		Error
	if err != nil {
		serverError(c, "load categories", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
	})
}

// 查詢支援的幣別與匯率
func GetCurrenciesHandler(c *gin.Context, rateSource currency.RateSource) {
	rates, ok := currentRates(c, rateSource)
	if !ok {
		return
	}

	currencies := make([]gin.H, 0)
	for _, code := range rates.Codes() {
		rate, _ := rates.Rate(code)
		currencies = append(currencies, gin.H{
			"code": code,
			"rate": rate.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"base":       rates.Base(),
		"currencies": currencies,
	})
}
