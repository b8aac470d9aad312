package handlers

import (
	"errors"
	"net/http"

	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/shipping"

	"github.com/gin-gonic/gin"
)

// 查詢省份列表
func GetProvinceListHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"provinces": shipping.Provinces(),
	})
}

// 試算運費，未指定寄件省份時使用商店所在省份
func ShippingQuoteHandler(c *gin.Context, rateSource currency.RateSource, originProvince string) {
	var parcel shipping.Parcel
	if err := c.ShouldBindJSON(&parcel); err != nil {
		badRequest(c, err)
		return
	}
	if parcel.Origin == "" {
		parcel.Origin = originProvince
	}

	quote, err := shipping.Estimate(parcel)
	if err != nil {
		if errors.Is(err, shipping.ErrUnknownProvince) {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": i18n.Tr(c, "shipping.unknown_province"),
				"error":   err.Error(),
			})
			return
		}
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
	body := gin.H{
		"quote":   quote,
		"display": i18n.Tr(c, "shipping.toman", currency.FormatNumber(quote.DisplayToman, 0, i18n.Tag(i18n.Locale(c)))),
	}
	if converted, err := rates.Convert(quote.TotalRial, gatewayCurrency, code); err == nil {
		body["price"] = priceJSON(c, converted, code)
	}
	c.JSON(http.StatusOK, body)
}
