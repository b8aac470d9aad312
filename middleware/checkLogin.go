package middleware

import (
	"net/http"

	"Storefront/i18n"

	"github.com/gin-gonic/gin"
)

// 檢查是否有登入，沒有則中止請求
func CheckLoginMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("UserID"); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": i18n.Tr(c, "request.unauthorized"),
			})
			return
		}
		c.Next()
	}
}
