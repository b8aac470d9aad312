package middleware

import (
	"net/http"

	"Storefront/i18n"
	"Storefront/logger"
	"Storefront/models"

	"github.com/gin-gonic/gin"
)

// 檢查是否有admin權限，沒有則中止請求
func CheckAdminPermissionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("Role")
		if !exists {
			logger.FromGin(c).Error("role missing from authenticated request")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": i18n.Tr(c, "server.error"),
			})
			return
		}
		if role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": i18n.Tr(c, "request.forbidden"),
			})
			return
		}
		c.Next()
	}
}
