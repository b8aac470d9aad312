package middleware

import (
	"strings"

	"Storefront/jwt"
	"Storefront/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthMiddleware resolves the bearer token, if any, into UserID and Role.
// Requests without a valid token continue anonymously.
func AuthMiddleware(db *gorm.DB, tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if token == "" {
			c.Header("Authorization", "")
			c.Next()
			return
		}

		//如Token不合法或錯誤則回傳空Authorization
		claims, err := tokens.VerifyToken(c.Request.Context(), token, db)
		if err != nil {
			logger.FromGin(c).Debug("rejecting bearer token", zap.Error(err))
			c.Header("Authorization", "")
			c.Next()
			return
		}

		c.Header("Authorization", authHeader)
		c.Set("Token", token)
		c.Set("UserID", claims.UserID)
		c.Set("Role", claims.Role)
		c.Next()
	}
}
