package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"Storefront/i18n"
	"Storefront/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxPageSize = 50

// currentUserID returns the id set by AuthMiddleware.
func currentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("UserID")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// mustUserID aborts with 401 when the request is anonymous.
func mustUserID(c *gin.Context) (uint, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": i18n.Tr(c, "request.unauthorized"),
		})
	}
	return userID, ok
}

func badRequest(c *gin.Context, err error) {
	body := gin.H{"message": i18n.Tr(c, "request.invalid")}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// serverError logs err with the request logger and answers 500.
func serverError(c *gin.Context, msg string, err error) {
	logger.FromGin(c).Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": i18n.Tr(c, "server.error"),
		"error":   err.Error(),
	})
}

func notFound(c *gin.Context, key string) {
	c.JSON(http.StatusNotFound, gin.H{
		"message": i18n.Tr(c, key),
	})
}

// dbError answers 404 for missing rows and 500 otherwise.
func dbError(c *gin.Context, notFoundKey string, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		notFound(c, notFoundKey)
		return
	}
	serverError(c, "database error", err)
}

// paging reads ?limit= and ?offset=, capping limit at maxPageSize.
func paging(c *gin.Context) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		badRequest(c, errors.New("limit must be a positive integer"))
		return 0, 0, false
	}
	//限制最高查詢數量為50
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, errors.New("offset must not be negative"))
		return 0, 0, false
	}
	return limit, offset, true
}

// uintParam parses a path parameter as an id.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, errors.New(name+" must be a positive integer"))
		return 0, false
	}
	return uint(v), true
}
