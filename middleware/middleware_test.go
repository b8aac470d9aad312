package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"Storefront/i18n"
	"Storefront/jwt"
	"Storefront/models"
	"Storefront/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *jwt.Manager, *models.User, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := jwt.NewManager(key, &key.PublicKey, time.Hour)

	phone := "09123456789"
	user := &models.User{Phone: &phone, Role: models.RoleUser}
	require.NoError(t, db.Create(user).Error)
	token, err := tokens.IssueLoginToken(context.Background(), db, user)
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestIDMiddleware(), CORSMiddleware([]string{"https://shop.example"}), i18n.Middleware(), AuthMiddleware(db, tokens))
	r.GET("/public", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetUint("UserID")})
	})
	r.GET("/private", CheckLoginMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/admin", CheckLoginMiddleware(), CheckAdminPermissionMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, tokens, user, token
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r, _, user, token := newRouter(t)

	w := serve(r, http.MethodGet, "/public", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userID":0}`, w.Body.String())

	w = serve(r, http.MethodGet, "/public", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userID":`+itoa(user.ID)+`}`, w.Body.String())

	// an unknown token is ignored rather than rejected
	w = serve(r, http.MethodGet, "/public", "not-a-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Authorization"))
}

func TestCheckLoginAndAdmin(t *testing.T) {
	r, _, _, token := newRouter(t)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/private", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/private", token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", token).Code)
}

func TestRequestIDAndCORS(t *testing.T) {
	r, _, _, _ := newRouter(t)

	w := serve(r, http.MethodOptions, "/private", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
