package i18n

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCatalogsHaveSameKeys(t *testing.T) {
	for key := range catalogs["en"] {
		_, ok := catalogs["fa"][key]
		assert.True(t, ok, "fa is missing %s", key)
	}
	assert.Equal(t, []string{"en", "fa"}, Supported())
}

func TestT(t *testing.T) {
	assert.Equal(t, "The code has expired, request a new one", T("en", "otp.expired"))
	assert.Equal(t, "کد منقضی شده است، کد جدید دریافت کنید", T("fa", "otp.expired"))
	assert.Equal(t, "The code has expired, request a new one", T("de", "otp.expired"))
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
	assert.Equal(t, "Please wait 42 seconds before requesting a new code", T("en", "otp.resend_too_soon", 42))
}

func TestMatch(t *testing.T) {
	assert.Equal(t, "fa", Match("fa-IR,fa;q=0.9,en;q=0.8"))
	assert.Equal(t, "en", Match("", "de-DE"))
	assert.Equal(t, "fa", Match("", "fa"))
	assert.Equal(t, "en", Match())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Tr(c, "cart.empty"))
	})

	req := httptest.NewRequest(http.MethodGet, "/?lang=fa", nil)
	req.Header.Set("Accept-Language", "en-US")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "سبد خرید شما خالی است", w.Body.String())
	assert.Equal(t, "fa", w.Header().Get("Content-Language"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "Your cart is empty", w.Body.String())
}
