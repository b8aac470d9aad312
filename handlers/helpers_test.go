package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"Storefront/cache"
	"Storefront/cart"
	"Storefront/currency"
	"Storefront/i18n"
	"Storefront/models"
	"Storefront/payment"
	"Storefront/testutil"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testUserHeader = "X-Test-User"
	testRoleHeader = "X-Test-Role"
)

type testEnv struct {
	db      *gorm.DB
	rates   *memoryRates
	carts   *cart.Store
	catalog *cache.Catalog
	gateway *fakeGateway
	router  *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	defaults, err := currency.NewRates("IRR", map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(600_000),
		"EUR": decimal.NewFromInt(650_000),
	})
	require.NoError(t, err)
	require.NoError(t, RegisterValidators(defaults.Supported))

	db := testutil.NewDB(t)
	env := &testEnv{
		db:      db,
		rates:   &memoryRates{defaults: defaults, overrides: map[string]decimal.Decimal{}},
		catalog: cache.NewCatalog(db, cache.NewMemoryProductCache(), zap.NewNop()),
		gateway: &fakeGateway{authority: "A0001"},
	}
	env.carts = cart.NewStore(db, env.rates)
	env.router = env.routes()
	return env
}

// fakeIdentity stands in for AuthMiddleware.
func fakeIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader(testUserHeader); raw != "" {
			id, _ := strconv.ParseUint(raw, 10, 64)
			c.Set("UserID", uint(id))
			c.Set("Role", c.GetHeader(testRoleHeader))
		}
		c.Next()
	}
}

func (e *testEnv) routes() *gin.Engine {
	r := gin.New()
	r.Use(i18n.Middleware(), fakeIdentity())
	db := e.db
	checkout := &Checkout{
		DB:             db,
		Carts:          e.carts,
		Rates:          e.rates,
		Gateway:        e.gateway,
		Catalog:        e.catalog,
		OriginProvince: "tehran",
	}

	r.GET("/products", func(c *gin.Context) { GetProductListHandler(c, e.catalog, e.rates) })
	r.GET("/products/:productID", func(c *gin.Context) { GetProductDataHandler(c, db, e.rates) })
	r.POST("/shipping/quote", func(c *gin.Context) { ShippingQuoteHandler(c, e.rates, "tehran") })

	r.POST("/carts/add", func(c *gin.Context) { AddToCartHandler(c, db, e.carts, e.rates) })
	r.POST("/carts/update", func(c *gin.Context) { UpdateCartItemQuantityHandler(c, db, e.carts) })
	r.DELETE("/carts/:variantID", func(c *gin.Context) { DeleteCartItemHandler(c, db, e.carts) })
	r.GET("/carts", func(c *gin.Context) { GetCartHandler(c, db, e.carts) })
	r.POST("/user/carts/merge", func(c *gin.Context) { MergeCartHandler(c, db, e.carts) })

	r.POST("/user/addresses", func(c *gin.Context) { CreateAddressHandler(c, db) })
	r.POST("/user/orders", checkout.PlaceOrderHandler)
	r.POST("/user/orders/:orderID/pay", checkout.PayOrderHandler)
	r.GET("/payments/callback", checkout.PaymentCallbackHandler)
	r.POST("/user/products/:productID/reviews", func(c *gin.Context) { CreateReviewHandler(c, db) })

	r.POST("/admin/products", func(c *gin.Context) { CreateProductHandler(c, db, e.catalog) })
	r.PATCH("/admin/products/:productID", func(c *gin.Context) { UpdateProductHandler(c, db, e.catalog) })
	r.DELETE("/admin/products/:productID", func(c *gin.Context) { DeleteProductHandler(c, db, e.catalog) })
	r.PATCH("/admin/orders/:orderID/status", func(c *gin.Context) { UpdateOrderStatusHandler(c, db, e.catalog, e.gateway) })
	r.PATCH("/admin/reviews/:reviewID/approve", func(c *gin.Context) { ApproveReviewHandler(c, db) })
	r.GET("/admin/dashboard", func(c *gin.Context) { GetDashboardHandler(c, db) })
	r.PUT("/admin/currencies", func(c *gin.Context) { UpdateCurrencyRateHandler(c, e.rates) })
	r.DELETE("/admin/currencies", func(c *gin.Context) { ResetCurrencyRatesHandler(c, e.rates) })
	return r
}

type request struct {
	method  string
	path    string
	body    any
	userID  uint
	role    string
	cookies []*http.Cookie
	lang    string
}

func (e *testEnv) do(t *testing.T, req request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	httpReq := httptest.NewRequest(req.method, req.path, &body)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.userID != 0 {
		httpReq.Header.Set(testUserHeader, strconv.FormatUint(uint64(req.userID), 10))
		httpReq.Header.Set(testRoleHeader, req.role)
	}
	if req.lang != "" {
		httpReq.Header.Set("Accept-Language", req.lang)
	}
	for _, cookie := range req.cookies {
		httpReq.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httpReq)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (e *testEnv) createUser(t *testing.T, phone string) models.User {
	t.Helper()
	user := models.User{Phone: &phone, Role: models.RoleUser, Locale: "en"}
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

func (e *testEnv) createAddress(t *testing.T, userID uint, province string) models.ShippingAddress {
	t.Helper()
	address := models.ShippingAddress{
		UserID:    userID,
		Recipient: "Sara Ahmadi",
		Phone:     "09123456789",
		Province:  province,
		City:      "Tehran",
		Street:    "Valiasr St. 12",
		IsDefault: true,
	}
	require.NoError(t, e.db.Create(&address).Error)
	return address
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// memoryRates is a RateEditor without redis.
type memoryRates struct {
	mu        sync.Mutex
	defaults  *currency.Rates
	overrides map[string]decimal.Decimal
}

func (m *memoryRates) Current(context.Context) (*currency.Rates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaults.With(m.overrides)
}

func (m *memoryRates) Set(_ context.Context, code string, rate decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = currency.Normalize(code)
	if code == m.defaults.Base() || !rate.IsPositive() {
		return currency.ErrInvalidRate
	}
	m.overrides[code] = rate
	return nil
}

func (m *memoryRates) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = map[string]decimal.Decimal{}
	return nil
}

// fakeGateway behaves like the real gateway: verification succeeds only for a
// captured session and only for the amount the session was opened with.
type fakeGateway struct {
	mu        sync.Mutex
	authority string
	opened    []payment.Request
	amounts   map[string]decimal.Decimal
	captured  map[string]bool
	verified  []decimal.Decimal
	verifyErr error
}

func (g *fakeGateway) Open(_ context.Context, req payment.Request) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = append(g.opened, req)
	if g.amounts == nil {
		g.amounts = map[string]decimal.Decimal{}
	}
	g.amounts[g.authority] = req.Amount
	return &payment.Session{
		Authority:   g.authority,
		RedirectURL: "https://pay.example/StartPay/" + g.authority,
	}, nil
}

// capture records that the customer completed payment for authority.
func (g *fakeGateway) capture(authority string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captured == nil {
		g.captured = map[string]bool{}
	}
	g.captured[authority] = true
}

func (g *fakeGateway) Verify(_ context.Context, authority string, amount decimal.Decimal) (*payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, amount)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	opened, ok := g.amounts[authority]
	if !ok || !opened.Equal(amount) {
		return nil, fmt.Errorf("%w: code -50 amount mismatch", payment.ErrVerificationFailed)
	}
	if !g.captured[authority] {
		return nil, fmt.Errorf("%w: code -51", payment.ErrVerificationFailed)
	}
	return &payment.Verification{RefID: "REF-" + authority}, nil
}
