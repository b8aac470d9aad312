package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"Storefront/models"
	"Storefront/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddToCartLocksCurrency(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "shirt",
		testutil.VariantSpec{SKU: "shirt-m", Price: "10", Currency: "USD", Stock: 5, Weight: 400},
	)
	variantID := product.Variants[0].ID

	w, body := env.do(t, request{
		method: http.MethodPost,
		path:   "/carts/add",
		body:   gin.H{"variantID": variantID, "quantity": 2, "currency": "USD"},
	})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "USD", body["lockedCurrency"])
	cookie := cookieNamed(w, anonymousCartCookie)
	require.NotNil(t, cookie)

	w, body = env.do(t, request{
		method:  http.MethodPost,
		path:    "/carts/add",
		body:    gin.H{"variantID": variantID, "quantity": 1, "currency": "IRR"},
		cookies: []*http.Cookie{cookie},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USD", body["lockedCurrency"])
	assert.Equal(t, "Your cart already contains items priced in USD. Empty your cart to shop in IRR.", body["message"])

	var items []models.CartItem
	require.NoError(t, env.db.Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, uint(2), items[0].Quantity)
	assert.Equal(t, "USD", items[0].Currency)
}

func TestAddToCartCapsAtStock(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "mug",
		testutil.VariantSpec{SKU: "mug-1", Price: "250000", Currency: "IRR", Stock: 3, Weight: 300},
	)
	user := env.createUser(t, "09120000001")

	w, body := env.do(t, request{
		method: http.MethodPost,
		path:   "/carts/add",
		body:   gin.H{"variantID": product.Variants[0].ID, "quantity": 10},
		userID: user.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.EqualValues(t, 3, body["quantity"])
	assert.Equal(t, "IRR", body["lockedCurrency"])
}

func TestAddToCartRejectsUnknownCurrency(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "cap",
		testutil.VariantSpec{SKU: "cap-1", Price: "5", Currency: "EUR", Stock: 3, Weight: 100},
	)

	w, _ := env.do(t, request{
		method: http.MethodPost,
		path:   "/carts/add",
		body:   gin.H{"variantID": product.Variants[0].ID, "quantity": 1, "currency": "JPY"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemovingLastItemReleasesLock(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "scarf",
		testutil.VariantSpec{SKU: "scarf-1", Price: "20", Currency: "EUR", Stock: 4, Weight: 200},
	)
	user := env.createUser(t, "09120000002")
	variantID := product.Variants[0].ID

	w, _ := env.do(t, request{
		method: http.MethodPost,
		path:   "/carts/add",
		body:   gin.H{"variantID": variantID, "quantity": 1, "currency": "EUR"},
		userID: user.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/carts/%d", variantID),
		userID: user.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "", body["lockedCurrency"])

	// a different currency is accepted again
	w, body = env.do(t, request{
		method: http.MethodPost,
		path:   "/carts/add",
		body:   gin.H{"variantID": variantID, "quantity": 1, "currency": "USD"},
		userID: user.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, "USD", body["lockedCurrency"])
}

func TestUpdateQuantity(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "socks",
		testutil.VariantSpec{SKU: "socks-1", Price: "90000", Currency: "IRR", Stock: 6, Weight: 50},
	)
	user := env.createUser(t, "09120000003")
	variantID := product.Variants[0].ID

	w, _ := env.do(t, request{method: http.MethodPost, path: "/carts/add", body: gin.H{"variantID": variantID, "quantity": 1}, userID: user.ID})
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name     string
		quantity int
		status   int
		want     float64
	}{
		{"within stock", 4, http.StatusOK, 4},
		{"capped at stock", 40, http.StatusOK, 6},
		{"zero", 0, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, request{
				method: http.MethodPost,
				path:   "/carts/update",
				body:   gin.H{"variantID": variantID, "quantity": tt.quantity},
				userID: user.ID,
			})
			require.Equal(t, tt.status, w.Code, body)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.want, body["quantity"])
			}
		})
	}
}

func TestGetCartRevalidates(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "jacket",
		testutil.VariantSpec{SKU: "jacket-m", Price: "100", Currency: "USD", Stock: 5, Weight: 900},
		testutil.VariantSpec{SKU: "jacket-l", Price: "100", Currency: "USD", Stock: 5, Weight: 900},
	)
	user := env.createUser(t, "09120000004")
	medium, large := product.Variants[0], product.Variants[1]

	for _, id := range []uint{medium.ID, large.ID} {
		w, _ := env.do(t, request{method: http.MethodPost, path: "/carts/add", body: gin.H{"variantID": id, "quantity": 3, "currency": "USD"}, userID: user.ID})
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.NoError(t, env.db.Model(&medium).Update("price", "120").Error)
	require.NoError(t, env.db.Model(&large).Update("stock", 1).Error)

	w, body := env.do(t, request{method: http.MethodGet, path: "/carts", userID: user.ID})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, true, body["revalidated"])
	report := body["revalidation"].(map[string]any)
	assert.Equal(t, true, report["changed"])
	assert.Equal(t, []any{float64(medium.ID)}, report["repriced"])
	assert.Equal(t, []any{float64(large.ID)}, report["clamped"])

	subtotal := body["subtotal"].(map[string]any)
	assert.Equal(t, "460.00", subtotal["amount"])
	assert.Equal(t, "USD", subtotal["currency"])
}

func TestGetCartWithoutCart(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, request{method: http.MethodGet, path: "/carts"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Cart not found", body["message"])
}

func TestMergeCartSkipsOtherCurrency(t *testing.T) {
	env := newTestEnv(t)
	product := testutil.SeedProduct(t, env.db, "hat",
		testutil.VariantSpec{SKU: "hat-1", Price: "15", Currency: "USD", Stock: 5, Weight: 100},
		testutil.VariantSpec{SKU: "hat-2", Price: "15", Currency: "USD", Stock: 5, Weight: 100},
	)
	user := env.createUser(t, "09120000005")

	// user cart is locked to IRR
	w, _ := env.do(t, request{method: http.MethodPost, path: "/carts/add", body: gin.H{"variantID": product.Variants[0].ID, "quantity": 1, "currency": "IRR"}, userID: user.ID})
	require.Equal(t, http.StatusOK, w.Code)

	// guest cart in USD
	w, _ = env.do(t, request{method: http.MethodPost, path: "/carts/add", body: gin.H{"variantID": product.Variants[1].ID, "quantity": 2, "currency": "USD"}})
	require.Equal(t, http.StatusOK, w.Code)
	cookie := cookieNamed(w, anonymousCartCookie)
	require.NotNil(t, cookie)

	w, body := env.do(t, request{method: http.MethodPost, path: "/user/carts/merge", userID: user.ID, cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.EqualValues(t, 0, body["merged"])
	assert.Equal(t, []any{float64(product.Variants[1].ID)}, body["skipped"])
	assert.Equal(t, "IRR", body["lockedCurrency"])

	var carts int64
	require.NoError(t, env.db.Model(&models.Cart{}).Count(&carts).Error)
	assert.EqualValues(t, 1, carts)
}
