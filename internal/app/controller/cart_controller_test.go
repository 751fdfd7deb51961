package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ikkim/storefront-cart/config"
	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/internal/app/repository"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/internal/gateway"
	"github.com/ikkim/storefront-cart/internal/middleware"
	"github.com/ikkim/storefront-cart/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUpstream is an in-memory storefront shared by every session of a test.
type storeUpstream struct {
	mu    sync.Mutex
	lines []model.CartLine
}

type boundUpstream struct {
	store  *storeUpstream
	tokens gateway.TokenSource
}

func (s *storeUpstream) cartLocked() *model.Cart {
	cart := &model.Cart{ID: "cart-1", UserID: "user-1", Mode: model.CartModeAuthenticated, Lines: []*model.CartLine{}}
	for i := range s.lines {
		line := s.lines[i]
		cart.Lines = append(cart.Lines, &line)
	}
	return cart
}

func (u *boundUpstream) authorized() error {
	token, err := u.tokens.Token()
	if err != nil || token == "" {
		return apperrors.Auth("request", "no session")
	}
	return nil
}

func (u *boundUpstream) GetCart(ctx context.Context) (*model.Cart, error) {
	if err := u.authorized(); err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return u.store.cartLocked(), nil
}

func (u *boundUpstream) AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if err := u.authorized(); err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := range u.store.lines {
		if u.store.lines[i].ProductID == productID {
			u.store.lines[i].Quantity += quantity
			return u.store.cartLocked(), nil
		}
	}
	u.store.lines = append(u.store.lines, model.CartLine{
		ID:        "srv-" + productID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: 10,
		Product:   model.Product{ID: productID, Name: "Product " + productID, Price: 10, Stock: 50},
	})
	return u.store.cartLocked(), nil
}

func (u *boundUpstream) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*model.Cart, error) {
	if err := u.authorized(); err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := range u.store.lines {
		if u.store.lines[i].ID == itemID {
			u.store.lines[i].Quantity = quantity
			return u.store.cartLocked(), nil
		}
	}
	return nil, apperrors.NotFound("update", itemID)
}

func (u *boundUpstream) RemoveItem(ctx context.Context, itemID string) (*model.Cart, error) {
	if err := u.authorized(); err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := range u.store.lines {
		if u.store.lines[i].ID == itemID {
			u.store.lines = append(u.store.lines[:i], u.store.lines[i+1:]...)
			return u.store.cartLocked(), nil
		}
	}
	return nil, apperrors.NotFound("remove", itemID)
}

func (u *boundUpstream) ClearCart(ctx context.Context) (*model.Cart, error) {
	if err := u.authorized(); err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.store.lines = nil
	return u.store.cartLocked(), nil
}

func (u *boundUpstream) CheckSession(ctx context.Context) (*model.SessionUser, error) {
	if u.authorized() != nil {
		return nil, nil
	}
	return &model.SessionUser{ID: "user-1", Email: "buyer@example.com", Role: model.RoleUser}, nil
}

type fakeCheckout struct {
	fee    *gateway.DeliveryFee
	err    error
	coupon func(code string, orderAmount float64) (*gateway.CouponValidation, error)
}

func (f fakeCheckout) ActiveDeliveryFee(ctx context.Context) (*gateway.DeliveryFee, error) {
	return f.fee, f.err
}

func (f fakeCheckout) ValidateCoupon(ctx context.Context, code string, orderAmount float64) (*gateway.CouponValidation, error) {
	if f.coupon == nil {
		return nil, apperrors.Validation("coupon", "Coupon not found")
	}
	return f.coupon(code, orderAmount)
}

// cartClient replays the guest cookie across requests like a browser.
type cartClient struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
	token  string
}

func setupCartControllerTest(t *testing.T, checkout CheckoutSource) *cartClient {
	t.Helper()
	store := &storeUpstream{}
	registry := session.NewRegistry(session.Options{
		Storage: repository.NewMemoryStorage(),
		Upstream: func(tokens gateway.TokenSource) session.Upstream {
			return &boundUpstream{store: store, tokens: tokens}
		},
		KeyPrefix:        "test",
		OperationTimeout: time.Second,
	})
	sessions := middleware.NewSessionMiddleware(registry, config.SessionConfig{
		CookieName:     "sf_guest",
		CookieLifetime: time.Hour,
	})
	carts := NewCartController(checkout)
	auth := NewSessionController()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.LoggingMiddleware(), sessions.Attach())
	v1 := router.Group("/api/v1")
	v1.GET("/cart", carts.GetCart)
	v1.POST("/cart/items", carts.AddToCart)
	v1.PUT("/cart/items/:id", carts.UpdateCartItem)
	v1.DELETE("/cart/items/:id", carts.RemoveCartItem)
	v1.DELETE("/cart", carts.ClearCart)
	v1.GET("/checkout/summary", carts.CheckoutSummary)
	v1.POST("/session/login", sessions.RequireToken(), auth.Login)
	v1.POST("/session/logout", auth.Logout)

	return &cartClient{t: t, router: router}
}

func (c *cartClient) do(method, path string, body interface{}) (int, map[string]interface{}) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "sf_guest" {
			c.cookie = cookie
		}
	}

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func signedToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "buyer@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func ring(stock int) map[string]interface{} {
	return map[string]interface{}{
		"id":    "p1",
		"name":  "Gold Ring",
		"price": 10,
		"stock": stock,
	}
}

func lines(body map[string]interface{}) []interface{} {
	raw, _ := body["lines"].([]interface{})
	return raw
}

func TestCartController_GuestFlow(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})

	status, body := client.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_empty"])
	assert.Equal(t, true, body["is_guest"])

	status, body = client.do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{
		"product":  ring(3),
		"quantity": 2,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total_items"])
	assert.Equal(t, "20", body["subtotal"])
	require.Len(t, lines(body), 1)
	line := lines(body)[0].(map[string]interface{})
	assert.Equal(t, "p1", line["id"])
	assert.Equal(t, true, line["can_increment"])

	t.Run("update clamps to stock", func(t *testing.T) {
		status, body := client.do(http.MethodPut, "/api/v1/cart/items/p1", map[string]interface{}{"quantity": 5})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(3), body["total_items"])
	})

	t.Run("cart survives across requests", func(t *testing.T) {
		status, body := client.do(http.MethodGet, "/api/v1/cart", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(3), body["total_items"])
	})

	t.Run("remove then remove again", func(t *testing.T) {
		status, body := client.do(http.MethodDelete, "/api/v1/cart/items/p1", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["is_empty"])

		status, body = client.do(http.MethodDelete, "/api/v1/cart/items/p1", nil)
		require.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, apperrors.CartLineNotFound, body["error"])
		require.NotNil(t, body["cart"])
	})
}

func TestCartController_AddValidation(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing product id", map[string]interface{}{"product": map[string]interface{}{"price": 10, "stock": 1}, "quantity": 1}},
		{"negative quantity", map[string]interface{}{"product": ring(3), "quantity": -1}},
		{"negative price", map[string]interface{}{"product": map[string]interface{}{"id": "p2", "price": -1, "stock": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := client.do(http.MethodPost, "/api/v1/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}

	status, _ := client.do(http.MethodPut, "/api/v1/cart/items/p1", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCartController_AddOutOfStock(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})

	status, body := client.do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{
		"product":  ring(0),
		"quantity": 1,
	})

	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperrors.CartOutOfStock, body["error"])
	cart, ok := body["cart"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, cart["is_empty"])
}

func TestCartController_ClearCart(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})

	client.do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"product": ring(3)})
	status, body := client.do(http.MethodDelete, "/api/v1/cart", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_empty"])
	assert.Equal(t, float64(0), body["total_items"])
}

func TestCartController_CheckoutSummary(t *testing.T) {
	var orderAmounts []float64
	client := setupCartControllerTest(t, fakeCheckout{
		fee: &gateway.DeliveryFee{ID: "fee-1", Fee: 5, Status: "active"},
		coupon: func(code string, orderAmount float64) (*gateway.CouponValidation, error) {
			orderAmounts = append(orderAmounts, orderAmount)
			switch code {
			case "SAVE10":
				return &gateway.CouponValidation{Valid: true, Code: code, DiscountType: "percentage", DiscountValue: 10, DiscountAmount: 2}, nil
			case "DOWN":
				return nil, apperrors.Network("coupon", errors.New("connection refused"))
			}
			return nil, apperrors.Validation("coupon", "Coupon has expired")
		},
	})
	client.do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"product": ring(3), "quantity": 2})

	status, body := client.do(http.MethodGet, "/api/v1/checkout/summary", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "20", body["subtotal"])
	assert.Equal(t, "5", body["delivery"])
	assert.Equal(t, "0", body["discount"])
	assert.Equal(t, "25", body["total"])
	assert.Equal(t, float64(2), body["total_items"])
	assert.Nil(t, body["coupon_code"])

	t.Run("valid coupon uses the storefront discount", func(t *testing.T) {
		status, body := client.do(http.MethodGet, "/api/v1/checkout/summary?coupon=SAVE10", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "2", body["discount"])
		assert.Equal(t, "23", body["total"])
		assert.Equal(t, "SAVE10", body["coupon_code"])
		assert.Equal(t, []float64{20}, orderAmounts)
	})

	t.Run("client supplied discount is ignored", func(t *testing.T) {
		status, body := client.do(http.MethodGet, "/api/v1/checkout/summary?discount=25", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "0", body["discount"])
		assert.Equal(t, "25", body["total"])
	})

	t.Run("invalid coupon", func(t *testing.T) {
		status, body := client.do(http.MethodGet, "/api/v1/checkout/summary?coupon=OLD", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, apperrors.CouponInvalid, body["error"])
		assert.Equal(t, "Coupon has expired", body["message"])
	})

	t.Run("coupon service down", func(t *testing.T) {
		status, body := client.do(http.MethodGet, "/api/v1/checkout/summary?coupon=DOWN", nil)
		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, apperrors.NetworkUnavailable, body["error"])
	})
}

func TestCartController_CheckoutSummaryUpstreamDown(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{err: apperrors.Network("delivery_fee", errors.New("connection refused"))})

	status, body := client.do(http.MethodGet, "/api/v1/checkout/summary", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, apperrors.NetworkUnavailable, body["error"])
}

func TestSessionController_LoginRequiresToken(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})

	status, body := client.do(http.MethodPost, "/api/v1/session/login", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apperrors.AuthUnauthorized, body["error"])
}

func TestSessionController_LoginMergesGuestCart(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})
	client.do(http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"product": ring(3), "quantity": 2})

	client.token = signedToken(t)
	status, body := client.do(http.MethodPost, "/api/v1/session/login", nil)
	require.Equal(t, http.StatusOK, status)

	merge := body["merge"].(map[string]interface{})
	merged := merge["merged"].([]interface{})
	require.Len(t, merged, 1)
	assert.Equal(t, "p1", merged[0].(map[string]interface{})["product_id"])
	assert.Empty(t, merge["skipped"])

	cart := body["cart"].(map[string]interface{})
	assert.Equal(t, "authenticated", cart["state"])
	assert.Equal(t, false, cart["is_guest"])
	require.Len(t, lines(cart), 1)
	assert.Equal(t, "srv-p1", lines(cart)[0].(map[string]interface{})["id"])

	t.Run("mutations go to the server cart", func(t *testing.T) {
		status, body := client.do(http.MethodPut, "/api/v1/cart/items/srv-p1", map[string]interface{}{"quantity": 4})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(4), body["total_items"])
	})

	t.Run("second login merges nothing", func(t *testing.T) {
		status, body := client.do(http.MethodPost, "/api/v1/session/login", nil)
		require.Equal(t, http.StatusOK, status)
		merge := body["merge"].(map[string]interface{})
		assert.Empty(t, merge["merged"])
		assert.Equal(t, float64(4), body["cart"].(map[string]interface{})["total_items"])
	})

	t.Run("logout returns the empty guest cart", func(t *testing.T) {
		client.token = ""
		status, body := client.do(http.MethodPost, "/api/v1/session/logout", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "guest", body["state"])
		assert.Equal(t, true, body["is_empty"])
	})
}

func TestSessionController_ExpiredTokenStaysGuest(t *testing.T) {
	client := setupCartControllerTest(t, fakeCheckout{})
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	client.token = expired
	status, body := client.do(http.MethodPost, "/api/v1/session/login", nil)
	assert.Equal(t, http.StatusUnauthorized, status, fmt.Sprint(body))

	client.token = ""
	status, body = client.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "guest", body["state"])
}
