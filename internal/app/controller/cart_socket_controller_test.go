package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/ikkim/storefront-cart/config"
	"github.com/ikkim/storefront-cart/internal/app/repository"
	"github.com/ikkim/storefront-cart/internal/app/viewmodel"
	"github.com/ikkim/storefront-cart/internal/gateway"
	"github.com/ikkim/storefront-cart/internal/middleware"
	"github.com/ikkim/storefront-cart/internal/session"
	ws "github.com/ikkim/storefront-cart/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketFrame struct {
	Type string             `json:"type"`
	Data viewmodel.CartView `json:"data"`
}

func setupSocketServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := &storeUpstream{}
	registry := session.NewRegistry(session.Options{
		Storage: repository.NewMemoryStorage(),
		Upstream: func(tokens gateway.TokenSource) session.Upstream {
			return &boundUpstream{store: store, tokens: tokens}
		},
		KeyPrefix: "test",
	})
	sessions := middleware.NewSessionMiddleware(registry, config.SessionConfig{
		CookieName:     "sf_guest",
		CookieLifetime: time.Hour,
	})
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	carts := NewCartController(fakeCheckout{})
	sockets := NewCartSocketController(hub, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.LoggingMiddleware(), sessions.Attach())
	router.GET("/api/v1/cart", carts.GetCart)
	router.POST("/api/v1/cart/items", carts.AddToCart)
	router.GET("/api/v1/ws/cart", sockets.Stream)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func readFrame(t *testing.T, conn *gorillaws.Conn) socketFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame socketFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestCartSocketController_PushesViews(t *testing.T) {
	srv := setupSocketServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/cart")
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEmpty(t, resp.Cookies())
	cookie := resp.Cookies()[0]

	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/cart"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	initial := readFrame(t, conn)
	assert.Equal(t, "cart", initial.Type)
	assert.True(t, initial.Data.IsEmpty)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/cart/items",
		strings.NewReader(`{"product":{"id":"p1","name":"Ring","price":10,"stock":5},"quantity":2}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pushed := readFrame(t, conn)
	assert.Equal(t, 2, pushed.Data.TotalItems)
	assert.Greater(t, pushed.Data.Version, initial.Data.Version)
}
