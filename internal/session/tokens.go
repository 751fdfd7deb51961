package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ikkim/storefront-cart/pkg/util"
)

var ErrTokenExpired = errors.New("session token expired")

// TokenHolder is the bearer token of one browser session. It is refreshed
// from every request's Authorization header.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenHolder() *TokenHolder {
	return &TokenHolder{now: time.Now}
}

// Set replaces the token and reports whether it changed.
func (h *TokenHolder) Set(token string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	changed := h.token != token
	h.token = token
	return changed
}

// Token returns the current token. An expired token is an error so the
// gateway fails with an auth error before any network call.
func (h *TokenHolder) Token() (string, error) {
	h.mu.RLock()
	token := h.token
	h.mu.RUnlock()

	if token == "" {
		return "", nil
	}
	if util.TokenExpired(token, h.now()) {
		return "", ErrTokenExpired
	}
	return token, nil
}

func (h *TokenHolder) Present() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token != ""
}
