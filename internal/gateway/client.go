package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/pkg/logger"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Client represents a storefront cart API client. It adds no retries; every
// failure is returned as a cart taxonomy error.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a new cart API client with the given configuration
func NewClient(config Config, tokens TokenSource) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// WithTokens returns a client sharing the transport but using another session's tokens.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	out := *c
	out.tokens = tokens
	return &out
}

// GetCart fetches the authenticated user's cart
func (c *Client) GetCart(ctx context.Context) (*model.Cart, error) {
	return c.cartRequest(ctx, "fetch", http.MethodGet, "/cart", nil, "")
}

// AddToCart adds quantity of productID; the server increments an existing line.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (*model.Cart, error) {
	if productID == "" {
		return nil, apperrors.Validation("add", "product id is required")
	}
	if quantity <= 0 {
		return nil, apperrors.Validation("add", "quantity must be at least 1").WithProduct(productID)
	}
	body := addToCartRequest{ProductID: productID, Quantity: quantity}
	return c.cartRequest(ctx, "add", http.MethodPost, "/cart/add", body, productID)
}

// UpdateQuantity sets the quantity of a server cart item
func (c *Client) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*model.Cart, error) {
	if itemID == "" {
		return nil, apperrors.Validation("update", "item id is required")
	}
	if quantity <= 0 {
		return nil, apperrors.Validation("update", "quantity must be at least 1")
	}
	path := "/cart/items/" + url.PathEscape(itemID) + "/quantity"
	return c.cartRequest(ctx, "update", http.MethodPut, path, updateQuantityRequest{Quantity: quantity}, "")
}

// RemoveItem deletes a server cart item
func (c *Client) RemoveItem(ctx context.Context, itemID string) (*model.Cart, error) {
	if itemID == "" {
		return nil, apperrors.Validation("remove", "item id is required")
	}
	return c.cartRequest(ctx, "remove", http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), nil, "")
}

// ClearCart empties the server cart
func (c *Client) ClearCart(ctx context.Context) (*model.Cart, error) {
	return c.cartRequest(ctx, "clear", http.MethodDelete, "/cart/clear", nil, "")
}

// ActiveDeliveryFee returns the active delivery fee, or nil when none is active.
func (c *Client) ActiveDeliveryFee(ctx context.Context) (*DeliveryFee, error) {
	body, err := c.doRequest(ctx, "delivery", http.MethodGet, "/delivery/fee/active", nil, "", false)
	if err != nil {
		return nil, err
	}

	var env wireEnvelope[*DeliveryFee]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Network("delivery", fmt.Errorf("failed to unmarshal delivery fee: %w", err))
	}
	if env.Data != nil && env.Data.Fee < 0 {
		return nil, apperrors.Network("delivery", fmt.Errorf("negative delivery fee %v", env.Data.Fee))
	}
	return env.Data, nil
}

func (c *Client) cartRequest(ctx context.Context, op, method, path string, payload interface{}, productID string) (*model.Cart, error) {
	body, err := c.doRequest(ctx, op, method, path, payload, productID, true)
	if err != nil {
		return nil, err
	}

	var env wireEnvelope[*wireCart]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Network(op, fmt.Errorf("failed to unmarshal cart response: %w", err))
	}
	if !env.Success {
		return nil, apperrors.Network(op, fmt.Errorf("cart response reported failure: %s", env.Message))
	}

	cart, err := toModelCart(env.Data)
	if err != nil {
		logger.Warn("Malformed cart response", map[string]interface{}{
			"op":    op,
			"path":  path,
			"error": err.Error(),
		})
		return nil, apperrors.Network(op, fmt.Errorf("malformed cart response: %w", err))
	}
	return cart, nil
}

// doRequest performs an HTTP request against the storefront API
func (c *Client) doRequest(ctx context.Context, op, method, path string, payload interface{}, productID string, requireAuth bool) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, apperrors.Auth(op, err.Error())
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		} else if requireAuth {
			return nil, apperrors.Auth(op, "no session token")
		}
	} else if requireAuth {
		return nil, apperrors.Auth(op, "no session token")
	}

	logger.Debug("Storefront API request", map[string]interface{}{
		"op":     op,
		"method": method,
		"path":   path,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Storefront API request failed", map[string]interface{}{
			"op":    op,
			"path":  path,
			"error": err.Error(),
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, apperrors.Network(op, ctxErr)
		}
		return nil, apperrors.Network(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.Network(op, fmt.Errorf("failed to read response body: %w", err))
	}

	logger.Debug("Storefront API response", map[string]interface{}{
		"op":         op,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(op, productID, resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus maps a non-2xx response onto the cart error taxonomy.
func classifyStatus(op, productID string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.text()

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Auth(op, msg)
	case status == http.StatusNotFound:
		e := apperrors.NotFound(op, "")
		e.ProductID = productID
		e.Message = msg
		return e
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		if mentionsStock(msg) {
			return apperrors.OutOfStock(op, productID, msg)
		}
		e := apperrors.Validation(op, msg)
		e.ProductID = productID
		return e
	default:
		return apperrors.Network(op, fmt.Errorf("unexpected status code: %d: %s", status, msg))
	}
}

func mentionsStock(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "stock") || strings.Contains(lower, "available")
}
