package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ikkim/storefront-cart/internal/app/model"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
)

// CheckSession asks the storefront who the current token belongs to.
// A missing or rejected token is not an error: it returns a nil user.
func (c *Client) CheckSession(ctx context.Context) (*model.SessionUser, error) {
	if c.tokens == nil {
		return nil, nil
	}
	if token, err := c.tokens.Token(); err != nil || token == "" {
		return nil, nil
	}

	body, err := c.doRequest(ctx, "session", http.MethodGet, "/auth/me", nil, "", true)
	if err != nil {
		if apperrors.IsAuth(err) {
			return nil, nil
		}
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.Network("session", fmt.Errorf("failed to unmarshal session response: %w", err))
	}
	u := resp.User
	if u == nil {
		u = resp.Data
	}
	if u == nil || u.ID == "" {
		return nil, apperrors.Network("session", fmt.Errorf("session response has no user"))
	}

	role := model.RoleUser
	if u.Role == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}
	return &model.SessionUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: role}, nil
}
