package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/ikkim/storefront-cart/internal/errors"
)

type validateCouponRequest struct {
	Code        string  `json:"code"`
	OrderAmount float64 `json:"orderAmount"`
}

// CouponValidation is the storefront's verdict on a coupon code for one
// order amount. DiscountAmount is only meaningful when Valid is true.
type CouponValidation struct {
	Valid          bool    `json:"isValid"`
	Code           string  `json:"code"`
	DiscountType   string  `json:"discountType"`
	DiscountValue  float64 `json:"discountValue"`
	DiscountAmount float64 `json:"discountAmount"`
	Message        string  `json:"message,omitempty"`
}

// ValidateCoupon asks the storefront what code is worth against orderAmount.
// A rejected code comes back as a validation error.
func (c *Client) ValidateCoupon(ctx context.Context, code string, orderAmount float64) (*CouponValidation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Validation("coupon", "coupon code is required")
	}

	payload := validateCouponRequest{Code: code, OrderAmount: orderAmount}
	body, err := c.doRequest(ctx, "coupon", http.MethodPost, "/coupons/validate", payload, "", false)
	if err != nil {
		// unknown codes and "not available" wording are coupon rejections,
		// not missing cart lines or stock
		if ce, ok := apperrors.AsCartError(err); ok && (apperrors.IsOutOfStock(ce) || apperrors.IsNotFound(ce)) {
			msg := ce.Message
			if msg == "" {
				msg = "coupon not found"
			}
			return nil, apperrors.Validation("coupon", msg)
		}
		return nil, err
	}

	var env wireEnvelope[*CouponValidation]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperrors.Network("coupon", fmt.Errorf("failed to unmarshal coupon validation: %w", err))
	}
	result := env.Data
	if result == nil {
		return nil, apperrors.Network("coupon", fmt.Errorf("coupon validation returned no data: %s", env.Message))
	}
	if result.DiscountAmount < 0 {
		return nil, apperrors.Network("coupon", fmt.Errorf("negative coupon discount %v", result.DiscountAmount))
	}
	if !result.Valid {
		msg := result.Message
		if msg == "" {
			msg = "coupon is not valid for this order"
		}
		return nil, apperrors.Validation("coupon", msg)
	}
	if result.Code == "" {
		result.Code = code
	}
	return result, nil
}
