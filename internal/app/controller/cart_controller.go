package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/internal/app/viewmodel"
	apperrors "github.com/ikkim/storefront-cart/internal/errors"
	"github.com/ikkim/storefront-cart/internal/gateway"
	"github.com/ikkim/storefront-cart/internal/middleware"
	"github.com/ikkim/storefront-cart/internal/session"
	"github.com/shopspring/decimal"
)

// CheckoutSource prices the parts of a checkout the storefront owns.
type CheckoutSource interface {
	ActiveDeliveryFee(ctx context.Context) (*gateway.DeliveryFee, error)
	ValidateCoupon(ctx context.Context, code string, orderAmount float64) (*gateway.CouponValidation, error)
}

type CartController struct {
	checkout CheckoutSource
}

func NewCartController(checkout CheckoutSource) *CartController {
	return &CartController{
		checkout: checkout,
	}
}

type ProductPayload struct {
	ID            string   `json:"id" binding:"required"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	SKU           string   `json:"sku"`
	Price         float64  `json:"price" binding:"gte=0"`
	DiscountPrice *float64 `json:"discount_price"`
	Stock         int      `json:"stock"`
	ImageURL      string   `json:"image_url"`
}

func (p ProductPayload) toModel() model.Product {
	return model.Product{
		ID:            p.ID,
		Name:          p.Name,
		Slug:          p.Slug,
		SKU:           p.SKU,
		Price:         p.Price,
		DiscountPrice: p.DiscountPrice,
		Stock:         p.Stock,
		ImageURL:      p.ImageURL,
		IsActive:      true,
	}
}

type AddToCartRequest struct {
	Product ProductPayload `json:"product"`
	// Quantity 0 adds one unit
	Quantity int `json:"quantity" binding:"gte=0"`
}

type UpdateCartItemRequest struct {
	// Quantity 0 removes the line
	Quantity *int `json:"quantity" binding:"required"`
}

// CartErrorResponse is an error body that also carries the cart as it stands
// after the failed operation was rolled back.
type CartErrorResponse struct {
	apperrors.ErrorResponse
	Cart *viewmodel.CartView `json:"cart"`
}

// GetCart returns the session's cart
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// AddToCart adds a product to the cart
// POST /api/v1/cart/items
func (ctrl *CartController) AddToCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	_, err := sess.Engine.AddToCart(c.Request.Context(), req.Product.toModel(), req.Quantity)
	if err != nil {
		respondCartError(c, sess, err, "add", map[string]interface{}{
			"product_id": req.Product.ID,
			"quantity":   req.Quantity,
		})
		return
	}

	log.Info("Item added to cart", map[string]interface{}{
		"session_id": sess.ID,
		"product_id": req.Product.ID,
		"quantity":   req.Quantity,
	})
	c.JSON(http.StatusOK, sess.View())
}

// UpdateCartItem sets a line's quantity
// PUT /api/v1/cart/items/:id
func (ctrl *CartController) UpdateCartItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	lineID := c.Param("id")
	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid update cart request", map[string]interface{}{
			"session_id": sess.ID,
			"line_id":    lineID,
			"error":      err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidQuantity, "Quantity is required")
		return
	}

	if _, err := sess.Engine.UpdateQuantity(c.Request.Context(), lineID, *req.Quantity); err != nil {
		respondCartError(c, sess, err, "update", map[string]interface{}{
			"line_id":  lineID,
			"quantity": *req.Quantity,
		})
		return
	}

	log.Info("Cart item updated", map[string]interface{}{
		"session_id": sess.ID,
		"line_id":    lineID,
		"quantity":   *req.Quantity,
	})
	c.JSON(http.StatusOK, sess.View())
}

// RemoveCartItem removes a line
// DELETE /api/v1/cart/items/:id
func (ctrl *CartController) RemoveCartItem(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	lineID := c.Param("id")
	if _, err := sess.Engine.RemoveFromCart(c.Request.Context(), lineID); err != nil {
		respondCartError(c, sess, err, "remove", map[string]interface{}{
			"line_id": lineID,
		})
		return
	}

	middleware.GetLoggerFromContext(c).Info("Cart item removed", map[string]interface{}{
		"session_id": sess.ID,
		"line_id":    lineID,
	})
	c.JSON(http.StatusOK, sess.View())
}

// ClearCart empties the cart
// DELETE /api/v1/cart
func (ctrl *CartController) ClearCart(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	if _, err := sess.Engine.ClearCart(c.Request.Context()); err != nil {
		respondCartError(c, sess, err, "clear", nil)
		return
	}

	middleware.GetLoggerFromContext(c).Info("Cart cleared", map[string]interface{}{
		"session_id": sess.ID,
	})
	c.JSON(http.StatusOK, sess.View())
}

// CheckoutSummary returns subtotal, delivery fee, coupon discount and total.
// The discount is whatever the storefront grants for the coupon code.
// GET /api/v1/checkout/summary?coupon=
func (ctrl *CartController) CheckoutSummary(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	view := sess.View()

	delivery := decimal.Zero
	fee, err := ctrl.checkout.ActiveDeliveryFee(ctx)
	if err != nil {
		log.Error("Failed to fetch delivery fee", err, map[string]interface{}{
			"session_id": sess.ID,
		})
		apperrors.RespondWithCartError(c, err)
		return
	}
	if fee != nil {
		delivery = decimal.NewFromFloat(fee.Fee)
	}

	discount := decimal.Zero
	couponCode := strings.TrimSpace(c.Query("coupon"))
	if couponCode != "" {
		orderAmount, _ := view.Subtotal.Float64()
		coupon, err := ctrl.checkout.ValidateCoupon(ctx, couponCode, orderAmount)
		if err != nil {
			if apperrors.IsValidation(err) {
				log.Info("Coupon rejected", map[string]interface{}{
					"session_id": sess.ID,
					"coupon":     couponCode,
					"error":      err.Error(),
				})
				apperrors.BadRequest(c, apperrors.CouponInvalid, couponMessage(err))
				return
			}
			log.Error("Failed to validate coupon", err, map[string]interface{}{
				"session_id": sess.ID,
				"coupon":     couponCode,
			})
			apperrors.RespondWithCartError(c, err)
			return
		}
		discount = decimal.NewFromFloat(coupon.DiscountAmount)
	}

	summary := viewmodel.Checkout(view, delivery, discount)
	summary.CouponCode = couponCode
	c.JSON(http.StatusOK, summary)
}

func couponMessage(err error) string {
	if ce, ok := apperrors.AsCartError(err); ok && ce.Message != "" {
		return ce.Message
	}
	return "This coupon cannot be applied"
}

func requireSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		middleware.GetLoggerFromContext(c).Error("Cart session missing from context", nil)
		apperrors.InternalError(c, "")
		return nil, false
	}
	return sess, true
}

// respondCartError writes the taxonomy error together with the current cart.
func respondCartError(c *gin.Context, sess *session.Session, err error, op string, fields map[string]interface{}) {
	log := middleware.GetLoggerFromContext(c)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["session_id"] = sess.ID
	fields["op"] = op
	fields["error"] = err.Error()

	info := apperrors.ParseError(err)
	if info.Status >= http.StatusInternalServerError {
		log.Error("Cart operation failed", err, fields)
	} else {
		log.Warn("Cart operation rejected", fields)
	}

	c.JSON(info.Status, CartErrorResponse{
		ErrorResponse: apperrors.ErrorResponse{Error: info.Code, Message: info.Message},
		Cart:          sess.View(),
	})
}
