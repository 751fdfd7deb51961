package errors

// Error code constants.
// Format: CATEGORY_SPECIFIC_DETAIL
// The storefront UI maps these codes to toast messages.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized   = "AUTH_UNAUTHORIZED"    // login required
	AuthSessionExpired = "AUTH_SESSION_EXPIRED" // session invalidated mid-operation

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput    = "VALIDATION_INVALID_INPUT"
	ValidationInvalidQuantity = "VALIDATION_INVALID_QUANTITY"
	ValidationInvalidID       = "VALIDATION_INVALID_ID"

	// ==================== Cart (CART_) ====================
	CartOutOfStock         = "CART_OUT_OF_STOCK"
	CartLineNotFound       = "CART_LINE_NOT_FOUND"
	CartOperationCancelled = "CART_OPERATION_CANCELLED"

	// ==================== Coupon (COUPON_) ====================
	CouponInvalid = "COUPON_INVALID" // unknown, expired or below minimum order

	// ==================== Network (NETWORK_) ====================
	NetworkUnavailable = "NETWORK_UNAVAILABLE"
	NetworkTimeout     = "NETWORK_TIMEOUT"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError = "INTERNAL_SERVER_ERROR"
)
