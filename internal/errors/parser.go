package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// ErrorInfo error code and user-facing message pair
type ErrorInfo struct {
	Code    string
	Message string
	Status  int
}

// ParseError maps a cart error to a code and a message the UI can show as a
// toast. Upstream out-of-stock messages are surfaced verbatim.
func ParseError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "Something went wrong",
			Status:  http.StatusInternalServerError,
		}
	}

	ce, _ := AsCartError(err)

	switch {
	case IsOutOfStock(err):
		msg := "This product does not have enough stock"
		if ce != nil && ce.Message != "" {
			msg = ce.Message
		}
		return ErrorInfo{Code: CartOutOfStock, Message: msg, Status: http.StatusConflict}

	case IsValidation(err):
		msg := "Quantity must be at least 1"
		if ce != nil && ce.Message != "" {
			msg = ce.Message
		}
		return ErrorInfo{Code: ValidationInvalidQuantity, Message: msg, Status: http.StatusBadRequest}

	case IsNotFound(err):
		return ErrorInfo{
			Code:    CartLineNotFound,
			Message: "This item is no longer in your cart",
			Status:  http.StatusNotFound,
		}

	case IsAuth(err):
		return ErrorInfo{
			Code:    AuthSessionExpired,
			Message: "Your session has expired. Please sign in again",
			Status:  http.StatusUnauthorized,
		}

	case stderrors.Is(err, ErrOperationCancelled):
		return ErrorInfo{
			Code:    CartOperationCancelled,
			Message: "The cart was cleared before this change was applied",
			Status:  http.StatusConflict,
		}

	case IsNetwork(err):
		if stderrors.Is(err, context.DeadlineExceeded) {
			return ErrorInfo{
				Code:    NetworkTimeout,
				Message: "The store took too long to respond. Please try again",
				Status:  http.StatusGatewayTimeout,
			}
		}
		return ErrorInfo{
			Code:    NetworkUnavailable,
			Message: "Could not reach the store. Please try again",
			Status:  http.StatusBadGateway,
		}
	}

	return ErrorInfo{
		Code:    InternalServerError,
		Message: "Something went wrong. Please try again",
		Status:  http.StatusInternalServerError,
	}
}
