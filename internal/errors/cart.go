package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors of the cart error taxonomy. Match with errors.Is.
var (
	// ErrValidation is returned for bad quantities or ids; never sent to the network.
	ErrValidation = stderrors.New("validation error")

	// ErrOutOfStock is returned when the requested quantity exceeds available stock.
	ErrOutOfStock = stderrors.New("out of stock")

	// ErrNetwork is returned on transport failures, timeouts and malformed responses.
	ErrNetwork = stderrors.New("network error")

	// ErrAuth is returned when the session is missing or was invalidated.
	ErrAuth = stderrors.New("session invalid")

	// ErrNotFound is returned when a cart line does not exist.
	ErrNotFound = stderrors.New("cart line not found")

	// ErrOperationCancelled is returned for queued operations dropped by a clear.
	ErrOperationCancelled = stderrors.New("operation cancelled")
)

// CartError carries the failed operation and product context of a taxonomy error.
type CartError struct {
	Kind      error  // one of the sentinels above
	Op        string // add, update, remove, clear, fetch, merge
	ProductID string
	LineID    string
	Message   string // upstream or validation message, surfaced verbatim
	Err       error  // underlying cause, if any
}

func (e *CartError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ProductID != "" {
		msg += fmt.Sprintf(" (product %s)", e.ProductID)
	} else if e.LineID != "" {
		msg += fmt.Sprintf(" (line %s)", e.LineID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *CartError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newCartError(kind error, op, message string) *CartError {
	return &CartError{Kind: kind, Op: op, Message: message}
}

func Validation(op, message string) *CartError {
	return newCartError(ErrValidation, op, message)
}

func OutOfStock(op, productID, message string) *CartError {
	e := newCartError(ErrOutOfStock, op, message)
	e.ProductID = productID
	return e
}

func Network(op string, cause error) *CartError {
	e := newCartError(ErrNetwork, op, "")
	e.Err = cause
	return e
}

func Auth(op, message string) *CartError {
	return newCartError(ErrAuth, op, message)
}

func NotFound(op, lineID string) *CartError {
	e := newCartError(ErrNotFound, op, "")
	e.LineID = lineID
	return e
}

func Cancelled(op string) *CartError {
	return newCartError(ErrOperationCancelled, op, "")
}

// WithProduct returns a copy of e annotated with productID.
func (e *CartError) WithProduct(productID string) *CartError {
	out := *e
	out.ProductID = productID
	return &out
}

// Is* helpers match the sentinel anywhere in the chain.

func IsValidation(err error) bool { return stderrors.Is(err, ErrValidation) }
func IsOutOfStock(err error) bool { return stderrors.Is(err, ErrOutOfStock) }
func IsNetwork(err error) bool    { return stderrors.Is(err, ErrNetwork) }
func IsAuth(err error) bool       { return stderrors.Is(err, ErrAuth) }
func IsNotFound(err error) bool   { return stderrors.Is(err, ErrNotFound) }

// AsCartError unwraps err into a *CartError when it carries one.
func AsCartError(err error) (*CartError, bool) {
	var ce *CartError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
