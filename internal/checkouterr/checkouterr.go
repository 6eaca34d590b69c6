package checkouterr

import (
	"errors"
	"fmt"
)

// Code classifies a checkout failure by how the caller recovers from it,
// not by where it came from.
type Code string

const (
	// CodeValidation covers malformed address or contact fields; shown
	// inline against the owning field, never mutates the cart.
	CodeValidation Code = "validation"
	// CodeNoCart means a mutation was attempted with no resolvable cart
	// id. Recoverable by recreating a cart and retrying once.
	CodeNoCart Code = "no_cart"
	// CodeOwnership is the 403-class security boundary; it must never be
	// conflated with a generic failure.
	CodeOwnership Code = "ownership"
	// CodeInsufficientBalance is a loyalty business-rule rejection.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeInsufficientInventory blocks selecting a shipping option that
	// cannot be fulfilled.
	CodeInsufficientInventory Code = "insufficient_inventory"
	// CodeRateUnavailable means a calculated-rate call failed or returned
	// no amount; selection is blocked rather than falling back to zero.
	CodeRateUnavailable Code = "rate_unavailable"
	// CodeBackend is everything else from the commerce backend or the
	// network; the cart is re-fetched to recover from partial effects.
	CodeBackend Code = "backend"
)

type Error struct {
	Status int
	Code   Code
	Field  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return string(e.Code)
	}
	if e.Status != 0 {
		return fmt.Sprintf("checkout error (%d)", e.Status)
	}
	return "checkout error"
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

func New(status int, code Code, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(field string, err error) *Error {
	return &Error{Status: 400, Code: CodeValidation, Field: field, Err: err}
}

func NoCart() *Error {
	return &Error{Status: 404, Code: CodeNoCart, Err: errors.New("no cart for this session")}
}

func Ownership(err error) *Error {
	return &Error{Status: 403, Code: CodeOwnership, Err: err}
}

func RateUnavailable(optionID string, err error) *Error {
	return &Error{Status: 502, Code: CodeRateUnavailable, Err: fmt.Errorf("no rate for shipping option %s: %w", optionID, err)}
}

func Backend(err error) *Error {
	return &Error{Status: 502, Code: CodeBackend, Err: err}
}

func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeBackend
}

func Is(err error, code Code) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
