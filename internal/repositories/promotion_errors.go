package repositories

import (
	"errors"
	"fmt"
)

// PromotionErrorCode enumerates ledger rejections for promo redemption.
type PromotionErrorCode string

const (
	PromotionErrorUnknown PromotionErrorCode = "promotion_unknown"
	// PromotionErrorInvalid covers missing, inactive and expired codes.
	PromotionErrorInvalid PromotionErrorCode = "promotion_invalid"
	// PromotionErrorExhausted indicates no remaining uses.
	PromotionErrorExhausted PromotionErrorCode = "promotion_exhausted"
	// PromotionErrorBelowMinimum indicates the order subtotal no longer meets the minimum.
	PromotionErrorBelowMinimum PromotionErrorCode = "promotion_below_minimum"
)

// PromotionError wraps ledger rejections with machine readable codes.
type PromotionError struct {
	Op      string
	Code    PromotionErrorCode
	Message string
	Err     error
}

func (e *PromotionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *PromotionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewPromotionError constructs a typed promotion error.
func NewPromotionError(op string, code PromotionErrorCode, message string) *PromotionError {
	if message == "" {
		message = string(code)
	}
	return &PromotionError{Op: op, Code: code, Message: message}
}

// PromotionErrorCodeOf returns the code carried by err, if any.
func PromotionErrorCodeOf(err error) (PromotionErrorCode, bool) {
	var promoErr *PromotionError
	if errors.As(err, &promoErr) && promoErr != nil {
		return promoErr.Code, true
	}
	return "", false
}
