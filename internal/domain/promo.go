package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPromoTransition is returned when a promo session is asked to perform an illegal state change.
var ErrPromoTransition = errors.New("promo: illegal state transition")

// PromoKind determines how a promo code derives its discount amount.
type PromoKind string

const (
	PromoKindFixed   PromoKind = "fixed"
	PromoKindPercent PromoKind = "percent"
)

// PromoCode is the ledger definition of a promotional code.
type PromoCode struct {
	Code          string
	Kind          PromoKind
	FixedAmount   int64
	Percentage    decimal.Decimal
	MinSubtotal   int64
	RemainingUses int64
	ExpiresAt     time.Time
	Active        bool
}

// Expired reports whether the code has passed its expiry at the given instant.
func (p PromoCode) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// NormalizePromoCode trims and upper-cases a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PromoState is the lifecycle state of a promo code within a cart/order.
type PromoState string

// Redeemed and RedemptionFailed are terminal.
const (
	PromoStateUnvalidated      PromoState = "unvalidated"
	PromoStateValidating       PromoState = "validating"
	PromoStateApplied          PromoState = "applied"
	PromoStateRedeeming        PromoState = "redeeming"
	PromoStateRedeemed         PromoState = "redeemed"
	PromoStateRedemptionFailed PromoState = "redemption_failed"
)

// PromoErrorKind classifies promo validation and redemption failures.
type PromoErrorKind string

const (
	PromoErrorNone          PromoErrorKind = ""
	PromoErrorInvalidCode   PromoErrorKind = "invalid_code"
	PromoErrorUsageExceeded PromoErrorKind = "usage_exceeded"
	PromoErrorBelowMinimum  PromoErrorKind = "below_minimum_subtotal"
	// PromoErrorNetwork is the only retryable kind.
	PromoErrorNetwork PromoErrorKind = "network_error"
)

// PromoSession tracks one promo code through validation and redemption.
// The zero value is an empty, unvalidated session.
type PromoSession struct {
	Code              string
	State             PromoState
	DiscountAmount    int64
	ValidatedSubtotal int64
	CartVersion       int64
	ErrorKind         PromoErrorKind
	UpdatedAt         time.Time
}

// CurrentState treats an unset state as unvalidated.
func (s PromoSession) CurrentState() PromoState {
	if s.State == "" {
		return PromoStateUnvalidated
	}
	return s.State
}

// IsApplied reports whether the promo discount participates in totals, which replaces the volume discount.
func (s PromoSession) IsApplied() bool {
	switch s.CurrentState() {
	case PromoStateApplied, PromoStateRedeeming, PromoStateRedeemed:
		return strings.TrimSpace(s.Code) != ""
	default:
		return false
	}
}

// BeginValidation moves an unvalidated (or previously applied) session into validation for code.
func (s PromoSession) BeginValidation(code string, now time.Time) (PromoSession, error) {
	switch s.CurrentState() {
	case PromoStateUnvalidated, PromoStateApplied:
	default:
		return s, transitionError(s.CurrentState(), PromoStateValidating)
	}
	return PromoSession{
		Code:      NormalizePromoCode(code),
		State:     PromoStateValidating,
		UpdatedAt: now,
	}, nil
}

// CompleteValidation records the validation outcome. Failures fall back to unvalidated with the error kind kept.
func (s PromoSession) CompleteValidation(valid bool, amount, subtotal, cartVersion int64, kind PromoErrorKind, now time.Time) (PromoSession, error) {
	if s.CurrentState() != PromoStateValidating {
		return s, transitionError(s.CurrentState(), PromoStateApplied)
	}
	next := s
	next.UpdatedAt = now
	next.CartVersion = cartVersion
	if !valid {
		next.State = PromoStateUnvalidated
		next.DiscountAmount = 0
		next.ValidatedSubtotal = 0
		next.ErrorKind = kind
		return next, nil
	}
	if amount < 0 {
		amount = 0
	}
	next.State = PromoStateApplied
	next.DiscountAmount = amount
	next.ValidatedSubtotal = subtotal
	next.ErrorKind = PromoErrorNone
	return next, nil
}

// BeginRedemption is invoked once at order submission.
func (s PromoSession) BeginRedemption(now time.Time) (PromoSession, error) {
	if s.CurrentState() != PromoStateApplied {
		return s, transitionError(s.CurrentState(), PromoStateRedeeming)
	}
	next := s
	next.State = PromoStateRedeeming
	next.UpdatedAt = now
	return next, nil
}

// CompleteRedemption finalises the session. It can only happen once.
func (s PromoSession) CompleteRedemption(success bool, kind PromoErrorKind, now time.Time) (PromoSession, error) {
	target := PromoStateRedeemed
	if !success {
		target = PromoStateRedemptionFailed
	}
	if s.CurrentState() != PromoStateRedeeming {
		return s, transitionError(s.CurrentState(), target)
	}
	next := s
	next.State = target
	next.UpdatedAt = now
	if !success {
		next.ErrorKind = kind
	}
	return next, nil
}

func transitionError(from, to PromoState) error {
	return fmt.Errorf("%w: %s -> %s", ErrPromoTransition, from, to)
}
