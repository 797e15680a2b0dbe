package domain

import "time"

// OrderStatus enumerates the order states this service writes.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Order is the persisted record created at checkout submission.
type Order struct {
	ID              string
	UserID          string
	CartID          string
	Status          OrderStatus
	Currency        string
	Lines           []CartLine
	Destination     Destination
	Totals          OrderTotal
	Promotion       *PromoSession
	PaymentIntentID string
	Corrections     []OrderCorrection
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderCorrection records a compensating change made to an already persisted order total.
type OrderCorrection struct {
	Reason         string
	PromotionCode  string
	PreviousTotal  int64
	CorrectedTotal int64
	Message        string
	CreatedAt      time.Time
}

// CorrectionReasonPromoRedemptionFailed marks a correction caused by a failed promo redemption.
const CorrectionReasonPromoRedemptionFailed = "promo_redemption_failed"
