package services

import (
	"context"

	domain "github.com/maplecart/api/internal/domain"
)

// CartService exposes the live pricing preview and promo code entry for a shopper's cart.
type CartService interface {
	Preview(ctx context.Context, cmd CartPreviewCommand) (CartPreview, error)
	ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (PromotionApplyResult, error)
	RemovePromotion(ctx context.Context, userID string) (CartPreview, error)
}

// CheckoutService runs the authoritative pricing pass and creates the order.
type CheckoutService interface {
	SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error)
}

// OrderService reads orders created at checkout.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
}

// SystemService exposes health reports for operational endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// CartPreviewCommand prices the stored cart. A nil Destination uses the cart's saved destination.
type CartPreviewCommand struct {
	UserID      string
	Destination *domain.Destination
}

// CartPreview is a non-binding total for display.
type CartPreview struct {
	CartID      string
	CartVersion int64
	Destination domain.Destination
	Promotion   domain.PromoSession
	Total       domain.OrderTotal
}

// ApplyPromotionCommand submits a promo code for the shopper's cart.
type ApplyPromotionCommand struct {
	UserID      string
	Code        string
	Destination *domain.Destination
}

// PromotionApplyResult carries the validation outcome and the preview that reflects it.
// A rejected code is not an error: Validation.ErrorKind explains it and the preview falls
// back to the volume discount.
type PromotionApplyResult struct {
	Validation PromoValidation
	Preview    CartPreview
}

// SubmitOrderCommand places an order for the shopper's current cart.
type SubmitOrderCommand struct {
	UserID         string
	Destination    *domain.Destination
	IdempotencyKey string
}

// SubmitOrderResult returns the persisted order. Warning is set when the order total was
// corrected after submission (for example, a promo code that could not be redeemed).
type SubmitOrderResult struct {
	Order        domain.Order
	ClientSecret string
	Warning      *OrderWarning
}

// OrderWarning is a non-fatal, user visible notice attached to a submitted order.
type OrderWarning struct {
	Code           string
	Message        string
	PreviousTotal  int64
	CorrectedTotal int64
}
