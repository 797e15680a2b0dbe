package repositories

import (
	"context"

	domain "github.com/maplecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Promotions() PromotionLedger
	Orders() OrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRecord is the cart snapshot together with the promo session stored alongside it.
type CartRecord struct {
	Snapshot    domain.CartSnapshot
	Destination domain.Destination
	Promotion   domain.PromoSession
}

// CartRepository reads carts owned by the storefront and stores promo sessions on them.
// Line item edits happen elsewhere; every edit bumps the cart version.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (CartRecord, error)
	// SavePromotion persists the session only when the stored cart version still equals
	// expectedVersion, otherwise it returns a conflict error.
	SavePromotion(ctx context.Context, userID string, session domain.PromoSession, expectedVersion int64) error
}

// PromotionRedemption identifies a single use of a promo code by an order.
type PromotionRedemption struct {
	Code     string
	OrderRef string
	UserID   string
	Subtotal int64
}

// PromotionLedger is the authoritative store of promo codes and their usage counters.
type PromotionLedger interface {
	FindByCode(ctx context.Context, code string) (domain.PromoCode, error)
	// Redeem atomically consumes one use. Repeating a redemption for the same order
	// reference is a no-op.
	Redeem(ctx context.Context, redemption PromotionRedemption) error
}

// OrderRepository persists checkout orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
