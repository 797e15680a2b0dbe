package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

// Registry wires the Firestore repositories around a single provider.
type Registry struct {
	provider   *pfirestore.Provider
	carts      *CartRepository
	promotions *PromotionRepository
	orders     *OrderRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository. health may be nil when readiness
// probes are not served by this process.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		carts:      carts,
		promotions: promotions,
		orders:     orders,
		health:     health,
	}, nil
}

func (r *Registry) Carts() repositories.CartRepository { return r.carts }

func (r *Registry) Promotions() repositories.PromotionLedger { return r.promotions }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
