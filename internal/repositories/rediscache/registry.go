package rediscache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/maplecart/api/internal/repositories"
)

// Registry decorates another registry so promo lookups go through the Redis cache.
type Registry struct {
	repositories.Registry
	promotions *PromotionLedger
	client     *redis.Client
}

var _ repositories.Registry = (*Registry)(nil)

// WrapRegistry takes ownership of client; Close releases it after the wrapped registry.
func WrapRegistry(reg repositories.Registry, client *redis.Client, opts ...Option) (*Registry, error) {
	if reg == nil {
		return nil, errors.New("promotion cache: registry is required")
	}
	if client == nil {
		return nil, errors.New("promotion cache: redis client is required")
	}
	ledger, err := NewPromotionLedger(reg.Promotions(), client, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{Registry: reg, promotions: ledger, client: client}, nil
}

// Promotions returns the cached ledger.
func (r *Registry) Promotions() repositories.PromotionLedger {
	return r.promotions
}

// Close closes the wrapped registry and the Redis client.
func (r *Registry) Close(ctx context.Context) error {
	return errors.Join(r.Registry.Close(ctx), r.client.Close())
}
