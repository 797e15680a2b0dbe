// Package rediscache fronts the promotion ledger with a short-lived Redis read cache.
// Only lookups are cached; redemption always reaches the ledger and evicts the entry.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	promoKeyPrefix = "promo:"
	// DefaultPromoTTL bounds how stale a cached remaining-uses count can be.
	DefaultPromoTTL = 30 * time.Second
)

type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Logger receives cache events such as misses on a degraded Redis.
type Logger func(ctx context.Context, event string, fields map[string]any)

// PromotionLedger is a read-through cache in front of another ledger.
type PromotionLedger struct {
	next    repositories.PromotionLedger
	client  cacheClient
	ttl     time.Duration
	logger  Logger
	metrics *Metrics
}

var _ repositories.PromotionLedger = (*PromotionLedger)(nil)

// Option customises the cache.
type Option func(*PromotionLedger)

// WithTTL overrides DefaultPromoTTL.
func WithTTL(ttl time.Duration) Option {
	return func(l *PromotionLedger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger Logger) Option {
	return func(l *PromotionLedger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records lookup results.
func WithMetrics(m *Metrics) Option {
	return func(l *PromotionLedger) {
		l.metrics = m
	}
}

// NewPromotionLedger wraps next with a Redis cache.
func NewPromotionLedger(next repositories.PromotionLedger, client cacheClient, opts ...Option) (*PromotionLedger, error) {
	if next == nil {
		return nil, errors.New("promotion cache: ledger is required")
	}
	if client == nil {
		return nil, errors.New("promotion cache: redis client is required")
	}
	l := &PromotionLedger{
		next:   next,
		client: client,
		ttl:    DefaultPromoTTL,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

type cachedPromo struct {
	Code          string          `json:"code"`
	Kind          string          `json:"kind"`
	FixedAmount   int64           `json:"fixedAmount"`
	Percentage    decimal.Decimal `json:"percentage"`
	MinSubtotal   int64           `json:"minSubtotal"`
	RemainingUses int64           `json:"remainingUses"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

func (c cachedPromo) toDomain() domain.PromoCode {
	return domain.PromoCode{
		Code:          c.Code,
		Kind:          domain.PromoKind(c.Kind),
		FixedAmount:   c.FixedAmount,
		Percentage:    c.Percentage,
		MinSubtotal:   c.MinSubtotal,
		RemainingUses: c.RemainingUses,
		ExpiresAt:     c.ExpiresAt,
		Active:        true,
	}
}

// FindByCode serves active codes from Redis and falls back to the ledger on a miss or any
// cache failure. Ledger errors are returned untouched so callers keep their classification.
func (l *PromotionLedger) FindByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	normalized := domain.NormalizePromoCode(code)
	key := promoKeyPrefix + normalized

	data, err := l.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedPromo
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			l.metrics.observe(lookupHit)
			return cached.toDomain(), nil
		}
		l.metrics.observe(lookupError)
		l.logger(ctx, "promotion_cache.corrupt_entry", map[string]any{"code": normalized})
	case errors.Is(err, redis.Nil):
		l.metrics.observe(lookupMiss)
	default:
		l.metrics.observe(lookupError)
		l.logger(ctx, "promotion_cache.get_failed", map[string]any{"code": normalized, "error": err.Error()})
	}

	promo, err := l.next.FindByCode(ctx, code)
	if err != nil {
		return promo, err
	}
	// inactive and exhausted codes are re-read every time so a reactivation shows at once
	if !promo.Active || promo.RemainingUses <= 0 {
		return promo, nil
	}

	payload, err := json.Marshal(cachedPromo{
		Code:          promo.Code,
		Kind:          string(promo.Kind),
		FixedAmount:   promo.FixedAmount,
		Percentage:    promo.Percentage,
		MinSubtotal:   promo.MinSubtotal,
		RemainingUses: promo.RemainingUses,
		ExpiresAt:     promo.ExpiresAt,
	})
	if err == nil {
		err = l.client.Set(ctx, key, payload, l.ttl).Err()
	}
	if err != nil {
		l.logger(ctx, "promotion_cache.set_failed", map[string]any{"code": normalized, "error": err.Error()})
	}
	return promo, nil
}

// Redeem always goes to the ledger, then evicts the cached entry whatever the outcome.
func (l *PromotionLedger) Redeem(ctx context.Context, redemption repositories.PromotionRedemption) error {
	err := l.next.Redeem(ctx, redemption)
	normalized := domain.NormalizePromoCode(redemption.Code)
	if delErr := l.client.Del(ctx, promoKeyPrefix+normalized).Err(); delErr != nil {
		l.logger(ctx, "promotion_cache.evict_failed", map[string]any{"code": normalized, "error": delErr.Error()})
	}
	return err
}
