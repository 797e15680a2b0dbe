// Package config assembles runtime configuration from a dotenv file, the process environment
// and Secret Manager references.
package config

import (
	"context"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRateLimitDefault     = 120
	defaultRateLimitPromoApply  = 20
	defaultSecurityEnvironment  = "local"
	defaultCurrency             = "CAD"
	defaultOrdersTopic          = "order-events"
	defaultPromoLookupAttempts  = 3
	defaultPromoLookupBackoff   = 100 * time.Millisecond
	defaultRedisPromoTTL        = 30 * time.Second
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultIdempotencyStore     = IdempotencyStoreFirestore
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	Pricing     PricingConfig
	PSP         PSPConfig
	RateLimits  RateLimitConfig
	Features    FeatureFlags
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig defaults ProjectID to the Firebase project.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig identifies the topic receiving order events. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID    string
	OrdersTopic  string
	EmulatorHost string
}

// RedisConfig enables the promo lookup cache when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PromoTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// PricingConfig points at the pricing settings document and tunes promo lookups.
// SettingsURI accepts gs://bucket/object, file:// or a plain path; empty means built-in defaults.
type PricingConfig struct {
	Currency            string
	SettingsURI         string
	PromoLookupAttempts int
	PromoLookupBackoff  time.Duration
}

type PSPConfig struct {
	StripeAPIKey    string
	StripeAccountID string
}

// RateLimitConfig holds per-client request budgets.
type RateLimitConfig struct {
	DefaultPerMinute    int
	PromoApplyPerMinute int
}

type FeatureFlags struct {
	EnablePromotions bool
	EnablePayments   bool
}

// SecurityConfig groups environment and build identifiers.
type SecurityConfig struct {
	Environment string
	Version     string
}

// Idempotency record backends. Memory keeps records per process and suits local runs.
const (
	IdempotencyStoreFirestore = "firestore"
	IdempotencyStoreMemory    = "memory"
)

type IdempotencyConfig struct {
	Store            string
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves secret:// references.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret calls f.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}
