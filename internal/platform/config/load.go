package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/currency"
)

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithEnvFile overrides the dotenv path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects values that take precedence over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields that must resolve to a non-empty value.
// Names are config field paths such as "PSP.StripeAPIKey".
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets makes Load panic with *MissingSecretsError instead of returning it.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// EnvironmentValues returns the merged environment Load would read, so callers can build the
// secret fetcher from the same inputs before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	env, err := mergeEnvironment(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Load builds the configuration from defaults and the merged environment, then resolves
// secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := mergeEnvironment(options)
	if err != nil {
		return Config{}, err
	}

	cfg := fromEnvironment(env)

	resolved := make(map[string]string)
	for _, target := range secretFields(&cfg) {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	if missing := newMissingSecretsError(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func fromEnvironment(env environment) Config {
	cfg := Config{
		Server: ServerConfig{
			Port:         env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:    env.str("API_PUBSUB_PROJECT_ID", ""),
			OrdersTopic:  env.str("API_PUBSUB_ORDERS_TOPIC", defaultOrdersTopic),
			EmulatorHost: env.str("API_PUBSUB_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.integer("API_REDIS_DB", 0),
			PromoTTL: env.duration("API_REDIS_PROMO_TTL", defaultRedisPromoTTL),
		},
		Pricing: PricingConfig{
			Currency:            strings.ToUpper(env.str("API_PRICING_CURRENCY", defaultCurrency)),
			SettingsURI:         env.str("API_PRICING_SETTINGS_URI", ""),
			PromoLookupAttempts: env.integer("API_PRICING_PROMO_LOOKUP_ATTEMPTS", defaultPromoLookupAttempts),
			PromoLookupBackoff:  env.duration("API_PRICING_PROMO_LOOKUP_BACKOFF", defaultPromoLookupBackoff),
		},
		PSP: PSPConfig{
			StripeAPIKey:    env.str("API_PSP_STRIPE_API_KEY", ""),
			StripeAccountID: env.str("API_PSP_STRIPE_ACCOUNT_ID", ""),
		},
		RateLimits: RateLimitConfig{
			DefaultPerMinute:    env.integer("API_RATELIMIT_DEFAULT_PER_MIN", defaultRateLimitDefault),
			PromoApplyPerMinute: env.integer("API_RATELIMIT_PROMO_APPLY_PER_MIN", defaultRateLimitPromoApply),
		},
		Features: FeatureFlags{
			EnablePromotions: env.flag("API_FEATURE_PROMOTIONS", true),
			EnablePayments:   env.flag("API_FEATURE_PAYMENTS", true),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			Version:     env.str("API_BUILD_VERSION", "dev"),
		},
		Idempotency: IdempotencyConfig{
			Store:            strings.ToLower(env.str("API_IDEMPOTENCY_STORE", defaultIdempotencyStore)),
			Header:           env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: env.integer("API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	return cfg
}

type secretField struct {
	name  string
	field *string
}

// secretFields lists the values that may hold a secret reference.
func secretFields(cfg *Config) []secretField {
	return []secretField{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
		{"Redis.Password", &cfg.Redis.Password},
	}
}

// resolveSecret passes plain values through and resolves secret:// or sm:// references.
func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	var ref string
	switch {
	case strings.HasPrefix(trimmed, "secret://"):
		ref = trimmed
	case strings.HasPrefix(trimmed, "sm://"):
		ref = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	default:
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validate(cfg Config) error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	_, currencyErr := currency.ParseISO(cfg.Pricing.Currency)
	check(currencyErr == nil, "Pricing.Currency")
	check(cfg.Pricing.PromoLookupAttempts > 0, "Pricing.PromoLookupAttempts")
	check(!cfg.Features.EnablePayments || cfg.PSP.StripeAPIKey != "", "PSP.StripeAPIKey")
	if cfg.Redis.Enabled() {
		check(cfg.Redis.DB >= 0, "Redis.DB")
		check(cfg.Redis.PromoTTL > 0, "Redis.PromoTTL")
	}
	check(cfg.Idempotency.Store == IdempotencyStoreFirestore || cfg.Idempotency.Store == IdempotencyStoreMemory, "Idempotency.Store")
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}
