package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "maple-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "maple-dev" || cfg.PubSub.OrdersTopic != defaultOrdersTopic {
		t.Errorf("unexpected pubsub defaults: %+v", cfg.PubSub)
	}
	if cfg.Pricing.Currency != "CAD" {
		t.Errorf("expected CAD pricing currency, got %s", cfg.Pricing.Currency)
	}
	if cfg.Pricing.SettingsURI != "" {
		t.Errorf("expected built-in pricing settings, got %s", cfg.Pricing.SettingsURI)
	}
	if cfg.Pricing.PromoLookupAttempts != 3 || cfg.Pricing.PromoLookupBackoff != 100*time.Millisecond {
		t.Errorf("unexpected promo lookup defaults: %+v", cfg.Pricing)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 || cfg.RateLimits.PromoApplyPerMinute != 20 {
		t.Errorf("unexpected default rate limits: %+v", cfg.RateLimits)
	}
	if !cfg.Features.EnablePromotions {
		t.Errorf("expected promotions enabled by default")
	}
	if cfg.Security.Environment != "local" || cfg.Security.Version != "dev" {
		t.Errorf("unexpected security defaults: %+v", cfg.Security)
	}
	if cfg.Idempotency.Store != IdempotencyStoreFirestore {
		t.Errorf("expected firestore idempotency store by default, got %s", cfg.Idempotency.Store)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_READ_TIMEOUT":           "20s",
		"API_SERVER_WRITE_TIMEOUT":          "25s",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_FIREBASE_PROJECT_ID":           "maple-prod",
		"API_FIRESTORE_PROJECT_ID":          "maple-fire",
		"API_PUBSUB_ORDERS_TOPIC":           "orders-prod",
		"API_PRICING_CURRENCY":              "cad",
		"API_PRICING_SETTINGS_URI":          "gs://maple-config/pricing.yaml",
		"API_PRICING_PROMO_LOOKUP_ATTEMPTS": "5",
		"API_PRICING_PROMO_LOOKUP_BACKOFF":  "250ms",
		"API_PSP_STRIPE_API_KEY":            "secret://stripe/api",
		"API_PSP_STRIPE_ACCOUNT_ID":         "acct_123",
		"API_RATELIMIT_DEFAULT_PER_MIN":     "150",
		"API_RATELIMIT_PROMO_APPLY_PER_MIN": "10",
		"API_FEATURE_PROMOTIONS":            "false",
		"API_SECURITY_ENVIRONMENT":          "PROD",
		"API_BUILD_VERSION":                 "2024.11.1",
		"API_IDEMPOTENCY_HEADER":            "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":               "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":  "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":     "500",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://stripe/api" {
			return "stripe-key", nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "maple-fire" || cfg.PubSub.ProjectID != "maple-fire" {
		t.Errorf("expected pubsub to follow firestore project, got %+v", cfg.PubSub)
	}
	if cfg.PubSub.OrdersTopic != "orders-prod" {
		t.Errorf("unexpected topic %s", cfg.PubSub.OrdersTopic)
	}
	if cfg.Pricing.Currency != "CAD" || cfg.Pricing.SettingsURI != "gs://maple-config/pricing.yaml" {
		t.Errorf("unexpected pricing config %+v", cfg.Pricing)
	}
	if cfg.Pricing.PromoLookupAttempts != 5 || cfg.Pricing.PromoLookupBackoff != 250*time.Millisecond {
		t.Errorf("unexpected promo lookup config %+v", cfg.Pricing)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" || cfg.PSP.StripeAccountID != "acct_123" {
		t.Errorf("unexpected psp config %+v", cfg.PSP)
	}
	if cfg.RateLimits.PromoApplyPerMinute != 10 {
		t.Errorf("unexpected promo apply limit %d", cfg.RateLimits.PromoApplyPerMinute)
	}
	if cfg.Features.EnablePromotions {
		t.Errorf("expected promotions flag disabled")
	}
	if cfg.Security.Environment != "prod" || cfg.Security.Version != "2024.11.1" {
		t.Errorf("unexpected security config %+v", cfg.Security)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=maple-dot\nexport API_FEATURE_PAYMENTS=\"false\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "maple-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "Firestore.ProjectID": false, "PSP.StripeAPIKey": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %s in %v", name, fields)
		}
	}
}

func TestLoadRejectsInvalidPricing(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":           "maple-dev",
		"API_FEATURE_PAYMENTS":              "false",
		"API_PRICING_CURRENCY":              "DOLLARS",
		"API_PRICING_PROMO_LOOKUP_ATTEMPTS": "0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 2 || got[0] != "Pricing.Currency" || got[1] != "Pricing.PromoLookupAttempts" {
		t.Fatalf("unexpected invalid fields %v", got)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_PSP_STRIPE_API_KEY":  "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_PSP_STRIPE_API_KEY":  "sm://stripe/api",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://stripe/api" {
			return "legacy-secret", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeAPIKey)
	}
}

func TestLoadRedisSection(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("expected redis disabled without an address, got %+v", cfg.Redis)
	}

	env["API_REDIS_ADDR"] = "redis:6379"
	env["API_REDIS_DB"] = "2"
	env["API_REDIS_PASSWORD"] = "sm://redis/password"
	env["API_REDIS_PROMO_TTL"] = "45s"
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://redis/password" {
			return "hunter2", nil
		}
		return "", errors.New("unexpected ref " + ref)
	})
	cfg, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Redis.Password != "hunter2" || cfg.Redis.PromoTTL != 45*time.Second {
		t.Fatalf("unexpected redis secret or ttl %+v", cfg.Redis)
	}
}

func TestLoadRejectsInvalidRedis(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
		"API_REDIS_ADDR":          "redis:6379",
		"API_REDIS_DB":            "-1",
		"API_REDIS_PROMO_TTL":     "0s",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 2 || got[0] != "Redis.DB" || got[1] != "Redis.PromoTTL" {
		t.Fatalf("unexpected invalid fields %v", got)
	}
}

func TestLoadRejectsUnknownCurrency(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
		"API_PRICING_CURRENCY":    "zzz",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 1 || got[0] != "Pricing.Currency" {
		t.Fatalf("unexpected invalid fields %v", got)
	}
}

func TestLoadIdempotencyStore(t *testing.T) {
	base := map[string]string{
		"API_FIREBASE_PROJECT_ID": "maple-dev",
		"API_FEATURE_PAYMENTS":    "false",
	}

	base["API_IDEMPOTENCY_STORE"] = "Memory"
	cfg, err := Load(context.Background(), WithEnvMap(base), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Idempotency.Store != IdempotencyStoreMemory {
		t.Fatalf("expected memory store, got %s", cfg.Idempotency.Store)
	}

	base["API_IDEMPOTENCY_STORE"] = "dynamo"
	_, err = Load(context.Background(), WithEnvMap(base), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := validation.Fields(); len(got) != 1 || got[0] != "Idempotency.Store" {
		t.Fatalf("unexpected invalid fields %v", got)
	}
}
