package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/maplecart/api/internal/di"
	"github.com/maplecart/api/internal/handlers"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/platform/idempotency"
	"github.com/maplecart/api/internal/platform/jobs"
	"github.com/maplecart/api/internal/platform/observability"
	"github.com/maplecart/api/internal/platform/secrets"
	"github.com/maplecart/api/internal/platform/settings"
	platformstorage "github.com/maplecart/api/internal/platform/storage"
	"github.com/maplecart/api/internal/repositories"
	firestoreRepo "github.com/maplecart/api/internal/repositories/firestore"
	"github.com/maplecart/api/internal/repositories/rediscache"
	"github.com/maplecart/api/internal/services"
)

const instrumentationName = "github.com/maplecart/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	build := services.BuildInfo{Version: cfg.Security.Version, Environment: cfg.Security.Environment}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	pricing, err := loadPricingSettings(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to load pricing settings", zap.Error(err), zap.String("uri", cfg.Pricing.SettingsURI))
	}

	topic, closeTopic, err := newOrdersTopic(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub topic", zap.Error(err))
	}
	defer closeTopic()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	healthRepo, err := newHealthRepository(firestoreProvider, topic, redisClient, fetcher, build)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics, err := observability.NewHTTPMetrics(metricsRegistry)
	if err != nil {
		logger.Fatal("failed to register http metrics", zap.Error(err))
	}

	var registry repositories.Registry
	registry, err = firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	if redisClient != nil {
		cacheMetrics, err := rediscache.NewMetrics(metricsRegistry)
		if err != nil {
			logger.Fatal("failed to register promotion cache metrics", zap.Error(err))
		}
		cacheLogger := observability.EventLogger(logger.Named("promotion_cache"))
		registry, err = rediscache.WrapRegistry(registry, redisClient,
			rediscache.WithTTL(cfg.Redis.PromoTTL),
			rediscache.WithLogger(rediscache.Logger(cacheLogger)),
			rediscache.WithMetrics(cacheMetrics),
		)
		if err != nil {
			logger.Fatal("failed to initialise promotion cache", zap.Error(err))
		}
	}

	containerOpts := []di.Option{
		di.WithPricingSettings(pricing),
		di.WithEventLogger(observability.EventLogger(logger.Named("services"))),
		di.WithMeter(otel.Meter(instrumentationName)),
		di.WithBuildInfo(build),
	}
	var downstream services.OrderEventPublisher
	if topic != nil {
		pubsubPublisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		downstream = pubsubPublisher
	}
	publisher, err := jobs.NewMeteredOrderEventPublisher(downstream, metricsRegistry)
	if err != nil {
		logger.Fatal("failed to register order metrics", zap.Error(err))
	}
	containerOpts = append(containerOpts, di.WithEventPublisher(publisher))
	if cfg.Features.EnablePayments {
		paymentsLogger := logger.Named("payments")
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    cfg.PSP.StripeAPIKey,
			AccountID: cfg.PSP.StripeAccountID,
			Logger:    payments.StripeLogger(observability.EventLogger(paymentsLogger)),
			Clock:     time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithPaymentGateway(stripeProvider))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyStore, err := idempotency.NewStore(cfg.Idempotency.Store, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyLogger := logger.Named("idempotency")
	idempotencyLogger.Info("idempotency store selected", zap.String("store", cfg.Idempotency.Store))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, idempotencyLogger)
		}()
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(container.Services.System),
		handlers.WithHealthStartedAt(startedAt),
	)

	projectID := traceProjectID(cfg)
	httpLogger := logger.Named("http")
	opts := []handlers.Option{
		handlers.WithMiddlewares(
			httpMetrics.Middleware(),
			observability.TraceMiddleware(projectID),
			observability.RequestLoggerMiddleware(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
		),
		handlers.WithRateLimit(cfg.RateLimits.DefaultPerMinute),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(httpMetrics.Handler()),
	}
	if container.Services.Cart != nil {
		cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart,
			handlers.WithPromotionRateLimit(cfg.RateLimits.PromoApplyPerMinute),
		)
		opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes))
	}
	if container.Services.Checkout != nil && container.Services.Orders != nil {
		orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Checkout, container.Services.Orders,
			handlers.WithSubmitMiddlewares(idempotencyMiddleware),
		)
		opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(opts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("maplecart api listening",
			zap.String("environment", build.Environment),
			zap.String("version", build.Version),
			zap.Bool("promotions", container.Promotions != nil),
			zap.Bool("payments", cfg.Features.EnablePayments),
			zap.Bool("promoCache", cfg.Redis.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("repository close error", zap.Error(err))
	}
}

// loadPricingSettings reads the pricing document when one is configured. gs:// URIs go through Cloud Storage.
func loadPricingSettings(ctx context.Context, cfg config.Config) (services.PricingSettings, error) {
	uri := strings.TrimSpace(cfg.Pricing.SettingsURI)
	if uri == "" {
		settingsDefaults := services.DefaultPricingSettings()
		settingsDefaults.Currency = cfg.Pricing.Currency
		return settingsDefaults, nil
	}

	var loaderOpts []settings.Option
	if strings.HasPrefix(uri, "gs://") {
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return services.PricingSettings{}, fmt.Errorf("storage client: %w", err)
		}
		defer client.Close()
		reader, err := platformstorage.NewReader(client)
		if err != nil {
			return services.PricingSettings{}, err
		}
		loaderOpts = append(loaderOpts, settings.WithObjectReader(reader))
	}

	doc, err := settings.NewLoader(loaderOpts...).Load(ctx, uri)
	if err != nil {
		return services.PricingSettings{}, err
	}
	return services.PricingSettingsFromDocument(doc)
}

// newOrdersTopic returns a nil topic when no orders topic is configured.
func newOrdersTopic(ctx context.Context, cfg config.Config) (*pubsub.Topic, func(), error) {
	noop := func() {}
	topicID := strings.TrimSpace(cfg.PubSub.OrdersTopic)
	if topicID == "" {
		return nil, noop, nil
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		projectID = traceProjectID(cfg)
	}
	if projectID == "" {
		return nil, noop, errors.New("pubsub project id is required when an orders topic is set")
	}

	var clientOpts []option.ClientOption
	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		clientOpts = append(clientOpts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, noop, err
	}
	topic := client.Topic(topicID)
	return topic, func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

func newHealthRepository(provider *pfirestore.Provider, topic *pubsub.Topic, redisClient *redis.Client, fetcher *secrets.Fetcher, build services.BuildInfo) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Required: true,
			Check:    provider.Ping,
		},
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks,
		repositories.WithBuildInfo(build.Version, build.Environment),
	)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter(instrumentationName)),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPinsFromEnv(env); len(pins) > 0 {
		logger.Debug("secret version pins configured", zap.Strings("secrets", sortedKeys(pins)))
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve before the server starts.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["API_FEATURE_PAYMENTS"])) {
	case "false", "0", "no", "off":
		return nil
	}
	return []string{"PSP.StripeAPIKey"}
}

// secretVersionPinsFromEnv parses API_SECRET_VERSION_PINS, e.g. "stripe/api-key=3,sm://other=7".
func secretVersionPinsFromEnv(env map[string]string) map[string]string {
	pins := make(map[string]string)
	for ref, version := range parseKeyValueList(env["API_SECRET_VERSION_PINS"]) {
		switch {
		case strings.HasPrefix(ref, "sm://"):
			ref = "secret://" + strings.TrimPrefix(ref, "sm://")
		case !strings.HasPrefix(ref, "secret://"):
			ref = "secret://" + ref
		}
		pins[ref] = version
	}
	return pins
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
