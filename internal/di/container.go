package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/platform/config"
	"github.com/maplecart/api/internal/repositories"
	"github.com/maplecart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	System   services.SystemService
}

// Container wires repositories, pricing engines, and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Pricing      services.PricingSettings
	Composer     *services.OrderTotalComposer
	Promotions   *services.PromoEngine
	Services     Services
}

// EventLogger is the structured event callback shared by services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

type containerOptions struct {
	pricing  *services.PricingSettings
	payments payments.Gateway
	events   services.OrderEventPublisher
	logger   EventLogger
	meter    metric.Meter
	build    services.BuildInfo
	clock    func() time.Time
}

// Option customises container assembly.
type Option func(*containerOptions)

// WithPricingSettings replaces the built-in pricing tables, typically with a loaded settings document.
func WithPricingSettings(settings services.PricingSettings) Option {
	return func(o *containerOptions) {
		o.pricing = &settings
	}
}

// WithPaymentGateway enables payment intent creation at checkout.
func WithPaymentGateway(gateway payments.Gateway) Option {
	return func(o *containerOptions) {
		o.payments = gateway
	}
}

// WithEventPublisher enables order event publication.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithEventLogger sets the structured event logger handed to every service.
func WithEventLogger(logger EventLogger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithMeter sets the meter used for promo counters.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		o.meter = meter
	}
}

// WithBuildInfo sets version metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock used by every service (tests).
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	container := &Container{
		Config:       cfg,
		Repositories: reg,
		Pricing:      pricingSettings(cfg, options.pricing),
	}
	container.Composer = services.NewOrderTotalComposer(container.Pricing)

	if err := buildServices(ctx, container, options); err != nil {
		return nil, err
	}
	return container, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func pricingSettings(cfg config.Config, override *services.PricingSettings) services.PricingSettings {
	if override != nil {
		return *override
	}
	settings := services.DefaultPricingSettings()
	if currency := strings.ToUpper(strings.TrimSpace(cfg.Pricing.Currency)); currency != "" {
		settings.Currency = currency
	}
	return settings
}

func buildServices(_ context.Context, c *Container, options containerOptions) error {
	reg := c.Repositories
	cfg := c.Config

	if cfg.Features.EnablePromotions {
		if ledger := reg.Promotions(); ledger != nil {
			engine, err := services.NewPromoEngine(services.PromoEngineDeps{
				Ledger:         ledger,
				Clock:          options.clock,
				Logger:         options.logger,
				Meter:          options.meter,
				LookupAttempts: cfg.Pricing.PromoLookupAttempts,
				Backoff: gax.Backoff{
					Initial:    cfg.Pricing.PromoLookupBackoff,
					Max:        4 * cfg.Pricing.PromoLookupBackoff,
					Multiplier: 2,
				},
			})
			if err != nil {
				return fmt.Errorf("build promo engine: %w", err)
			}
			c.Promotions = engine
		}
	}

	if carts := reg.Carts(); carts != nil {
		deps := services.CartServiceDeps{
			Repository: carts,
			Composer:   c.Composer,
			Clock:      options.clock,
			Logger:     options.logger,
		}
		if c.Promotions != nil {
			deps.Promotions = c.Promotions
		}
		cartSvc, err := services.NewCartService(deps)
		if err != nil {
			return fmt.Errorf("build cart service: %w", err)
		}
		c.Services.Cart = cartSvc
	}

	if orders := reg.Orders(); orders != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{Orders: orders})
		if err != nil {
			return fmt.Errorf("build order service: %w", err)
		}
		c.Services.Orders = orderSvc

		if carts := reg.Carts(); carts != nil {
			deps := services.CheckoutServiceDeps{
				Carts:    carts,
				Orders:   orders,
				Composer: c.Composer,
				Events:   options.events,
				Clock:    options.clock,
				Logger:   options.logger,
			}
			if c.Promotions != nil {
				deps.Promotions = c.Promotions
			}
			if cfg.Features.EnablePayments && options.payments != nil {
				deps.Payments = options.payments
			}
			checkoutSvc, err := services.NewCheckoutService(deps)
			if err != nil {
				return fmt.Errorf("build checkout service: %w", err)
			}
			c.Services.Checkout = checkoutSvc
		}
	}

	if health := reg.Health(); health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: health,
			Pricing:          &c.Pricing,
			Clock:            options.clock,
			Build:            options.build,
		})
		if err != nil {
			return fmt.Errorf("build system service: %w", err)
		}
		c.Services.System = systemSvc
	}

	return nil
}
