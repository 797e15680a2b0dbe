package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	promoMetricNamespace      = "github.com/maplecart/api/internal/services/promotions"
	defaultPromoLookupAttempt = 3
)

// ErrPromoLedgerMissing indicates the promo engine was built without a ledger.
var ErrPromoLedgerMissing = errors.New("promo engine: ledger is not configured")

// PromoValidation is the outcome of a side-effect free promo check.
type PromoValidation struct {
	Valid          bool
	Code           string
	DiscountAmount int64
	ErrorKind      domain.PromoErrorKind
}

// RedemptionResult is the outcome of the single redemption attempt made at order submission.
type RedemptionResult struct {
	Success   bool
	ErrorKind domain.PromoErrorKind
	Err       error
}

// PromoEngineDeps wires the promo engine.
type PromoEngineDeps struct {
	Ledger repositories.PromotionLedger
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
	Meter  metric.Meter
	// LookupAttempts bounds ledger reads during validation. Redemption is never retried.
	LookupAttempts int
	Backoff        gax.Backoff
}

// PromoEngine validates and redeems promo codes against the ledger.
type PromoEngine struct {
	ledger      repositories.PromotionLedger
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	attempts    int
	backoff     gax.Backoff
	validations metric.Int64Counter
	redemptions metric.Int64Counter
}

// NewPromoEngine requires a ledger; logger, clock, meter and backoff default when unset.
func NewPromoEngine(deps PromoEngineDeps) (*PromoEngine, error) {
	if deps.Ledger == nil {
		return nil, ErrPromoLedgerMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	attempts := deps.LookupAttempts
	if attempts <= 0 {
		attempts = defaultPromoLookupAttempt
	}
	backoff := deps.Backoff
	if backoff.Initial <= 0 {
		backoff = gax.Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(promoMetricNamespace)
	}

	engine := &PromoEngine{
		ledger:   deps.Ledger,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		attempts: attempts,
		backoff:  backoff,
	}
	var err error
	engine.validations, err = meter.Int64Counter("promo.validations",
		metric.WithDescription("Promo code validations by outcome"))
	if err != nil {
		logger(context.Background(), "promo.metric_register_failed", map[string]any{"error": err.Error()})
	}
	engine.redemptions, err = meter.Int64Counter("promo.redemptions",
		metric.WithDescription("Promo code redemption attempts by outcome"))
	if err != nil {
		logger(context.Background(), "promo.metric_register_failed", map[string]any{"error": err.Error()})
	}
	return engine, nil
}

// Validate checks, in order: the code exists and is live, it has uses left, and the subtotal
// meets its minimum. The first failing check decides the error kind. Ledger outages surface
// as network_error after bounded retries.
func (e *PromoEngine) Validate(ctx context.Context, code string, subtotal int64) PromoValidation {
	normalized := domain.NormalizePromoCode(code)
	result := e.validate(ctx, normalized, subtotal)
	e.count(ctx, e.validations, result.ErrorKind)
	if !result.Valid {
		e.logger(ctx, "promo.validation_failed", map[string]any{
			"code":      normalized,
			"subtotal":  subtotal,
			"errorKind": string(result.ErrorKind),
		})
	}
	return result
}

func (e *PromoEngine) validate(ctx context.Context, code string, subtotal int64) PromoValidation {
	out := PromoValidation{Code: code}
	if code == "" {
		out.ErrorKind = domain.PromoErrorInvalidCode
		return out
	}

	promo, err := e.lookup(ctx, code)
	if err != nil {
		out.ErrorKind = classifyLedgerError(err)
		return out
	}

	switch {
	case !promo.Active || promo.Expired(e.now()):
		out.ErrorKind = domain.PromoErrorInvalidCode
	case promo.RemainingUses <= 0:
		out.ErrorKind = domain.PromoErrorUsageExceeded
	case subtotal < promo.MinSubtotal:
		out.ErrorKind = domain.PromoErrorBelowMinimum
	default:
		out.Valid = true
		out.DiscountAmount = PromoDiscountAmount(promo, subtotal)
	}
	return out
}

func (e *PromoEngine) lookup(ctx context.Context, code string) (domain.PromoCode, error) {
	var promo domain.PromoCode
	retryer := &boundedRetryer{
		max:  e.attempts - 1,
		next: gax.OnErrorFunc(e.backoff, isTransientLedgerError),
	}
	err := gax.Invoke(ctx, func(ctx context.Context, _ gax.CallSettings) error {
		found, err := e.ledger.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		promo = found
		return nil
	}, gax.WithRetry(func() gax.Retryer { return retryer }))
	return promo, err
}

// Redeem makes exactly one redemption attempt for orderRef on behalf of userID.
func (e *PromoEngine) Redeem(ctx context.Context, code string, subtotal int64, orderRef, userID string) RedemptionResult {
	normalized := domain.NormalizePromoCode(code)
	if normalized == "" || strings.TrimSpace(orderRef) == "" {
		e.count(ctx, e.redemptions, domain.PromoErrorInvalidCode)
		return RedemptionResult{ErrorKind: domain.PromoErrorInvalidCode, Err: errors.New("promo engine: code and order reference are required")}
	}

	err := e.ledger.Redeem(ctx, repositories.PromotionRedemption{
		Code:     normalized,
		OrderRef: strings.TrimSpace(orderRef),
		UserID:   strings.TrimSpace(userID),
		Subtotal: subtotal,
	})
	if err != nil {
		kind := classifyLedgerError(err)
		e.count(ctx, e.redemptions, kind)
		e.logger(ctx, "promo.redemption_failed", map[string]any{
			"code":      normalized,
			"orderRef":  orderRef,
			"errorKind": string(kind),
			"error":     err.Error(),
		})
		return RedemptionResult{ErrorKind: kind, Err: err}
	}
	e.count(ctx, e.redemptions, domain.PromoErrorNone)
	return RedemptionResult{Success: true}
}

// PromoDiscountAmount derives the discount a code grants on subtotal, capped at the subtotal.
func PromoDiscountAmount(promo domain.PromoCode, subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var amount int64
	switch promo.Kind {
	case domain.PromoKindPercent:
		amount = domain.ApplyPercentage(subtotal, promo.Percentage)
	default:
		amount = promo.FixedAmount
	}
	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

func (e *PromoEngine) count(ctx context.Context, counter metric.Int64Counter, kind domain.PromoErrorKind) {
	if counter == nil {
		return
	}
	outcome := string(kind)
	if outcome == "" {
		outcome = "ok"
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func classifyLedgerError(err error) domain.PromoErrorKind {
	if err == nil {
		return domain.PromoErrorNone
	}
	if code, ok := repositories.PromotionErrorCodeOf(err); ok {
		switch code {
		case repositories.PromotionErrorInvalid:
			return domain.PromoErrorInvalidCode
		case repositories.PromotionErrorExhausted:
			return domain.PromoErrorUsageExceeded
		case repositories.PromotionErrorBelowMinimum:
			return domain.PromoErrorBelowMinimum
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return domain.PromoErrorInvalidCode
	}
	return domain.PromoErrorNetwork
}

func isTransientLedgerError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}

// boundedRetryer caps the number of retries granted by the wrapped gax retryer.
type boundedRetryer struct {
	max     int
	retries int
	next    gax.Retryer
}

func (r *boundedRetryer) Retry(err error) (time.Duration, bool) {
	if r.retries >= r.max {
		return 0, false
	}
	pause, ok := r.next.Retry(err)
	if !ok {
		return 0, false
	}
	r.retries++
	return pause, true
}
