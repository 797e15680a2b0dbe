package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	OrderEventSubmitted      = "order.submitted"
	OrderEventTotalCorrected = "order.total_corrected"

	warningPromoNotHonoured = "promo_not_honoured"
)

var checkoutTracer = otel.Tracer("github.com/maplecart/api/internal/services/checkout")

var messageLocale = language.MustParse("en-CA")

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates the cart is missing or has no chargeable lines.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutConflict indicates a concurrent write prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutPaymentFailed indicates the payment intent could not be created. The order is kept.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

type promoRedeemer interface {
	promoValidator
	Redeem(ctx context.Context, code string, subtotal int64, orderRef, userID string) RedemptionResult
}

type paymentIntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req payments.PaymentIntentRequest) (payments.PaymentIntent, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	Currency   string
	GrandTotal int64
	Correction *domain.OrderCorrection
	OccurredAt time.Time
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Orders      repositories.OrderRepository
	Composer    totalComposer
	Promotions  promoRedeemer
	Payments    paymentIntentCreator
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts    repositories.CartRepository
	orders   repositories.OrderRepository
	composer totalComposer
	promos   promoRedeemer
	payments paymentIntentCreator
	events   OrderEventPublisher
	now      func() time.Time
	newID    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
// Promotions, Payments and Events are optional.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Composer == nil {
		return nil, errors.New("checkout service: composer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		composer: deps.Composer,
		promos:   deps.Promotions,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// SubmitOrder prices the cart authoritatively, persists the order, then redeems the promo
// code once. When redemption fails the order is kept and its total is corrected to the
// price without the promo; the correction comes back as a warning.
func (s *checkoutService) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
	ctx, span := checkoutTracer.Start(ctx, "checkout.SubmitOrder", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result, err := s.submit(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.Int64("order.grand_total", result.Order.Totals.GrandTotal),
		attribute.String("order.discount_source", string(result.Order.Totals.DiscountSource)),
		attribute.Bool("order.corrected", result.Warning != nil),
	)
	return result, nil
}

func (s *checkoutService) submit(ctx context.Context, cmd SubmitOrderCommand) (SubmitOrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return SubmitOrderResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	record, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return SubmitOrderResult{}, s.translateRepositoryError(err)
	}
	if len(record.Snapshot.Lines) == 0 || record.Snapshot.Subtotal() <= 0 {
		return SubmitOrderResult{}, ErrCheckoutCartNotReady
	}
	dest := resolveDestination(cmd.Destination, record.Destination)
	subtotal := record.Snapshot.Subtotal()

	session := s.confirmPromotion(ctx, record, subtotal)
	total := s.composer.ComputeTotal(record.Snapshot, dest, session)

	now := s.now()
	order := domain.Order{
		ID:          orderIDPrefix + s.newID(),
		UserID:      userID,
		CartID:      record.Snapshot.CartID,
		Status:      domain.OrderStatusPendingPayment,
		Currency:    total.Currency,
		Lines:       append([]domain.CartLine(nil), record.Snapshot.Lines...),
		Destination: dest,
		Totals:      total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if session.IsApplied() {
		promo := session
		order.Promotion = &promo
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return SubmitOrderResult{}, s.translateRepositoryError(err)
	}

	var warning *OrderWarning
	var correction *domain.OrderCorrection
	if order.Promotion != nil {
		order, correction = s.redeemPromotion(ctx, order, record.Snapshot, dest, subtotal)
		if correction != nil {
			warning = &OrderWarning{
				Code:           warningPromoNotHonoured,
				Message:        correction.Message,
				PreviousTotal:  correction.PreviousTotal,
				CorrectedTotal: correction.CorrectedTotal,
			}
		}
		// The stored total must match what the payment intent charges.
		s.persistOrder(ctx, &order, "redemption")
	}

	clientSecret, paymentErr := s.createPaymentIntent(ctx, &order, cmd.IdempotencyKey)
	if order.PaymentIntentID != "" {
		s.persistOrder(ctx, &order, "payment_intent")
	}

	s.publish(ctx, OrderEvent{
		Type:       OrderEventSubmitted,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Currency:   order.Currency,
		GrandTotal: order.Totals.GrandTotal,
		OccurredAt: s.now(),
	})
	if correction != nil {
		s.publish(ctx, OrderEvent{
			Type:       OrderEventTotalCorrected,
			OrderID:    order.ID,
			UserID:     order.UserID,
			Currency:   order.Currency,
			GrandTotal: order.Totals.GrandTotal,
			Correction: correction,
			OccurredAt: correction.CreatedAt,
		})
	}

	result := SubmitOrderResult{Order: order, ClientSecret: clientSecret, Warning: warning}
	if paymentErr != nil {
		return result, paymentErr
	}
	return result, nil
}

// confirmPromotion re-validates an applied promo whose validated subtotal no longer matches.
// A promo that fails here is dropped; checkout continues without it.
func (s *checkoutService) confirmPromotion(ctx context.Context, record repositories.CartRecord, subtotal int64) domain.PromoSession {
	session := record.Promotion
	if session.CurrentState() != domain.PromoStateApplied {
		return domain.PromoSession{}
	}
	if s.promos == nil {
		return domain.PromoSession{}
	}
	if session.ValidatedSubtotal == subtotal {
		return session
	}
	next, err := session.BeginValidation(session.Code, s.now())
	if err != nil {
		return domain.PromoSession{}
	}
	validation := s.promos.Validate(ctx, session.Code, subtotal)
	next, err = next.CompleteValidation(validation.Valid, validation.DiscountAmount, subtotal, record.Snapshot.Version, validation.ErrorKind, s.now())
	if err != nil || !next.IsApplied() {
		s.logger(ctx, "checkout.promotion_dropped", map[string]any{
			"userID":    record.Snapshot.UserID,
			"code":      session.Code,
			"errorKind": string(validation.ErrorKind),
		})
		return domain.PromoSession{}
	}
	return next
}

// redeemPromotion performs the single redemption attempt and, on failure, corrects the order
// total to the price without the promo.
func (s *checkoutService) redeemPromotion(ctx context.Context, order domain.Order, cart domain.CartSnapshot, dest domain.Destination, subtotal int64) (domain.Order, *domain.OrderCorrection) {
	session, err := order.Promotion.BeginRedemption(s.now())
	if err != nil {
		s.logger(ctx, "checkout.promotion_state_invalid", map[string]any{"orderID": order.ID, "error": err.Error()})
		return order, nil
	}

	redemption := s.promos.Redeem(ctx, session.Code, subtotal, order.ID, order.UserID)
	session, err = session.CompleteRedemption(redemption.Success, redemption.ErrorKind, s.now())
	if err != nil {
		s.logger(ctx, "checkout.promotion_state_invalid", map[string]any{"orderID": order.ID, "error": err.Error()})
	}
	order.Promotion = &session
	if redemption.Success {
		if order.Totals.Promo != nil {
			order.Totals.Promo.State = session.State
		}
		return order, nil
	}

	previous := order.Totals.GrandTotal
	corrected := s.composer.ComputeTotal(cart, dest, domain.PromoSession{})
	correction := domain.OrderCorrection{
		Reason:         domain.CorrectionReasonPromoRedemptionFailed,
		PromotionCode:  session.Code,
		PreviousTotal:  previous,
		CorrectedTotal: corrected.GrandTotal,
		Message: fmt.Sprintf("Promo code %s could not be applied to your order. Your order total is now %s.",
			session.Code, domain.FormatMoney(corrected.GrandTotal, corrected.Currency, messageLocale)),
		CreatedAt: s.now(),
	}
	order.Totals = corrected
	order.Corrections = append(order.Corrections, correction)

	s.logger(ctx, "checkout.total_corrected", map[string]any{
		"orderID":        order.ID,
		"code":           session.Code,
		"errorKind":      string(redemption.ErrorKind),
		"previousTotal":  previous,
		"correctedTotal": corrected.GrandTotal,
	})
	return order, &correction
}

// persistOrder writes post-insert changes. The order already exists, so a failed write is
// logged and checkout still returns the order to the shopper.
func (s *checkoutService) persistOrder(ctx context.Context, order *domain.Order, stage string) {
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, *order); err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{
			"orderID":    order.ID,
			"stage":      stage,
			"grandTotal": order.Totals.GrandTotal,
			"corrected":  len(order.Corrections) > 0,
			"error":      err.Error(),
		})
	}
}

func (s *checkoutService) createPaymentIntent(ctx context.Context, order *domain.Order, idempotencyKey string) (string, error) {
	if s.payments == nil {
		return "", nil
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = order.ID
	}
	intent, err := s.payments.CreatePaymentIntent(ctx, payments.PaymentIntentRequest{
		Amount:         order.Totals.GrandTotal,
		Currency:       order.Currency,
		OrderID:        order.ID,
		CustomerRef:    order.UserID,
		IdempotencyKey: "order-intent:" + key,
		Metadata: map[string]string{
			"order_id":        order.ID,
			"cart_id":         order.CartID,
			"discount_source": string(order.Totals.DiscountSource),
		},
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_intent_failed", map[string]any{
			"orderID": order.ID,
			"amount":  order.Totals.GrandTotal,
			"error":   err.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	order.PaymentIntentID = intent.ID
	return intent.ClientSecret, nil
}

func (s *checkoutService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) translateRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCheckoutCartNotReady, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}
