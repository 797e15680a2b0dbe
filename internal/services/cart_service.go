package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartComposerRequired   = errors.New("cart service: composer is required")
)

const maxPromoCodeLength = 64

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart backend cannot serve the request.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartNotFound indicates the shopper has no cart.
	ErrCartNotFound = errors.New("cart service: not found")
	// ErrCartStale indicates the cart changed while a promo code was being validated; the result was discarded.
	ErrCartStale = errors.New("cart service: cart changed during promotion validation")
	// ErrCartPromotionsDisabled indicates promo code entry is switched off.
	ErrCartPromotionsDisabled = errors.New("cart service: promotions disabled")
)

type totalComposer interface {
	ComputeTotal(cart domain.CartSnapshot, dest domain.Destination, promo domain.PromoSession) domain.OrderTotal
}

type promoValidator interface {
	Validate(ctx context.Context, code string, subtotal int64) PromoValidation
}

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Composer   totalComposer
	Promotions promoValidator
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	composer totalComposer
	promos   promoValidator
	policy   *bluemonday.Policy
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService. Promotions may be nil when promo entry is disabled.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Composer == nil {
		return nil, errCartComposerRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:     deps.Repository,
		composer: deps.Composer,
		promos:   deps.Promotions,
		policy:   bluemonday.StrictPolicy(),
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Preview prices the current cart. When an applied promo was validated against a different
// subtotal it is validated again so the displayed discount always matches the cart.
func (s *cartService) Preview(ctx context.Context, cmd CartPreviewCommand) (CartPreview, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CartPreview{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	record, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return CartPreview{}, s.translateRepositoryError(err)
	}
	dest := resolveDestination(cmd.Destination, record.Destination)
	session := s.refreshPromotion(ctx, userID, record)
	return s.preview(record, dest, session), nil
}

func (s *cartService) refreshPromotion(ctx context.Context, userID string, record repositories.CartRecord) domain.PromoSession {
	session := record.Promotion
	if session.CurrentState() != domain.PromoStateApplied {
		return session
	}
	subtotal := record.Snapshot.Subtotal()
	if session.ValidatedSubtotal == subtotal {
		return session
	}
	if s.promos == nil {
		return domain.PromoSession{}
	}

	next, err := session.BeginValidation(session.Code, s.now())
	if err != nil {
		return session
	}
	result := s.promos.Validate(ctx, session.Code, subtotal)
	next, err = next.CompleteValidation(result.Valid, result.DiscountAmount, subtotal, record.Snapshot.Version, result.ErrorKind, s.now())
	if err != nil {
		return session
	}
	if result.ErrorKind == domain.PromoErrorNetwork {
		// not persisted so the next preview retries
		return next
	}
	if err := s.repo.SavePromotion(ctx, userID, next, record.Snapshot.Version); err != nil {
		s.logger(ctx, "cart.promotion.refresh_not_saved", map[string]any{
			"userID": userID,
			"code":   session.Code,
			"error":  err.Error(),
		})
	}
	return next
}

// ApplyPromotion validates code against the cart as it is now. If the cart changes before
// the outcome is stored, the outcome is discarded and ErrCartStale is returned.
func (s *cartService) ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (PromotionApplyResult, error) {
	if s.promos == nil {
		return PromotionApplyResult{}, ErrCartPromotionsDisabled
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PromotionApplyResult{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	code := domain.NormalizePromoCode(s.policy.Sanitize(cmd.Code))
	if code == "" || len(code) > maxPromoCodeLength {
		return PromotionApplyResult{}, fmt.Errorf("%w: promotion code is required", ErrCartInvalidInput)
	}

	record, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return PromotionApplyResult{}, s.translateRepositoryError(err)
	}
	version := record.Snapshot.Version
	subtotal := record.Snapshot.Subtotal()

	session, err := record.Promotion.BeginValidation(code, s.now())
	if err != nil {
		return PromotionApplyResult{}, fmt.Errorf("%w: %v", ErrCartStale, err)
	}

	validation := s.promos.Validate(ctx, code, subtotal)
	session, err = session.CompleteValidation(validation.Valid, validation.DiscountAmount, subtotal, version, validation.ErrorKind, s.now())
	if err != nil {
		return PromotionApplyResult{}, fmt.Errorf("%w: %v", ErrCartStale, err)
	}

	if err := s.repo.SavePromotion(ctx, userID, session, version); err != nil {
		translated := s.translateRepositoryError(err)
		if errors.Is(translated, ErrCartStale) {
			s.logger(ctx, "cart.promotion.discarded_stale", map[string]any{
				"userID":  userID,
				"code":    code,
				"version": version,
			})
		}
		return PromotionApplyResult{}, translated
	}

	s.logger(ctx, "cart.promotion.validated", map[string]any{
		"userID":    userID,
		"code":      code,
		"valid":     validation.Valid,
		"errorKind": string(validation.ErrorKind),
	})

	dest := resolveDestination(cmd.Destination, record.Destination)
	return PromotionApplyResult{
		Validation: validation,
		Preview:    s.preview(record, dest, session),
	}, nil
}

// RemovePromotion clears the promo session so the volume discount applies again.
func (s *cartService) RemovePromotion(ctx context.Context, userID string) (CartPreview, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CartPreview{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	record, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return CartPreview{}, s.translateRepositoryError(err)
	}
	cleared := domain.PromoSession{State: domain.PromoStateUnvalidated, CartVersion: record.Snapshot.Version, UpdatedAt: s.now()}
	if err := s.repo.SavePromotion(ctx, userID, cleared, record.Snapshot.Version); err != nil {
		return CartPreview{}, s.translateRepositoryError(err)
	}
	return s.preview(record, record.Destination, cleared), nil
}

func (s *cartService) preview(record repositories.CartRecord, dest domain.Destination, session domain.PromoSession) CartPreview {
	return CartPreview{
		CartID:      record.Snapshot.CartID,
		CartVersion: record.Snapshot.Version,
		Destination: dest,
		Promotion:   session,
		Total:       s.composer.ComputeTotal(record.Snapshot, dest, session),
	}
}

func (s *cartService) translateRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartStale, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func resolveDestination(override *domain.Destination, stored domain.Destination) domain.Destination {
	if override == nil {
		return stored
	}
	dest := *override
	dest.Province = dest.NormalizedProvince()
	dest.Country = strings.ToUpper(strings.TrimSpace(dest.Country))
	if dest.Country != "" && dest.Country != "CA" {
		dest.IsInternational = true
	}
	return dest
}
