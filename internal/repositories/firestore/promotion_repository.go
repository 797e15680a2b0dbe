package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	promotionsCollection  = "promotions"
	redemptionsCollection = "redemptions"
)

type promotionDocument struct {
	Kind          string    `firestore:"kind"`
	FixedAmount   int64     `firestore:"fixedAmount"`
	Percentage    string    `firestore:"percentage,omitempty"`
	MinSubtotal   int64     `firestore:"minSubtotal"`
	RemainingUses int64     `firestore:"remainingUses"`
	ExpiresAt     time.Time `firestore:"expiresAt"`
	Active        bool      `firestore:"active"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type redemptionDocument struct {
	OrderRef   string    `firestore:"orderRef"`
	UserID     string    `firestore:"userId,omitempty"`
	Subtotal   int64     `firestore:"subtotal"`
	RedeemedAt time.Time `firestore:"redeemedAt"`
}

// PromotionRepository implements repositories.PromotionLedger. Usage counters are decremented
// in a transaction and each redemption is recorded under promotions/{code}/redemptions/{orderRef}.
type PromotionRepository struct {
	provider   *pfirestore.Provider
	promotions *pfirestore.BaseRepository[promotionDocument]
	now        func() time.Time
}

var _ repositories.PromotionLedger = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion ledger.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		provider:   provider,
		promotions: pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindByCode loads the promo code. Codes are stored under their normalised form.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	if r == nil || r.promotions == nil {
		return domain.PromoCode{}, errors.New("promotion repository not initialised")
	}
	id := domain.NormalizePromoCode(code)
	if id == "" {
		return domain.PromoCode{}, pfirestore.WrapError("promotions.get", status.Error(codes.NotFound, "promotion code is empty"))
	}
	doc, err := r.promotions.Get(ctx, id)
	if err != nil {
		return domain.PromoCode{}, err
	}
	return decodePromotion(doc.ID, doc.Data)
}

// Redeem consumes one use of the code for the order. A second call for the same order is a no-op.
func (r *PromotionRepository) Redeem(ctx context.Context, redemption repositories.PromotionRedemption) error {
	if r == nil || r.provider == nil {
		return errors.New("promotion repository not initialised")
	}
	id := domain.NormalizePromoCode(redemption.Code)
	orderRef := strings.TrimSpace(redemption.OrderRef)
	if id == "" {
		return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorInvalid, "promotion code is required")
	}
	if orderRef == "" {
		return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorUnknown, "order reference is required")
	}

	now := r.now()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.promotions.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		redemptionRef := ref.Collection(redemptionsCollection).Doc(orderRef)

		existing, err := tx.Get(redemptionRef)
		switch status.Code(err) {
		case codes.OK:
			if existing.Exists() {
				return nil
			}
		case codes.NotFound:
		default:
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorInvalid, fmt.Sprintf("promotion %s not found", id))
		}
		if err != nil {
			return err
		}
		var doc promotionDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore promotions decode %s: %w", id, err)
		}
		promo, err := decodePromotion(id, doc)
		if err != nil {
			return err
		}

		switch {
		case !promo.Active || promo.Expired(now):
			return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorInvalid, fmt.Sprintf("promotion %s is no longer valid", id))
		case promo.RemainingUses <= 0:
			return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorExhausted, fmt.Sprintf("promotion %s has no remaining uses", id))
		case redemption.Subtotal < promo.MinSubtotal:
			return repositories.NewPromotionError("promotions.redeem", repositories.PromotionErrorBelowMinimum, fmt.Sprintf("subtotal %d below minimum %d", redemption.Subtotal, promo.MinSubtotal))
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "remainingUses", Value: firestore.Increment(-1)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		return tx.Create(redemptionRef, redemptionDocument{
			OrderRef:   orderRef,
			UserID:     strings.TrimSpace(redemption.UserID),
			Subtotal:   redemption.Subtotal,
			RedeemedAt: now,
		})
	})
	if err != nil {
		var promoErr *repositories.PromotionError
		if errors.As(err, &promoErr) {
			return promoErr
		}
		return pfirestore.WrapError("promotions.redeem", err)
	}
	return nil
}

func decodePromotion(code string, doc promotionDocument) (domain.PromoCode, error) {
	promo := domain.PromoCode{
		Code:          code,
		Kind:          domain.PromoKind(strings.ToLower(strings.TrimSpace(doc.Kind))),
		FixedAmount:   doc.FixedAmount,
		MinSubtotal:   doc.MinSubtotal,
		RemainingUses: doc.RemainingUses,
		ExpiresAt:     doc.ExpiresAt,
		Active:        doc.Active,
	}
	if promo.Kind == "" {
		promo.Kind = domain.PromoKindFixed
	}
	if pct := strings.TrimSpace(doc.Percentage); pct != "" {
		value, err := decimal.NewFromString(pct)
		if err != nil {
			return domain.PromoCode{}, fmt.Errorf("firestore promotions decode %s: percentage: %w", code, err)
		}
		promo.Percentage = value
	}
	return promo, nil
}
