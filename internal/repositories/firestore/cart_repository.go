package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	cartCollection = "carts"
)

type cartDocument struct {
	CartID      string                  `firestore:"cartId"`
	Currency    string                  `firestore:"currency"`
	Version     int64                   `firestore:"version"`
	Lines       []cartLineDocument      `firestore:"lines"`
	Destination cartDestinationDocument `firestore:"destination"`
	Promotion   *promoSessionDocument   `firestore:"promo,omitempty"`
	UpdatedAt   time.Time               `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID        string `firestore:"id"`
	ProductID string `firestore:"productId"`
	SKU       string `firestore:"sku,omitempty"`
	Name      string `firestore:"name,omitempty"`
	Kind      string `firestore:"kind,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int    `firestore:"quantity"`
}

type cartDestinationDocument struct {
	Province      string `firestore:"province"`
	Country       string `firestore:"country"`
	International bool   `firestore:"international"`
}

type promoSessionDocument struct {
	Code              string    `firestore:"code"`
	State             string    `firestore:"state"`
	DiscountAmount    int64     `firestore:"discountAmount"`
	ValidatedSubtotal int64     `firestore:"validatedSubtotal"`
	CartVersion       int64     `firestore:"cartVersion"`
	ErrorKind         string    `firestore:"errorKind,omitempty"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

// CartRepository reads storefront carts and stores promo sessions on them.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
	now      func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetCart loads the cart keyed by the user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (repositories.CartRecord, error) {
	if r == nil || r.base == nil {
		return repositories.CartRecord{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return repositories.CartRecord{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return repositories.CartRecord{}, err
	}
	return decodeCartRecord(uid, doc.ID, doc.Data), nil
}

// SavePromotion writes session onto the cart inside a transaction, guarded by the cart version.
func (r *CartRepository) SavePromotion(ctx context.Context, userID string, session domain.PromoSession, expectedVersion int64) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current cartDocument
		if err := snapshot.DataTo(&current); err != nil {
			return fmt.Errorf("firestore carts decode %s: %w", uid, err)
		}
		if current.Version != expectedVersion {
			return status.Errorf(codes.FailedPrecondition, "cart %s version %d, expected %d", uid, current.Version, expectedVersion)
		}

		var promo any = firestore.Delete
		if strings.TrimSpace(session.Code) != "" || session.ErrorKind != domain.PromoErrorNone {
			promo = encodePromoSession(session)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "promo", Value: promo},
			{Path: "updatedAt", Value: r.now()},
		})
	}, pfirestore.WithTxAttempts(1))
	if err != nil {
		return pfirestore.WrapError("carts.savePromotion", err)
	}
	return nil
}

func decodeCartRecord(userID, docID string, data cartDocument) repositories.CartRecord {
	cartID := strings.TrimSpace(data.CartID)
	if cartID == "" {
		cartID = docID
	}
	lines := make([]domain.CartLine, 0, len(data.Lines))
	for _, line := range data.Lines {
		kind := domain.LineKind(strings.TrimSpace(line.Kind))
		if kind == "" {
			kind = domain.LineKindProduct
		}
		lines = append(lines, domain.CartLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Kind:      kind,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	record := repositories.CartRecord{
		Snapshot: domain.CartSnapshot{
			CartID:   cartID,
			UserID:   userID,
			Currency: strings.ToUpper(strings.TrimSpace(data.Currency)),
			Version:  data.Version,
			Lines:    lines,
		},
		Destination: domain.Destination{
			Province:        strings.ToUpper(strings.TrimSpace(data.Destination.Province)),
			Country:         strings.ToUpper(strings.TrimSpace(data.Destination.Country)),
			IsInternational: data.Destination.International,
		},
	}
	if data.Promotion != nil {
		record.Promotion = decodePromoSession(*data.Promotion)
	}
	return record
}

func encodePromoSession(session domain.PromoSession) promoSessionDocument {
	return promoSessionDocument{
		Code:              strings.TrimSpace(session.Code),
		State:             string(session.CurrentState()),
		DiscountAmount:    session.DiscountAmount,
		ValidatedSubtotal: session.ValidatedSubtotal,
		CartVersion:       session.CartVersion,
		ErrorKind:         string(session.ErrorKind),
		UpdatedAt:         session.UpdatedAt.UTC(),
	}
}

func decodePromoSession(doc promoSessionDocument) domain.PromoSession {
	return domain.PromoSession{
		Code:              doc.Code,
		State:             domain.PromoState(doc.State),
		DiscountAmount:    doc.DiscountAmount,
		ValidatedSubtotal: doc.ValidatedSubtotal,
		CartVersion:       doc.CartVersion,
		ErrorKind:         domain.PromoErrorKind(doc.ErrorKind),
		UpdatedAt:         doc.UpdatedAt,
	}
}
