package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	UserID          string                    `firestore:"userId"`
	CartID          string                    `firestore:"cartId"`
	Status          string                    `firestore:"status"`
	Currency        string                    `firestore:"currency"`
	Lines           []cartLineDocument        `firestore:"lines"`
	Destination     cartDestinationDocument   `firestore:"destination"`
	Totals          orderTotalsDocument       `firestore:"totals"`
	Promotion       *promoSessionDocument     `firestore:"promo,omitempty"`
	PaymentIntentID string                    `firestore:"paymentIntentId,omitempty"`
	Corrections     []orderCorrectionDocument `firestore:"corrections,omitempty"`
	CreatedAt       time.Time                 `firestore:"createdAt"`
	UpdatedAt       time.Time                 `firestore:"updatedAt"`
}

type orderTotalsDocument struct {
	Subtotal           int64                 `firestore:"subtotal"`
	DiscountSource     string                `firestore:"discountSource"`
	VolumePercentage   string                `firestore:"volumePercentage,omitempty"`
	VolumeThreshold    int64                 `firestore:"volumeThreshold,omitempty"`
	PromoCode          string                `firestore:"promoCode,omitempty"`
	DiscountAmount     int64                 `firestore:"discountAmount"`
	DiscountedSubtotal int64                 `firestore:"discountedSubtotal"`
	Shipping           orderShippingDocument `firestore:"shipping"`
	Taxable            int64                 `firestore:"taxable"`
	Tax                orderTaxDocument      `firestore:"tax"`
	GrandTotal         int64                 `firestore:"grandTotal"`
}

type orderShippingDocument struct {
	Cost    int64  `firestore:"cost"`
	MinDays int    `firestore:"minDays"`
	MaxDays int    `firestore:"maxDays"`
	Label   string `firestore:"label"`
	Free    bool   `firestore:"free"`
}

type orderTaxDocument struct {
	Province  string `firestore:"province,omitempty"`
	GST       int64  `firestore:"gst"`
	PST       int64  `firestore:"pst"`
	HST       int64  `firestore:"hst"`
	QST       int64  `firestore:"qst"`
	Total     int64  `firestore:"total"`
	Rate      string `firestore:"rate"`
	Label     string `firestore:"label"`
	Estimated bool   `firestore:"estimated"`
}

type orderCorrectionDocument struct {
	Reason         string    `firestore:"reason"`
	PromotionCode  string    `firestore:"promotionCode,omitempty"`
	PreviousTotal  int64     `firestore:"previousTotal"`
	CorrectedTotal int64     `firestore:"correctedTotal"`
	Message        string    `firestore:"message"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// OrderRepository persists checkout orders in Firestore.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document. An existing document with the same ID is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(order.ID))
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the mutable parts of an existing order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	doc := encodeOrder(order)
	var promo any = firestore.Delete
	if doc.Promotion != nil {
		promo = doc.Promotion
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(order.ID), []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "totals", Value: doc.Totals},
		{Path: "promo", Value: promo},
		{Path: "paymentIntentId", Value: doc.PaymentIntentID},
		{Path: "corrections", Value: doc.Corrections},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
	return err
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]cartLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, cartLineDocument{
			ID:        line.ID,
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Kind:      string(line.Kind),
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	totals := order.Totals
	doc := orderDocument{
		UserID:   order.UserID,
		CartID:   order.CartID,
		Status:   string(order.Status),
		Currency: order.Currency,
		Lines:    lines,
		Destination: cartDestinationDocument{
			Province:      order.Destination.NormalizedProvince(),
			Country:       order.Destination.Country,
			International: order.Destination.IsInternational,
		},
		Totals: orderTotalsDocument{
			Subtotal:           totals.Subtotal,
			DiscountSource:     string(totals.DiscountSource),
			DiscountAmount:     totals.DiscountAmount,
			DiscountedSubtotal: totals.DiscountedSubtotal,
			Shipping: orderShippingDocument{
				Cost:    totals.Shipping.Cost,
				MinDays: totals.Shipping.MinDays,
				MaxDays: totals.Shipping.MaxDays,
				Label:   totals.Shipping.MethodLabel,
				Free:    totals.Shipping.IsFree,
			},
			Taxable: totals.Taxable,
			Tax: orderTaxDocument{
				Province:  totals.Tax.Province,
				GST:       totals.Tax.GST,
				PST:       totals.Tax.PST,
				HST:       totals.Tax.HST,
				QST:       totals.Tax.QST,
				Total:     totals.Tax.Total,
				Rate:      totals.Tax.Rate.String(),
				Label:     totals.Tax.Label,
				Estimated: totals.Tax.Estimated,
			},
			GrandTotal: totals.GrandTotal,
		},
		PaymentIntentID: order.PaymentIntentID,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
	if totals.Volume.Applied {
		doc.Totals.VolumePercentage = totals.Volume.Percentage.String()
		doc.Totals.VolumeThreshold = totals.Volume.Threshold
	}
	if totals.Promo != nil {
		doc.Totals.PromoCode = totals.Promo.Code
	}
	if order.Promotion != nil {
		promo := encodePromoSession(*order.Promotion)
		doc.Promotion = &promo
	}
	for _, c := range order.Corrections {
		doc.Corrections = append(doc.Corrections, orderCorrectionDocument{
			Reason:         c.Reason,
			PromotionCode:  c.PromotionCode,
			PreviousTotal:  c.PreviousTotal,
			CorrectedTotal: c.CorrectedTotal,
			Message:        c.Message,
			CreatedAt:      c.CreatedAt.UTC(),
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	record := decodeCartRecord(doc.UserID, doc.CartID, cartDocument{
		CartID:      doc.CartID,
		Currency:    doc.Currency,
		Lines:       doc.Lines,
		Destination: doc.Destination,
	})

	t := doc.Totals
	totals := domain.OrderTotal{
		Currency:           doc.Currency,
		Subtotal:           t.Subtotal,
		DiscountSource:     domain.DiscountSource(t.DiscountSource),
		DiscountAmount:     t.DiscountAmount,
		DiscountedSubtotal: t.DiscountedSubtotal,
		Shipping: domain.ShippingQuote{
			Cost:        t.Shipping.Cost,
			MinDays:     t.Shipping.MinDays,
			MaxDays:     t.Shipping.MaxDays,
			MethodLabel: t.Shipping.Label,
			IsFree:      t.Shipping.Free,
		},
		Taxable: t.Taxable,
		Tax: domain.TaxBreakdown{
			Province:  t.Tax.Province,
			GST:       t.Tax.GST,
			PST:       t.Tax.PST,
			HST:       t.Tax.HST,
			QST:       t.Tax.QST,
			Total:     t.Tax.Total,
			Rate:      parseDecimalOrZero(t.Tax.Rate),
			Label:     t.Tax.Label,
			Estimated: t.Tax.Estimated,
		},
		GrandTotal: t.GrandTotal,
	}
	if totals.DiscountSource == domain.DiscountSourceVolume {
		totals.Volume = domain.DiscountResult{
			Percentage: parseDecimalOrZero(t.VolumePercentage),
			Amount:     t.DiscountAmount,
			Threshold:  t.VolumeThreshold,
			Applied:    true,
		}
	}

	order := domain.Order{
		ID:              id,
		UserID:          doc.UserID,
		CartID:          doc.CartID,
		Status:          domain.OrderStatus(doc.Status),
		Currency:        doc.Currency,
		Lines:           record.Snapshot.Lines,
		Destination:     record.Destination,
		PaymentIntentID: doc.PaymentIntentID,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if doc.Promotion != nil {
		session := decodePromoSession(*doc.Promotion)
		order.Promotion = &session
	}
	if totals.DiscountSource == domain.DiscountSourcePromo {
		totals.Promo = &domain.PromoApplication{Code: t.PromoCode, Amount: t.DiscountAmount}
		if order.Promotion != nil {
			totals.Promo.State = order.Promotion.CurrentState()
		}
	}
	order.Totals = totals
	for _, c := range doc.Corrections {
		order.Corrections = append(order.Corrections, domain.OrderCorrection{
			Reason:         c.Reason,
			PromotionCode:  c.PromotionCode,
			PreviousTotal:  c.PreviousTotal,
			CorrectedTotal: c.CorrectedTotal,
			Message:        c.Message,
			CreatedAt:      c.CreatedAt,
		})
	}
	return order
}

func parseDecimalOrZero(value string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return d
}
