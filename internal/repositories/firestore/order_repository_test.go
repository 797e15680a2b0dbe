package firestore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/maplecart/api/internal/domain"
)

func TestEncodeDecodeOrderKeepsPricingBreakdown(t *testing.T) {
	created := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	session := domain.PromoSession{Code: "SAVE50", State: domain.PromoStateRedemptionFailed, ErrorKind: domain.PromoErrorUsageExceeded}
	order := domain.Order{
		ID:       "ord_1",
		UserID:   "user_1",
		CartID:   "cart_1",
		Status:   domain.OrderStatusPendingPayment,
		Currency: "CAD",
		Lines: []domain.CartLine{
			{ID: "l1", ProductID: "prod_1", Kind: domain.LineKindBundle, UnitPrice: 15000, Quantity: 2},
		},
		Destination: domain.Destination{Province: "qc", Country: "CA"},
		Totals: domain.OrderTotal{
			Currency:       "CAD",
			Subtotal:       30000,
			DiscountSource: domain.DiscountSourceVolume,
			Volume: domain.DiscountResult{
				Percentage: decimal.NewFromInt(10),
				Amount:     3000,
				Threshold:  30000,
				Applied:    true,
			},
			DiscountAmount:     3000,
			DiscountedSubtotal: 27000,
			Shipping:           domain.ShippingQuote{MinDays: 2, MaxDays: 5, MethodLabel: "Free Standard Shipping", IsFree: true},
			Taxable:            27000,
			Tax: domain.TaxBreakdown{
				Province: "QC",
				GST:      1350,
				QST:      2693,
				Total:    4043,
				Rate:     decimal.RequireFromString("0.14975"),
				Label:    "GST + QST",
			},
			GrandTotal: 31043,
		},
		Promotion: &session,
		Corrections: []domain.OrderCorrection{
			{Reason: domain.CorrectionReasonPromoRedemptionFailed, PromotionCode: "SAVE50", PreviousTotal: 28750, CorrectedTotal: 31043, CreatedAt: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	got := decodeOrder("ord_1", encodeOrder(order))

	if got.Destination.Province != "QC" {
		t.Fatalf("expected normalised province, got %q", got.Destination.Province)
	}
	if got.Lines[0].Kind != domain.LineKindBundle || got.Lines[0].LineTotal() != 30000 {
		t.Fatalf("unexpected lines %+v", got.Lines)
	}
	if !got.Totals.Volume.Applied || !got.Totals.Volume.Percentage.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected volume tier to survive, got %+v", got.Totals.Volume)
	}
	if !got.Totals.Tax.Rate.Equal(decimal.RequireFromString("0.14975")) || got.Totals.Tax.QST != 2693 {
		t.Fatalf("unexpected tax %+v", got.Totals.Tax)
	}
	if got.Totals.GrandTotal != 31043 || got.Totals.Promo != nil {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}
	if got.Promotion == nil || got.Promotion.ErrorKind != domain.PromoErrorUsageExceeded {
		t.Fatalf("unexpected promotion %+v", got.Promotion)
	}
	if len(got.Corrections) != 1 || got.Corrections[0].CorrectedTotal != 31043 {
		t.Fatalf("unexpected corrections %+v", got.Corrections)
	}
}

func TestDecodeCartRecordDefaults(t *testing.T) {
	record := decodeCartRecord("user_1", "user_1", cartDocument{
		Currency: " cad ",
		Version:  7,
		Lines:    []cartLineDocument{{ID: "l1", UnitPrice: 1000, Quantity: 3}},
	})
	if record.Snapshot.CartID != "user_1" || record.Snapshot.Currency != "CAD" {
		t.Fatalf("unexpected snapshot %+v", record.Snapshot)
	}
	if record.Snapshot.Lines[0].Kind != domain.LineKindProduct {
		t.Fatalf("lines default to product kind")
	}
	if record.Promotion.CurrentState() != domain.PromoStateUnvalidated {
		t.Fatalf("missing promo must read as unvalidated")
	}
}
