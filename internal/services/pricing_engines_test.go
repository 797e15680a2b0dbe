package services

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/settings"
)

func TestDiscountEngineTierBoundaries(t *testing.T) {
	engine := NewDiscountEngine(DefaultPricingSettings().VolumeTiers)

	cases := []struct {
		name      string
		subtotal  int64
		applied   bool
		pct       string
		amount    int64
		threshold int64
	}{
		{name: "zero", subtotal: 0},
		{name: "just below first tier", subtotal: 29999},
		{name: "first tier boundary", subtotal: 30000, applied: true, pct: "10", amount: 3000, threshold: 30000},
		{name: "just below top tier", subtotal: 49999, applied: true, pct: "10", amount: 5000, threshold: 30000},
		{name: "top tier boundary", subtotal: 50000, applied: true, pct: "15", amount: 7500, threshold: 50000},
		{name: "large cart", subtotal: 123457, applied: true, pct: "15", amount: 18519, threshold: 50000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.ComputeVolumeDiscount(tc.subtotal)
			assert.Equal(t, tc.applied, got.Applied)
			assert.Equal(t, tc.amount, got.Amount)
			assert.Equal(t, tc.threshold, got.Threshold)
			if tc.applied {
				assert.True(t, got.Percentage.Equal(decimal.RequireFromString(tc.pct)), "percentage %s", got.Percentage)
			} else {
				assert.True(t, got.Percentage.IsZero())
			}
		})
	}
}

func TestDiscountEngineSortsTiers(t *testing.T) {
	engine := NewDiscountEngine([]VolumeTier{
		{Threshold: 30000, Percentage: decimal.NewFromInt(10)},
		{Threshold: 50000, Percentage: decimal.NewFromInt(15)},
	})
	got := engine.ComputeVolumeDiscount(60000)
	require.True(t, got.Applied)
	assert.Equal(t, int64(9000), got.Amount, "highest tier wins, tiers are not additive")
}

func TestShippingRateEngineQuotes(t *testing.T) {
	engine := NewShippingRateEngine(DefaultPricingSettings().Shipping)

	cases := []struct {
		name          string
		items         int
		province      string
		subtotal      int64
		international bool
		want          domain.ShippingQuote
	}{
		{
			name: "ontario below threshold", items: 2, province: "ON", subtotal: 25000,
			want: domain.ShippingQuote{Cost: 1500, MinDays: 2, MaxDays: 5, MethodLabel: "Standard Shipping"},
		},
		{
			name: "ontario at threshold", items: 2, province: "ON", subtotal: 30000,
			want: domain.ShippingQuote{Cost: 0, MinDays: 2, MaxDays: 5, MethodLabel: "Free Standard Shipping", IsFree: true},
		},
		{
			name: "quebec reduced rate", items: 2, province: "qc", subtotal: 25000,
			want: domain.ShippingQuote{Cost: 1000, MinDays: 2, MaxDays: 5, MethodLabel: "Standard Shipping"},
		},
		{
			name: "unknown province uses default window", items: 1, province: "", subtotal: 1000,
			want: domain.ShippingQuote{Cost: 1500, MinDays: 5, MaxDays: 10, MethodLabel: "Standard Shipping"},
		},
		{
			name: "international light", items: 5, subtotal: 90000, international: true,
			want: domain.ShippingQuote{Cost: 4000, MinDays: 10, MaxDays: 21, MethodLabel: "International Tracked Shipping"},
		},
		{
			name: "international at heavy threshold", items: 10, international: true,
			want: domain.ShippingQuote{Cost: 4000, MinDays: 10, MaxDays: 21, MethodLabel: "International Tracked Shipping"},
		},
		{
			name: "international heavy", items: 12, international: true,
			want: domain.ShippingQuote{Cost: 5000, MinDays: 10, MaxDays: 21, MethodLabel: "International Tracked Shipping"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Quote(tc.items, tc.province, tc.subtotal, tc.international)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTaxEngineProvinces(t *testing.T) {
	engine := NewTaxEngine(DefaultPricingSettings().Tax)

	on := engine.ComputeTax(27000, "ON")
	assert.Equal(t, int64(3510), on.HST)
	assert.Equal(t, int64(3510), on.Total)
	assert.Zero(t, on.GST)
	assert.Zero(t, on.PST)
	assert.Zero(t, on.QST)
	assert.False(t, on.Estimated)
	assert.True(t, on.Rate.Equal(decimal.RequireFromString("0.13")))

	qc := engine.ComputeTax(27000, "qc")
	assert.Equal(t, "QC", qc.Province)
	assert.Equal(t, int64(1350), qc.GST)
	assert.Equal(t, int64(2693), qc.QST)
	assert.Equal(t, int64(4043), qc.Total)
	assert.Zero(t, qc.HST)
	assert.Zero(t, qc.PST)
	assert.True(t, qc.Rate.Equal(decimal.RequireFromString("0.14975")))

	bc := engine.ComputeTax(10000, "BC")
	assert.Equal(t, int64(500), bc.GST)
	assert.Equal(t, int64(700), bc.PST)
	assert.Equal(t, int64(1200), bc.Total)
	assert.Zero(t, bc.HST)

	ab := engine.ComputeTax(10000, "AB")
	assert.Equal(t, int64(500), ab.Total)
	assert.Equal(t, "GST", ab.Label)
}

func TestTaxEngineFallsBackToEstimate(t *testing.T) {
	engine := NewTaxEngine(DefaultPricingSettings().Tax)

	for _, province := range []string{"", "ZZ"} {
		got := engine.ComputeTax(27000, province)
		assert.True(t, got.Estimated, "province %q", province)
		assert.Equal(t, "Estimated HST", got.Label)
		assert.Equal(t, int64(3510), got.Total)
	}
	assert.Zero(t, engine.ComputeTax(-100, "ON").Total)
}

func TestOrderTotalComposerEndToEnd(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{
		CartID: "cart_1",
		Lines: []domain.CartLine{
			{ID: "l1", Kind: domain.LineKindProduct, UnitPrice: 15000, Quantity: 2},
		},
	}

	total := composer.ComputeTotal(cart, domain.Destination{Province: "ON", Country: "CA"}, domain.PromoSession{})

	assert.Equal(t, "CAD", total.Currency)
	assert.Equal(t, int64(30000), total.Subtotal)
	assert.Equal(t, domain.DiscountSourceVolume, total.DiscountSource)
	assert.Equal(t, int64(3000), total.DiscountAmount)
	assert.Equal(t, int64(27000), total.DiscountedSubtotal)
	assert.True(t, total.Shipping.IsFree, "free shipping keys off the pre-discount subtotal")
	assert.Equal(t, int64(27000), total.Taxable)
	assert.Equal(t, int64(3510), total.Tax.Total)
	assert.Equal(t, int64(30510), total.GrandTotal)
	assert.Equal(t, "305.10", domain.FormatCents(total.GrandTotal))
}

func TestOrderTotalComposerBundleLines(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{Lines: []domain.CartLine{
		{ID: "b1", Kind: domain.LineKindBundle, UnitPrice: 8999, Quantity: 1},
		{ID: "p1", Kind: domain.LineKindProduct, UnitPrice: 1250, Quantity: 3},
	}}

	total := composer.ComputeTotal(cart, domain.Destination{Province: "AB"}, domain.PromoSession{})

	assert.Equal(t, int64(12749), total.Subtotal)
	assert.Equal(t, domain.DiscountSourceNone, total.DiscountSource)
	assert.Equal(t, int64(1500), total.Shipping.Cost)
	assert.Equal(t, int64(14249), total.Taxable)
	assert.Equal(t, int64(712), total.Tax.Total)
	assert.Equal(t, int64(14961), total.GrandTotal)
}

func TestOrderTotalComposerPromoExcludesVolume(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{Lines: []domain.CartLine{{ID: "l1", UnitPrice: 30000, Quantity: 2}}}

	for _, state := range []domain.PromoState{domain.PromoStateApplied, domain.PromoStateRedeeming, domain.PromoStateRedeemed} {
		promo := domain.PromoSession{Code: "SAVE50", State: state, DiscountAmount: 5000, ValidatedSubtotal: 60000}
		total := composer.ComputeTotal(cart, domain.Destination{Province: "ON"}, promo)

		assert.False(t, total.Volume.Applied, "state %s", state)
		assert.Zero(t, total.Volume.Amount)
		assert.Equal(t, domain.DiscountSourcePromo, total.DiscountSource)
		require.NotNil(t, total.Promo)
		assert.Equal(t, "SAVE50", total.Promo.Code)
		assert.Equal(t, state, total.Promo.State)
		assert.Equal(t, int64(5000), total.DiscountAmount)
		assert.Equal(t, int64(55000), total.DiscountedSubtotal)
		assert.True(t, total.Shipping.IsFree)
	}

	unvalidated := domain.PromoSession{Code: "SAVE50", State: domain.PromoStateUnvalidated, DiscountAmount: 5000}
	total := composer.ComputeTotal(cart, domain.Destination{Province: "ON"}, unvalidated)
	assert.Equal(t, domain.DiscountSourceVolume, total.DiscountSource)
	assert.Nil(t, total.Promo)
	assert.Equal(t, int64(9000), total.DiscountAmount)
}

func TestOrderTotalComposerCapsPromoAtSubtotal(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{Lines: []domain.CartLine{{ID: "l1", UnitPrice: 1000, Quantity: 1}}}
	promo := domain.PromoSession{Code: "BIG", State: domain.PromoStateApplied, DiscountAmount: 2500}

	total := composer.ComputeTotal(cart, domain.Destination{Province: "ON"}, promo)

	assert.Equal(t, int64(1000), total.DiscountAmount)
	assert.Zero(t, total.DiscountedSubtotal)
	assert.Equal(t, int64(1500), total.Taxable, "shipping is still charged and taxed")
	assert.Equal(t, int64(1695), total.GrandTotal)
}

func TestOrderTotalComposerInternationalUsesEstimatedTax(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{Lines: []domain.CartLine{{ID: "l1", UnitPrice: 1000, Quantity: 12}}}

	total := composer.ComputeTotal(cart, domain.Destination{Province: "ON", Country: "US", IsInternational: true}, domain.PromoSession{})

	assert.Equal(t, int64(5000), total.Shipping.Cost)
	assert.False(t, total.Shipping.IsFree)
	assert.True(t, total.Tax.Estimated)
	assert.Empty(t, total.Tax.Province)
	assert.Equal(t, int64(17000), total.Taxable)
	assert.Equal(t, int64(2210), total.Tax.Total)
}

func TestOrderTotalComposerIsIdempotent(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	cart := domain.CartSnapshot{Lines: []domain.CartLine{
		{ID: "l1", UnitPrice: 3333, Quantity: 7},
		{ID: "l2", Kind: domain.LineKindBundle, UnitPrice: 14999, Quantity: 2},
	}}
	dest := domain.Destination{Province: "QC"}
	promo := domain.PromoSession{Code: "TENOFF", State: domain.PromoStateApplied, DiscountAmount: 1000}

	first, err := json.Marshal(composer.ComputeTotal(cart, dest, promo))
	require.NoError(t, err)
	second, err := json.Marshal(composer.ComputeTotal(cart, dest, promo))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestOrderTotalComposerInvariants(t *testing.T) {
	composer := NewOrderTotalComposer(DefaultPricingSettings())
	provinces := []string{"ON", "QC", "BC", "AB", "NS", ""}
	promos := []domain.PromoSession{
		{},
		{Code: "P", State: domain.PromoStateApplied, DiscountAmount: 777},
		{Code: "P", State: domain.PromoStateApplied, DiscountAmount: 90000},
	}
	for _, unit := range []int64{0, 999, 14999, 29999, 30000, 50001} {
		for _, province := range provinces {
			for _, promo := range promos {
				cart := domain.CartSnapshot{Lines: []domain.CartLine{{ID: "l", UnitPrice: unit, Quantity: 1}}}
				total := composer.ComputeTotal(cart, domain.Destination{Province: province}, promo)

				assert.Equal(t, total.Subtotal-total.DiscountAmount, total.DiscountedSubtotal)
				assert.GreaterOrEqual(t, total.DiscountedSubtotal, int64(0))
				assert.Equal(t, total.DiscountedSubtotal+total.Shipping.Cost, total.Taxable)
				assert.Equal(t, total.Tax.GST+total.Tax.PST+total.Tax.HST+total.Tax.QST, total.Tax.Total)
				assert.Equal(t, total.Taxable+total.Tax.Total, total.GrandTotal)
				assert.False(t, total.Tax.PST != 0 && total.Tax.HST != 0)
				if promo.IsApplied() {
					assert.False(t, total.Volume.Applied)
				}
			}
		}
	}
}

func TestPricingSettingsFromDocument(t *testing.T) {
	doc := settings.Document{
		Currency:    "cad",
		VolumeTiers: []settings.TierDocument{{Threshold: "1000.00", Percentage: "20"}},
		Shipping: settings.ShippingDocument{
			FlatRate:     "12.50",
			ReducedRates: map[string]string{"nb": "9.00"},
			Windows:      map[string]*settings.WindowDocument{"on": {MinDays: 1, MaxDays: 3}},
		},
		Tax: settings.TaxDocument{
			Provinces: map[string]settings.TaxRuleDocument{
				"ns": {Components: map[string]string{"hst": "14"}},
			},
		},
	}

	cfg, err := PricingSettingsFromDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, "CAD", cfg.Currency)
	require.Len(t, cfg.VolumeTiers, 1)
	assert.Equal(t, int64(100000), cfg.VolumeTiers[0].Threshold)
	assert.Equal(t, int64(1250), cfg.Shipping.FlatRate)
	assert.Equal(t, int64(30000), cfg.Shipping.FreeThreshold, "unset values keep defaults")
	assert.Equal(t, map[string]int64{"NB": 900}, cfg.Shipping.ReducedRates)
	assert.Equal(t, DeliveryWindow{MinDays: 1, MaxDays: 3}, cfg.Shipping.Windows["ON"])

	ns := NewTaxEngine(cfg.Tax).ComputeTax(10000, "NS")
	assert.Equal(t, int64(1400), ns.HST)
	assert.Equal(t, "HST", ns.Label)
	on := NewTaxEngine(cfg.Tax).ComputeTax(10000, "ON")
	assert.Equal(t, int64(1300), on.HST, "provinces absent from the document keep defaults")
}

func TestPricingSettingsFromDocumentRejectsInvalid(t *testing.T) {
	cases := map[string]settings.Document{
		"bad threshold":      {VolumeTiers: []settings.TierDocument{{Threshold: "abc", Percentage: "10"}}},
		"percentage too big": {VolumeTiers: []settings.TierDocument{{Threshold: "1", Percentage: "120"}}},
		"negative flat rate": {Shipping: settings.ShippingDocument{FlatRate: "-1"}},
		"inverted window":    {Shipping: settings.ShippingDocument{DefaultWindow: &settings.WindowDocument{MinDays: 5, MaxDays: 2}}},
		"pst with hst": {Tax: settings.TaxDocument{Provinces: map[string]settings.TaxRuleDocument{
			"ON": {Components: map[string]string{"pst": "8", "hst": "13"}},
		}}},
		"unknown component": {Tax: settings.TaxDocument{Default: &settings.TaxRuleDocument{Components: map[string]string{"vat": "20"}}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PricingSettingsFromDocument(doc)
			require.ErrorIs(t, err, ErrPricingSettingsInvalid)
		})
	}
}
