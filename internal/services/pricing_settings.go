package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/settings"
)

// ErrPricingSettingsInvalid signals an override document that cannot be applied.
var ErrPricingSettingsInvalid = errors.New("pricing settings: invalid")

// VolumeTier is one row of the volume discount table.
type VolumeTier struct {
	Threshold  int64
	Percentage decimal.Decimal
}

// DeliveryWindow is an inclusive business-day range.
type DeliveryWindow struct {
	MinDays int
	MaxDays int
}

// ShippingSettings holds the flat rate table used by the shipping engine.
type ShippingSettings struct {
	FreeThreshold           int64
	FlatRate                int64
	ReducedRates            map[string]int64
	InternationalBase       int64
	InternationalSurcharge  int64
	HeavyOrderSurcharge     int64
	HeavyOrderItemThreshold int
	InternationalWindow     DeliveryWindow
	DefaultWindow           DeliveryWindow
	Windows                 map[string]DeliveryWindow
}

// TaxComponent identifies a tax line.
type TaxComponent string

const (
	TaxComponentGST TaxComponent = "gst"
	TaxComponentPST TaxComponent = "pst"
	TaxComponentHST TaxComponent = "hst"
	TaxComponentQST TaxComponent = "qst"
)

// TaxRule is the composition for a single province.
type TaxRule struct {
	Label      string
	Components map[TaxComponent]decimal.Decimal
}

// TaxSettings maps province codes to tax rules.
type TaxSettings struct {
	Provinces map[string]TaxRule
	Default   TaxRule
}

// PricingSettings bundles every lookup table consumed by the pricing engines.
// Values are treated as immutable once handed to an engine.
type PricingSettings struct {
	Currency    string
	VolumeTiers []VolumeTier
	Shipping    ShippingSettings
	Tax         TaxSettings
}

func pct(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func rate(value string) decimal.Decimal {
	return decimal.RequireFromString(value).Div(decimal.NewFromInt(100))
}

func gstOnly() TaxRule {
	return TaxRule{Label: "GST", Components: map[TaxComponent]decimal.Decimal{TaxComponentGST: rate("5")}}
}

func gstPST(pst string) TaxRule {
	return TaxRule{Label: "GST + PST", Components: map[TaxComponent]decimal.Decimal{
		TaxComponentGST: rate("5"),
		TaxComponentPST: rate(pst),
	}}
}

func hst(value string) TaxRule {
	return TaxRule{Label: "HST", Components: map[TaxComponent]decimal.Decimal{TaxComponentHST: rate(value)}}
}

// DefaultPricingSettings returns the storefront's built-in tables (2024 Canadian rates).
func DefaultPricingSettings() PricingSettings {
	return PricingSettings{
		Currency: domain.DefaultCurrency,
		VolumeTiers: []VolumeTier{
			{Threshold: 50000, Percentage: pct("15")},
			{Threshold: 30000, Percentage: pct("10")},
		},
		Shipping: ShippingSettings{
			FreeThreshold:           30000,
			FlatRate:                1500,
			ReducedRates:            map[string]int64{"QC": 1000},
			InternationalBase:       2500,
			InternationalSurcharge:  1500,
			HeavyOrderSurcharge:     1000,
			HeavyOrderItemThreshold: 10,
			InternationalWindow:     DeliveryWindow{MinDays: 10, MaxDays: 21},
			DefaultWindow:           DeliveryWindow{MinDays: 5, MaxDays: 10},
			Windows: map[string]DeliveryWindow{
				"ON": {MinDays: 2, MaxDays: 5},
				"QC": {MinDays: 2, MaxDays: 5},
				"NB": {MinDays: 3, MaxDays: 6},
				"NS": {MinDays: 3, MaxDays: 7},
				"PE": {MinDays: 3, MaxDays: 7},
				"NL": {MinDays: 4, MaxDays: 8},
				"MB": {MinDays: 3, MaxDays: 6},
				"SK": {MinDays: 3, MaxDays: 7},
				"AB": {MinDays: 3, MaxDays: 7},
				"BC": {MinDays: 4, MaxDays: 8},
				"YT": {MinDays: 7, MaxDays: 14},
				"NT": {MinDays: 7, MaxDays: 14},
				"NU": {MinDays: 10, MaxDays: 20},
			},
		},
		Tax: TaxSettings{
			Provinces: map[string]TaxRule{
				"AB": gstOnly(),
				"NT": gstOnly(),
				"NU": gstOnly(),
				"YT": gstOnly(),
				"BC": gstPST("7"),
				"MB": gstPST("7"),
				"SK": gstPST("6"),
				"QC": {Label: "GST + QST", Components: map[TaxComponent]decimal.Decimal{
					TaxComponentGST: rate("5"),
					TaxComponentQST: rate("9.975"),
				}},
				"ON": hst("13"),
				"NB": hst("15"),
				"NL": hst("15"),
				"NS": hst("15"),
				"PE": hst("15"),
			},
			Default: TaxRule{Label: "Estimated HST", Components: map[TaxComponent]decimal.Decimal{TaxComponentHST: rate("13")}},
		},
	}
}

// PricingSettingsFromDocument overlays a settings document onto the defaults.
// Sections left empty in the document keep their default values.
func PricingSettingsFromDocument(doc settings.Document) (PricingSettings, error) {
	out := DefaultPricingSettings()

	if c := strings.ToUpper(strings.TrimSpace(doc.Currency)); c != "" {
		out.Currency = c
	}

	if len(doc.VolumeTiers) > 0 {
		tiers := make([]VolumeTier, 0, len(doc.VolumeTiers))
		for i, tier := range doc.VolumeTiers {
			threshold, err := domain.ParseCents(tier.Threshold)
			if err != nil || threshold < 0 {
				return PricingSettings{}, fmt.Errorf("%w: volumeTiers[%d].threshold %q", ErrPricingSettingsInvalid, i, tier.Threshold)
			}
			p, err := decimal.NewFromString(strings.TrimSpace(tier.Percentage))
			if err != nil || p.Sign() < 0 || p.GreaterThan(decimal.NewFromInt(100)) {
				return PricingSettings{}, fmt.Errorf("%w: volumeTiers[%d].percentage %q", ErrPricingSettingsInvalid, i, tier.Percentage)
			}
			tiers = append(tiers, VolumeTier{Threshold: threshold, Percentage: p})
		}
		out.VolumeTiers = tiers
	}

	if err := applyShippingOverrides(&out.Shipping, doc.Shipping); err != nil {
		return PricingSettings{}, err
	}
	if err := applyTaxOverrides(&out.Tax, doc.Tax); err != nil {
		return PricingSettings{}, err
	}
	return out, nil
}

func applyShippingOverrides(dst *ShippingSettings, src settings.ShippingDocument) error {
	amounts := []struct {
		name  string
		value string
		into  *int64
	}{
		{"freeThreshold", src.FreeThreshold, &dst.FreeThreshold},
		{"flatRate", src.FlatRate, &dst.FlatRate},
		{"internationalBase", src.InternationalBase, &dst.InternationalBase},
		{"internationalSurcharge", src.InternationalSurcharge, &dst.InternationalSurcharge},
		{"heavyOrderSurcharge", src.HeavyOrderSurcharge, &dst.HeavyOrderSurcharge},
	}
	for _, amount := range amounts {
		if strings.TrimSpace(amount.value) == "" {
			continue
		}
		cents, err := domain.ParseCents(amount.value)
		if err != nil || cents < 0 {
			return fmt.Errorf("%w: shipping.%s %q", ErrPricingSettingsInvalid, amount.name, amount.value)
		}
		*amount.into = cents
	}
	if src.HeavyOrderItemThreshold > 0 {
		dst.HeavyOrderItemThreshold = src.HeavyOrderItemThreshold
	}
	if len(src.ReducedRates) > 0 {
		reduced := make(map[string]int64, len(src.ReducedRates))
		for province, value := range src.ReducedRates {
			cents, err := domain.ParseCents(value)
			if err != nil || cents < 0 {
				return fmt.Errorf("%w: shipping.reducedRates.%s %q", ErrPricingSettingsInvalid, province, value)
			}
			reduced[strings.ToUpper(strings.TrimSpace(province))] = cents
		}
		dst.ReducedRates = reduced
	}
	if w, ok, err := windowFromDocument("shipping.defaultWindow", src.DefaultWindow); err != nil {
		return err
	} else if ok {
		dst.DefaultWindow = w
	}
	if w, ok, err := windowFromDocument("shipping.internationalWindow", src.InternationalWindow); err != nil {
		return err
	} else if ok {
		dst.InternationalWindow = w
	}
	if len(src.Windows) > 0 {
		windows := make(map[string]DeliveryWindow, len(src.Windows))
		for province, doc := range src.Windows {
			w, ok, err := windowFromDocument("shipping.windows."+province, doc)
			if err != nil {
				return err
			}
			if ok {
				windows[strings.ToUpper(strings.TrimSpace(province))] = w
			}
		}
		dst.Windows = windows
	}
	return nil
}

func windowFromDocument(field string, doc *settings.WindowDocument) (DeliveryWindow, bool, error) {
	if doc == nil {
		return DeliveryWindow{}, false, nil
	}
	if doc.MinDays < 0 || doc.MaxDays < doc.MinDays {
		return DeliveryWindow{}, false, fmt.Errorf("%w: %s %d-%d", ErrPricingSettingsInvalid, field, doc.MinDays, doc.MaxDays)
	}
	return DeliveryWindow{MinDays: doc.MinDays, MaxDays: doc.MaxDays}, true, nil
}

func applyTaxOverrides(dst *TaxSettings, src settings.TaxDocument) error {
	if src.Default != nil {
		rule, err := taxRuleFromDocument("tax.default", *src.Default)
		if err != nil {
			return err
		}
		dst.Default = rule
	}
	if len(src.Provinces) == 0 {
		return nil
	}
	provinces := make(map[string]TaxRule, len(dst.Provinces)+len(src.Provinces))
	for code, rule := range dst.Provinces {
		provinces[code] = rule
	}
	codes := make([]string, 0, len(src.Provinces))
	for code := range src.Provinces {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rule, err := taxRuleFromDocument("tax.provinces."+code, src.Provinces[code])
		if err != nil {
			return err
		}
		provinces[strings.ToUpper(strings.TrimSpace(code))] = rule
	}
	dst.Provinces = provinces
	return nil
}

func taxRuleFromDocument(field string, doc settings.TaxRuleDocument) (TaxRule, error) {
	components := make(map[TaxComponent]decimal.Decimal, 2)
	for name, value := range doc.Components {
		component := TaxComponent(strings.ToLower(strings.TrimSpace(name)))
		switch component {
		case TaxComponentGST, TaxComponentPST, TaxComponentHST, TaxComponentQST:
		default:
			return TaxRule{}, fmt.Errorf("%w: %s unknown component %q", ErrPricingSettingsInvalid, field, name)
		}
		p, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || p.Sign() < 0 {
			return TaxRule{}, fmt.Errorf("%w: %s.%s %q", ErrPricingSettingsInvalid, field, name, value)
		}
		components[component] = p.Div(decimal.NewFromInt(100))
	}
	if len(components) == 0 {
		return TaxRule{}, fmt.Errorf("%w: %s has no components", ErrPricingSettingsInvalid, field)
	}
	_, hasPST := components[TaxComponentPST]
	_, hasHST := components[TaxComponentHST]
	if hasPST && hasHST {
		return TaxRule{}, fmt.Errorf("%w: %s combines pst and hst", ErrPricingSettingsInvalid, field)
	}
	label := strings.TrimSpace(doc.Label)
	if label == "" {
		parts := make([]string, 0, len(components))
		for _, component := range taxComponentOrder {
			if _, ok := components[component]; ok {
				parts = append(parts, strings.ToUpper(string(component)))
			}
		}
		label = strings.Join(parts, " + ")
	}
	return TaxRule{Label: label, Components: components}, nil
}

var taxComponentOrder = []TaxComponent{TaxComponentGST, TaxComponentPST, TaxComponentHST, TaxComponentQST}
