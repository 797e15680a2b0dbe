package services

import (
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/maplecart/api/internal/domain"
)

// TaxEngine computes Canadian sales tax by province.
type TaxEngine struct {
	provinces map[string]TaxRule
	fallback  TaxRule
}

// NewTaxEngine indexes the province rules by upper-cased code.
func NewTaxEngine(cfg TaxSettings) *TaxEngine {
	provinces := make(map[string]TaxRule, len(cfg.Provinces))
	for code, rule := range cfg.Provinces {
		provinces[strings.ToUpper(strings.TrimSpace(code))] = cloneTaxRule(rule)
	}
	return &TaxEngine{provinces: provinces, fallback: cloneTaxRule(cfg.Default)}
}

// ComputeTax applies the province composition to taxable. An empty or unknown province
// uses the estimated default composition instead of charging zero.
// Each component is rounded to the cent on its own and Total is their sum.
func (e *TaxEngine) ComputeTax(taxable int64, province string) domain.TaxBreakdown {
	code := strings.ToUpper(strings.TrimSpace(province))
	rule, ok := e.provinces[code]
	estimated := false
	if !ok {
		rule = e.fallback
		estimated = true
	}

	out := domain.TaxBreakdown{
		Province:  code,
		Label:     rule.Label,
		Estimated: estimated,
		Rate:      decimal.Zero,
	}
	base := nonNegative(taxable)
	for _, component := range taxComponentOrder {
		componentRate, present := rule.Components[component]
		if !present {
			continue
		}
		amount := domain.ApplyRate(base, componentRate)
		switch component {
		case TaxComponentGST:
			out.GST = amount
		case TaxComponentPST:
			out.PST = amount
		case TaxComponentHST:
			out.HST = amount
		case TaxComponentQST:
			out.QST = amount
		}
		out.Rate = out.Rate.Add(componentRate)
		out.Total += amount
	}
	return out
}

func cloneTaxRule(rule TaxRule) TaxRule {
	components := make(map[TaxComponent]decimal.Decimal, len(rule.Components))
	for k, v := range rule.Components {
		components[k] = v
	}
	return TaxRule{Label: rule.Label, Components: components}
}
