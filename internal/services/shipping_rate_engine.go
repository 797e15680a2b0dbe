package services

import (
	"strings"

	domain "github.com/maplecart/api/internal/domain"
)

const (
	shippingLabelFree          = "Free Standard Shipping"
	shippingLabelStandard      = "Standard Shipping"
	shippingLabelInternational = "International Tracked Shipping"
)

// ShippingRateEngine prices delivery from flat rate tables. It never fails: an unknown
// province falls back to the default delivery window and the uniform flat rate.
type ShippingRateEngine struct {
	cfg ShippingSettings
}

// NewShippingRateEngine copies cfg so later edits to the caller's maps do not leak in.
func NewShippingRateEngine(cfg ShippingSettings) *ShippingRateEngine {
	copied := cfg
	copied.ReducedRates = make(map[string]int64, len(cfg.ReducedRates))
	for province, cost := range cfg.ReducedRates {
		copied.ReducedRates[strings.ToUpper(strings.TrimSpace(province))] = cost
	}
	copied.Windows = make(map[string]DeliveryWindow, len(cfg.Windows))
	for province, window := range cfg.Windows {
		copied.Windows[strings.ToUpper(strings.TrimSpace(province))] = window
	}
	return &ShippingRateEngine{cfg: copied}
}

// Quote returns the shipping cost and delivery window. preDiscountSubtotal is the raw cart
// subtotal; free shipping keys off spend before any discount.
func (e *ShippingRateEngine) Quote(itemCount int, province string, preDiscountSubtotal int64, isInternational bool) domain.ShippingQuote {
	if isInternational {
		cost := e.cfg.InternationalBase + e.cfg.InternationalSurcharge
		if itemCount > e.cfg.HeavyOrderItemThreshold {
			cost += e.cfg.HeavyOrderSurcharge
		}
		return domain.ShippingQuote{
			Cost:        nonNegative(cost),
			MinDays:     e.cfg.InternationalWindow.MinDays,
			MaxDays:     e.cfg.InternationalWindow.MaxDays,
			MethodLabel: shippingLabelInternational,
		}
	}

	code := strings.ToUpper(strings.TrimSpace(province))
	window, ok := e.cfg.Windows[code]
	if !ok {
		window = e.cfg.DefaultWindow
	}

	if preDiscountSubtotal >= e.cfg.FreeThreshold {
		return domain.ShippingQuote{
			MinDays:     window.MinDays,
			MaxDays:     window.MaxDays,
			MethodLabel: shippingLabelFree,
			IsFree:      true,
		}
	}

	cost, reduced := e.cfg.ReducedRates[code]
	if !reduced {
		cost = e.cfg.FlatRate
	}
	return domain.ShippingQuote{
		Cost:        nonNegative(cost),
		MinDays:     window.MinDays,
		MaxDays:     window.MaxDays,
		MethodLabel: shippingLabelStandard,
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
