package services

import (
	"strings"

	domain "github.com/maplecart/api/internal/domain"
)

// OrderTotalComposer runs the pricing pipeline. It holds no mutable state and is safe for
// concurrent use; identical inputs always yield identical totals.
type OrderTotalComposer struct {
	currency string
	discount *DiscountEngine
	shipping *ShippingRateEngine
	tax      *TaxEngine
}

// NewOrderTotalComposer builds the engines from a settings snapshot.
func NewOrderTotalComposer(cfg PricingSettings) *OrderTotalComposer {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	return &OrderTotalComposer{
		currency: currency,
		discount: NewDiscountEngine(cfg.VolumeTiers),
		shipping: NewShippingRateEngine(cfg.Shipping),
		tax:      NewTaxEngine(cfg.Tax),
	}
}

// ComputeTotal prices cart for dest. An applied promo replaces the volume discount entirely.
// Shipping keys off the raw subtotal while tax is charged on the discounted subtotal plus
// shipping.
func (c *OrderTotalComposer) ComputeTotal(cart domain.CartSnapshot, dest domain.Destination, promo domain.PromoSession) domain.OrderTotal {
	subtotal := cart.Subtotal()

	total := domain.OrderTotal{
		Currency:       c.currency,
		Subtotal:       subtotal,
		DiscountSource: domain.DiscountSourceNone,
	}
	if cur := strings.ToUpper(strings.TrimSpace(cart.Currency)); cur != "" {
		total.Currency = cur
	}

	if promo.IsApplied() {
		amount := promo.DiscountAmount
		if amount > subtotal {
			amount = subtotal
		}
		if amount < 0 {
			amount = 0
		}
		total.DiscountSource = domain.DiscountSourcePromo
		total.DiscountAmount = amount
		total.Promo = &domain.PromoApplication{
			Code:   promo.Code,
			Amount: amount,
			State:  promo.CurrentState(),
		}
	} else {
		total.Volume = c.discount.ComputeVolumeDiscount(subtotal)
		if total.Volume.Applied {
			total.DiscountSource = domain.DiscountSourceVolume
			total.DiscountAmount = total.Volume.Amount
		}
	}

	total.DiscountedSubtotal = subtotal - total.DiscountAmount
	total.Shipping = c.shipping.Quote(cart.ItemCount(), dest.NormalizedProvince(), subtotal, dest.IsInternational)
	total.Taxable = total.DiscountedSubtotal + total.Shipping.Cost

	province := dest.NormalizedProvince()
	if dest.IsInternational {
		province = ""
	}
	total.Tax = c.tax.ComputeTax(total.Taxable, province)
	total.GrandTotal = total.Taxable + total.Tax.Total
	return total
}

// WithoutPromo recomputes the total as though no promo had been applied.
func (c *OrderTotalComposer) WithoutPromo(cart domain.CartSnapshot, dest domain.Destination) domain.OrderTotal {
	return c.ComputeTotal(cart, dest, domain.PromoSession{})
}
