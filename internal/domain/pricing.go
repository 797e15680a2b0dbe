package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineKind distinguishes regular product lines from fixed-price bundles.
type LineKind string

const (
	// LineKindProduct prices a single product by unit.
	LineKindProduct LineKind = "product"
	// LineKindBundle prices a multi-product package as one unit; the bundle price already carries its internal discount.
	LineKindBundle LineKind = "bundle"
)

// CartLine is one entry of a cart snapshot. Amounts are in minor units.
type CartLine struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Kind      LineKind
	UnitPrice int64
	Quantity  int
}

// LineTotal returns unit price × quantity, treating negative inputs as zero.
func (l CartLine) LineTotal() int64 {
	if l.UnitPrice <= 0 || l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// CartSnapshot is an immutable copy of the cart read for a single computation.
type CartSnapshot struct {
	CartID   string
	UserID   string
	Currency string
	Version  int64
	Lines    []CartLine
}

// Subtotal sums the line totals of the snapshot.
func (c CartSnapshot) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.LineTotal()
	}
	return total
}

// ItemCount sums quantities across lines. A bundle counts once per unit.
func (c CartSnapshot) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		if line.Quantity > 0 {
			count += line.Quantity
		}
	}
	return count
}

// Destination describes where an order ships.
type Destination struct {
	Province        string
	Country         string
	IsInternational bool
}

// NormalizedProvince returns the upper-cased province code or "" when absent.
func (d Destination) NormalizedProvince() string {
	return strings.ToUpper(strings.TrimSpace(d.Province))
}

// DiscountSource identifies which discount contributed to a total.
type DiscountSource string

// Discount sources. A total carries at most one.
const (
	DiscountSourceNone   DiscountSource = "none"
	DiscountSourceVolume DiscountSource = "volume"
	DiscountSourcePromo  DiscountSource = "promo"
)

// DiscountResult is the outcome of volume tier selection. When Applied is false every other field is zero.
type DiscountResult struct {
	Percentage decimal.Decimal
	Amount     int64
	Threshold  int64
	Applied    bool
}

// PromoApplication records the promo code contribution to a total.
type PromoApplication struct {
	Code   string
	Amount int64
	State  PromoState
}

// ShippingQuote captures the cost and delivery window for a destination.
type ShippingQuote struct {
	Cost        int64
	MinDays     int
	MaxDays     int
	MethodLabel string
	IsFree      bool
}

// TaxBreakdown lists the jurisdictional tax components. Components absent from a province's composition are zero.
type TaxBreakdown struct {
	Province  string
	GST       int64
	PST       int64
	HST       int64
	QST       int64
	Total     int64
	Rate      decimal.Decimal
	Label     string
	Estimated bool
}

// OrderTotal is the full pricing result for a cart and destination.
type OrderTotal struct {
	Currency       string
	Subtotal       int64
	DiscountSource DiscountSource
	Volume         DiscountResult
	Promo          *PromoApplication
	// DiscountAmount is the volume or promo amount actually taken off Subtotal.
	DiscountAmount     int64
	DiscountedSubtotal int64
	Shipping           ShippingQuote
	// Taxable is DiscountedSubtotal plus shipping.
	Taxable    int64
	Tax        TaxBreakdown
	GrandTotal int64
}
