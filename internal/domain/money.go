package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is the storefront's only pricing currency.
const DefaultCurrency = "CAD"

var hundred = decimal.NewFromInt(100)

// FormatCents renders a minor-unit amount with exactly two decimals ("305.10").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseCents converts a decimal major-unit string ("299.99") into minor units, rounding half away from zero.
func ParseCents(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

// ApplyRate multiplies a minor-unit amount by a fractional rate (0.13 = 13%) and rounds to the nearest cent.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	if amount <= 0 || rate.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// ApplyPercentage is ApplyRate for whole-number percentages (15 = 15%).
func ApplyPercentage(amount int64, pct decimal.Decimal) int64 {
	return ApplyRate(amount, pct.Div(hundred))
}

// FormatMoney renders an amount with a localised currency symbol, e.g. "CA$305.10" for en-CA.
func FormatMoney(cents int64, currencyCode string, tag language.Tag) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(currencyCode)))
	if err != nil {
		return FormatCents(cents)
	}
	amount, _ := decimal.New(cents, -2).Float64()
	printer := message.NewPrinter(tag)
	return printer.Sprint(currency.Symbol(unit.Amount(amount)))
}
