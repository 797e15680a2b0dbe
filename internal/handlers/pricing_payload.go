package handlers

import (
	"strings"

	domain "github.com/maplecart/api/internal/domain"
)

// Amounts are minor units; the *_display fields are the same values with two decimals.
type orderTotalPayload struct {
	Currency           string               `json:"currency"`
	Subtotal           int64                `json:"subtotal"`
	Discount           discountPayload      `json:"discount"`
	DiscountedSubtotal int64                `json:"discounted_subtotal"`
	Shipping           shippingQuotePayload `json:"shipping"`
	Taxable            int64                `json:"taxable"`
	Tax                taxPayload           `json:"tax"`
	GrandTotal         int64                `json:"grand_total"`
	GrandTotalDisplay  string               `json:"grand_total_display"`
}

type discountPayload struct {
	Source     string `json:"source"`
	Amount     int64  `json:"amount"`
	Percentage string `json:"percentage,omitempty"`
	Threshold  int64  `json:"threshold,omitempty"`
	PromoCode  string `json:"promo_code,omitempty"`
}

type shippingQuotePayload struct {
	Cost    int64  `json:"cost"`
	MinDays int    `json:"min_days"`
	MaxDays int    `json:"max_days"`
	Label   string `json:"label"`
	Free    bool   `json:"free"`
}

type taxPayload struct {
	Province  string `json:"province,omitempty"`
	GST       int64  `json:"gst"`
	PST       int64  `json:"pst"`
	HST       int64  `json:"hst"`
	QST       int64  `json:"qst"`
	Total     int64  `json:"total"`
	Rate      string `json:"rate"`
	Label     string `json:"label"`
	Estimated bool   `json:"estimated"`
}

type destinationPayload struct {
	Province      string `json:"province,omitempty"`
	Country       string `json:"country,omitempty"`
	International bool   `json:"international"`
}

type promotionPayload struct {
	Code           string `json:"code"`
	State          string `json:"state"`
	DiscountAmount int64  `json:"discount_amount"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

func buildOrderTotalPayload(total domain.OrderTotal) orderTotalPayload {
	payload := orderTotalPayload{
		Currency: total.Currency,
		Subtotal: total.Subtotal,
		Discount: discountPayload{
			Source: string(total.DiscountSource),
			Amount: total.DiscountAmount,
		},
		DiscountedSubtotal: total.DiscountedSubtotal,
		Shipping: shippingQuotePayload{
			Cost:    total.Shipping.Cost,
			MinDays: total.Shipping.MinDays,
			MaxDays: total.Shipping.MaxDays,
			Label:   total.Shipping.MethodLabel,
			Free:    total.Shipping.IsFree,
		},
		Taxable: total.Taxable,
		Tax: taxPayload{
			Province:  total.Tax.Province,
			GST:       total.Tax.GST,
			PST:       total.Tax.PST,
			HST:       total.Tax.HST,
			QST:       total.Tax.QST,
			Total:     total.Tax.Total,
			Rate:      total.Tax.Rate.StringFixed(5),
			Label:     total.Tax.Label,
			Estimated: total.Tax.Estimated,
		},
		GrandTotal:        total.GrandTotal,
		GrandTotalDisplay: domain.FormatCents(total.GrandTotal),
	}
	if payload.Discount.Source == "" {
		payload.Discount.Source = string(domain.DiscountSourceNone)
	}
	switch total.DiscountSource {
	case domain.DiscountSourceVolume:
		payload.Discount.Percentage = total.Volume.Percentage.StringFixed(2)
		payload.Discount.Threshold = total.Volume.Threshold
	case domain.DiscountSourcePromo:
		if total.Promo != nil {
			payload.Discount.PromoCode = total.Promo.Code
		}
	}
	return payload
}

func buildDestinationPayload(dest domain.Destination) destinationPayload {
	return destinationPayload{
		Province:      dest.NormalizedProvince(),
		Country:       strings.ToUpper(strings.TrimSpace(dest.Country)),
		International: dest.IsInternational,
	}
}

func buildPromotionPayload(session domain.PromoSession) *promotionPayload {
	if strings.TrimSpace(session.Code) == "" && session.ErrorKind == domain.PromoErrorNone {
		return nil
	}
	return &promotionPayload{
		Code:           session.Code,
		State:          string(session.CurrentState()),
		DiscountAmount: session.DiscountAmount,
		ErrorKind:      string(session.ErrorKind),
	}
}

// destinationRequest is the optional destination override accepted by cart and order endpoints.
type destinationRequest struct {
	Province      string `json:"province"`
	Country       string `json:"country"`
	International *bool  `json:"international"`
}

func (d *destinationRequest) toDomain() *domain.Destination {
	if d == nil {
		return nil
	}
	return destinationFromValues(d.Province, d.Country, d.International)
}

// destinationFromValues returns nil when neither province nor country is given. Without an
// explicit flag, any country other than Canada is international.
func destinationFromValues(province, country string, international *bool) *domain.Destination {
	province = strings.ToUpper(strings.TrimSpace(province))
	country = strings.ToUpper(strings.TrimSpace(country))
	if province == "" && country == "" && international == nil {
		return nil
	}
	if country == "" && province != "" {
		country = "CA"
	}
	dest := &domain.Destination{Province: province, Country: country}
	if international != nil {
		dest.IsInternational = *international
	} else {
		dest.IsInternational = country != "" && country != "CA"
	}
	if dest.IsInternational {
		dest.Province = ""
	}
	return dest
}
