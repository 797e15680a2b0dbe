package services

import (
	"sort"

	domain "github.com/maplecart/api/internal/domain"
)

// DiscountEngine selects the automatic volume discount tier for a subtotal.
type DiscountEngine struct {
	tiers []VolumeTier
}

// NewDiscountEngine copies the tier table and orders it by descending threshold.
func NewDiscountEngine(tiers []VolumeTier) *DiscountEngine {
	sorted := make([]VolumeTier, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Threshold < 0 || tier.Percentage.Sign() <= 0 {
			continue
		}
		sorted = append(sorted, tier)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold > sorted[j].Threshold
	})
	return &DiscountEngine{tiers: sorted}
}

// ComputeVolumeDiscount returns the highest tier the subtotal reaches. Tiers are not additive.
func (e *DiscountEngine) ComputeVolumeDiscount(subtotal int64) domain.DiscountResult {
	if e == nil || subtotal <= 0 {
		return domain.DiscountResult{}
	}
	for _, tier := range e.tiers {
		if subtotal < tier.Threshold {
			continue
		}
		amount := domain.ApplyPercentage(subtotal, tier.Percentage)
		if amount > subtotal {
			amount = subtotal
		}
		return domain.DiscountResult{
			Percentage: tier.Percentage,
			Amount:     amount,
			Threshold:  tier.Threshold,
			Applied:    true,
		}
	}
	return domain.DiscountResult{}
}
