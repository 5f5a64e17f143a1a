package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ReasoningTier selects a coarse effort/cost budget for a call.
type ReasoningTier string

const (
	TierQuick    ReasoningTier = "quick"
	TierStandard ReasoningTier = "standard"
	TierDeep     ReasoningTier = "deep"
)

// ParseReasoningTier maps user input to a tier. An empty string selects standard.
// Unknown values also select standard and report ok=false so the caller can note it.
func ParseReasoningTier(s string) (ReasoningTier, bool) {
	switch ReasoningTier(strings.ToLower(strings.TrimSpace(s))) {
	case "", TierStandard:
		return TierStandard, true
	case TierQuick:
		return TierQuick, true
	case TierDeep:
		return TierDeep, true
	default:
		return TierStandard, false
	}
}

// Valid reports whether t is one of the known tiers.
func (t ReasoningTier) Valid() bool {
	switch t {
	case TierQuick, TierStandard, TierDeep:
		return true
	}
	return false
}

// VolumeTier is one step of the volume discount curve. A tier applies to callers
// whose monthly call volume is at least MinMonthlyCalls.
type VolumeTier struct {
	Name            string
	MinMonthlyCalls int64
	UnitCostUSD     decimal.Decimal
}

var (
	ErrNoVolumeTiers       = errors.New("pricing: at least one volume tier is required")
	ErrFirstTierNotZero    = errors.New("pricing: first volume tier must start at 0 monthly calls")
	ErrTiersNotAscending   = errors.New("pricing: volume tiers must have strictly ascending thresholds")
	ErrTierCostIncreasing  = errors.New("pricing: unit cost must not increase with volume")
	ErrNegativeUnitCost    = errors.New("pricing: unit cost must not be negative")
	ErrInvalidTokenBudgets = errors.New("pricing: every reasoning tier needs a positive token budget")
)

// DefaultVolumeTiers is the standard economies-of-scale schedule.
func DefaultVolumeTiers() []VolumeTier {
	return []VolumeTier{
		{Name: "starter", MinMonthlyCalls: 0, UnitCostUSD: decimal.RequireFromString("0.0020")},
		{Name: "growth", MinMonthlyCalls: 1_000, UnitCostUSD: decimal.RequireFromString("0.0015")},
		{Name: "scale", MinMonthlyCalls: 10_000, UnitCostUSD: decimal.RequireFromString("0.0010")},
		{Name: "enterprise", MinMonthlyCalls: 100_000, UnitCostUSD: decimal.RequireFromString("0.0005")},
	}
}

// ValidateVolumeTiers checks that tiers form a non-increasing, non-negative step function
// defined from volume 0 upward.
func ValidateVolumeTiers(tiers []VolumeTier) error {
	if len(tiers) == 0 {
		return ErrNoVolumeTiers
	}
	if tiers[0].MinMonthlyCalls != 0 {
		return ErrFirstTierNotZero
	}
	for i, tier := range tiers {
		if tier.UnitCostUSD.IsNegative() {
			return fmt.Errorf("%w: tier %q", ErrNegativeUnitCost, tier.Name)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if tier.MinMonthlyCalls <= prev.MinMonthlyCalls {
			return fmt.Errorf("%w: tier %q", ErrTiersNotAscending, tier.Name)
		}
		if tier.UnitCostUSD.GreaterThan(prev.UnitCostUSD) {
			return fmt.Errorf("%w: tier %q", ErrTierCostIncreasing, tier.Name)
		}
	}
	return nil
}

// tierFor returns the tier whose threshold is the largest one not above volume.
// Negative volume is treated as 0.
func tierFor(tiers []VolumeTier, monthlyVolume int64) VolumeTier {
	if monthlyVolume < 0 {
		monthlyVolume = 0
	}
	selected := tiers[0]
	for _, tier := range tiers[1:] {
		if monthlyVolume < tier.MinMonthlyCalls {
			break
		}
		selected = tier
	}
	return selected
}
