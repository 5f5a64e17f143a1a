// Package pricing holds the pure cost model: pre-execution estimates and
// post-execution cost breakdowns. Nothing here performs I/O; the caller supplies
// the monthly volume it looked up for the request.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tool_gateway/internal/models"
)

const tokensPerThousand = 1000

// Config holds every pricing knob.
type Config struct {
	TokenBudgets              map[ReasoningTier]int64
	DeepSubOperationBonus     int64
	ToolSubOperationBonus     map[string]int64
	VolumeTiers               []VolumeTier
	InferencePricePer1KTokens decimal.Decimal
	MeteredCallUnitCost       decimal.Decimal
	MeteredRowUnitCost        decimal.Decimal
}

// DefaultConfig returns the built-in price list.
func DefaultConfig() Config {
	return Config{
		TokenBudgets: map[ReasoningTier]int64{
			TierQuick:    2_000,
			TierStandard: 8_000,
			TierDeep:     32_000,
		},
		DeepSubOperationBonus: 3,
		ToolSubOperationBonus: map[string]int64{
			"get_entity_details":    6,
			"list_related_entities": 3,
		},
		VolumeTiers:               DefaultVolumeTiers(),
		InferencePricePer1KTokens: decimal.RequireFromString("0.003"),
		MeteredCallUnitCost:       decimal.RequireFromString("0.0001"),
		MeteredRowUnitCost:        decimal.RequireFromString("0.000001"),
	}
}

// Validate rejects configurations that could yield negative or undefined prices.
func (c Config) Validate() error {
	for _, tier := range []ReasoningTier{TierQuick, TierStandard, TierDeep} {
		if c.TokenBudgets[tier] <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTokenBudgets, tier)
		}
	}
	if err := ValidateVolumeTiers(c.VolumeTiers); err != nil {
		return err
	}
	for name, price := range map[string]decimal.Decimal{
		"inference_price_per_1k_tokens": c.InferencePricePer1KTokens,
		"metered_call_unit_cost":        c.MeteredCallUnitCost,
		"metered_row_unit_cost":         c.MeteredRowUnitCost,
	} {
		if price.IsNegative() {
			return fmt.Errorf("%w: %s", ErrNegativeUnitCost, name)
		}
	}
	return nil
}

// Model prices tool calls.
type Model struct {
	cfg Config
}

// NewModel validates cfg and returns a Model.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tiers := append([]VolumeTier(nil), cfg.VolumeTiers...)
	cfg.VolumeTiers = tiers
	return &Model{cfg: cfg}, nil
}

// MustNewModel is NewModel for configurations known to be valid.
func MustNewModel(cfg Config) *Model {
	m, err := NewModel(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// VolumeTier returns the discount tier for a monthly call volume.
func (m *Model) VolumeTier(monthlyVolume int64) VolumeTier {
	return tierFor(m.cfg.VolumeTiers, monthlyVolume)
}

// UnitCost is the marginal cost of one externally billed unit at monthlyVolume.
// It is never negative and is defined for every volume, including 0.
func (m *Model) UnitCost(monthlyVolume int64) decimal.Decimal {
	return m.VolumeTier(monthlyVolume).UnitCostUSD
}

// Estimate computes a best-effort advisory cost. It never fails: unknown tools get
// no adjustment and unknown tiers are priced as standard.
func (m *Model) Estimate(toolName string, queryLength int, tier ReasoningTier, monthlyVolume int64) models.CostEstimate {
	var notes []string

	if !tier.Valid() {
		notes = append(notes, fmt.Sprintf("unknown reasoning tier %q priced as %s", tier, TierStandard))
		tier = TierStandard
	}
	if queryLength < 0 {
		queryLength = 0
	}
	if monthlyVolume < 0 {
		monthlyVolume = 0
	}

	promptTokens := int64((queryLength + 3) / 4)
	tokenBudget := m.cfg.TokenBudgets[tier] + promptTokens
	notes = append(notes, fmt.Sprintf("%s tier token budget %d (+%d prompt tokens from query length)",
		tier, m.cfg.TokenBudgets[tier], promptTokens))

	subOps := int64(1)
	if tier == TierDeep && m.cfg.DeepSubOperationBonus > 0 {
		subOps += m.cfg.DeepSubOperationBonus
		notes = append(notes, fmt.Sprintf("deep reasoning adds %d registry sub-operations", m.cfg.DeepSubOperationBonus))
	}
	if bonus, ok := m.cfg.ToolSubOperationBonus[toolName]; ok {
		if bonus > 0 {
			subOps += bonus
			notes = append(notes, fmt.Sprintf("%s fans out into related lookups: +%d sub-operations", toolName, bonus))
		}
	} else if !m.isKnownLookup(toolName) {
		notes = append(notes, fmt.Sprintf("no per-tool adjustment for %q", toolName))
	}

	volumeTier := m.VolumeTier(monthlyVolume)
	notes = append(notes, fmt.Sprintf("%s volume tier at %d monthly calls: $%s per sub-operation",
		volumeTier.Name, monthlyVolume, volumeTier.UnitCostUSD.String()))

	tokenCost := m.cfg.InferencePricePer1KTokens.Mul(decimal.NewFromInt(tokenBudget)).Div(decimal.NewFromInt(tokensPerThousand))
	subOpCost := volumeTier.UnitCostUSD.Mul(decimal.NewFromInt(subOps))

	return models.CostEstimate{
		ToolName:               toolName,
		ReasoningTier:          string(tier),
		TokenBudget:            tokenBudget,
		EstimatedSubOperations: subOps,
		MonthlyVolume:          monthlyVolume,
		VolumeTier:             volumeTier.Name,
		UnitCostUSD:            volumeTier.UnitCostUSD,
		EstimatedCostUSD:       tokenCost.Add(subOpCost),
		EstimationNotes:        notes,
	}
}

// isKnownLookup reports tools that are plain lookups and intentionally carry no bonus.
func (m *Model) isKnownLookup(toolName string) bool {
	switch toolName {
	case "search_entities", "get_entity":
		return true
	}
	return false
}

// Breakdown prices actual consumption. externalUnitCost is the volume-tier unit cost
// that was in force when the request was estimated.
func (m *Model) Breakdown(usage models.Usage, calls models.MeteredCalls, externalUnitCost decimal.Decimal) models.CostBreakdown {
	if externalUnitCost.IsNegative() {
		externalUnitCost = decimal.Zero
	}
	perToken := m.cfg.InferencePricePer1KTokens.Div(decimal.NewFromInt(tokensPerThousand))

	return models.NewCostBreakdown(
		models.NewCostItem(models.CostCenterInferenceTokens, nonNegative(usage.InferenceTokens), perToken),
		models.NewCostItem(models.CostCenterExternalAPICalls, nonNegative(usage.ExternalAPICalls), externalUnitCost),
		models.NewCostItem(models.CostCenterMeteredCalls, int64(len(calls)), m.cfg.MeteredCallUnitCost),
		models.NewCostItem(models.CostCenterMeteredRows, nonNegative(calls.TotalSize()), m.cfg.MeteredRowUnitCost),
	)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
