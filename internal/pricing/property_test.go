package pricing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestUnitCostProperties(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("unit cost never increases with volume", prop.ForAll(
		func(a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			return !m.UnitCost(b).GreaterThan(m.UnitCost(a))
		},
		gen.Int64Range(-1_000, 1_000_000),
		gen.Int64Range(-1_000, 1_000_000),
	))

	properties.Property("unit cost is non-negative", prop.ForAll(
		func(v int64) bool {
			return !m.UnitCost(v).IsNegative()
		},
		gen.Int64(),
	))

	properties.Property("non-positive volume prices at the first tier", prop.ForAll(
		func(v int64) bool {
			return m.UnitCost(v).Equal(m.UnitCost(0))
		},
		gen.Int64Range(-1_000_000, 0),
	))

	properties.TestingRun(t)
}

func TestEstimateProperties(t *testing.T) {
	m := MustNewModel(DefaultConfig())
	tiers := []ReasoningTier{TierQuick, TierStandard, TierDeep, "unknown"}
	tools := []string{"search_entities", "get_entity", "get_entity_details", "list_related_entities", "other"}

	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("estimate is positive and has notes", prop.ForAll(
		func(toolIdx, tierIdx, queryLength int, volume int64) bool {
			est := m.Estimate(tools[toolIdx], queryLength, tiers[tierIdx], volume)
			return est.EstimatedCostUSD.IsPositive() &&
				est.EstimatedSubOperations >= 1 &&
				est.TokenBudget >= 2_000 &&
				len(est.EstimationNotes) > 0
		},
		gen.IntRange(0, len(tools)-1),
		gen.IntRange(0, len(tiers)-1),
		gen.IntRange(-100, 100_000),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
