package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tool_gateway/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseReasoningTier(t *testing.T) {
	tests := []struct {
		in     string
		want   ReasoningTier
		wantOK bool
	}{
		{"", TierStandard, true},
		{"quick", TierQuick, true},
		{"STANDARD", TierStandard, true},
		{" deep ", TierDeep, true},
		{"exhaustive", TierStandard, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseReasoningTier(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestUnitCost_Tiers(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	tests := []struct {
		volume int64
		tier   string
		unit   string
	}{
		{-50, "starter", "0.0020"},
		{0, "starter", "0.0020"},
		{999, "starter", "0.0020"},
		{1_000, "growth", "0.0015"},
		{9_999, "growth", "0.0015"},
		{10_000, "scale", "0.0010"},
		{100_000, "enterprise", "0.0005"},
		{50_000_000, "enterprise", "0.0005"},
	}
	for _, tt := range tests {
		tier := m.VolumeTier(tt.volume)
		assert.Equal(t, tt.tier, tier.Name, "volume %d", tt.volume)
		assert.True(t, d(tt.unit).Equal(m.UnitCost(tt.volume)), "volume %d: got %s", tt.volume, m.UnitCost(tt.volume))
	}
}

func TestEstimate_DeepDetailsAtZeroVolume(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	est := m.Estimate("get_entity_details", 0, TierDeep, 0)

	assert.Equal(t, int64(32_000), est.TokenBudget)
	assert.Equal(t, int64(10), est.EstimatedSubOperations)
	assert.Equal(t, "starter", est.VolumeTier)
	assert.True(t, d("0.0020").Equal(est.UnitCostUSD))
	assert.True(t, d("0.116").Equal(est.EstimatedCostUSD), "got %s", est.EstimatedCostUSD)
	assert.NotEmpty(t, est.EstimationNotes)
}

func TestEstimate_QueryLengthAddsPromptTokens(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	tests := []struct {
		queryLength int
		wantBudget  int64
	}{
		{0, 2_000},
		{1, 2_001},
		{4, 2_001},
		{5, 2_002},
		{-10, 2_000},
	}
	for _, tt := range tests {
		est := m.Estimate("search_entities", tt.queryLength, TierQuick, 0)
		assert.Equal(t, tt.wantBudget, est.TokenBudget, "query length %d", tt.queryLength)
	}
}

func TestEstimate_UnknownToolAndTier(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	est := m.Estimate("not_a_tool", 0, ReasoningTier("bogus"), 5_000)

	assert.Equal(t, "standard", est.ReasoningTier)
	assert.Equal(t, int64(8_000), est.TokenBudget)
	assert.Equal(t, int64(1), est.EstimatedSubOperations)
	assert.Equal(t, "growth", est.VolumeTier)
	assert.Contains(t, est.EstimationNotes[0], "bogus")

	var sawTool bool
	for _, note := range est.EstimationNotes {
		if note == `no per-tool adjustment for "not_a_tool"` {
			sawTool = true
		}
	}
	assert.True(t, sawTool, "notes: %v", est.EstimationNotes)
}

func TestEstimate_LookupsHaveNoBonus(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	for _, tool := range []string{"search_entities", "get_entity"} {
		est := m.Estimate(tool, 0, TierStandard, 0)
		assert.Equal(t, int64(1), est.EstimatedSubOperations, tool)
	}
	assert.Equal(t, int64(4), m.Estimate("list_related_entities", 0, TierStandard, 0).EstimatedSubOperations)
}

func TestBreakdown(t *testing.T) {
	m := MustNewModel(DefaultConfig())
	now := time.Now()
	calls := models.MeteredCalls{
		{Kind: "registry.query", DurationMS: 3, Size: 10, RecordedAt: now},
		{Kind: "registry.query", DurationMS: 4, Size: 15, RecordedAt: now},
	}

	b := m.Breakdown(models.Usage{InferenceTokens: 1_500, ExternalAPICalls: 2}, calls, d("0.0015"))

	require.Len(t, b.Items, 4)
	tokens, _ := b.Item(models.CostCenterInferenceTokens)
	assert.True(t, d("0.0045").Equal(tokens.CostUSD), "tokens %s", tokens.CostUSD)
	api, _ := b.Item(models.CostCenterExternalAPICalls)
	assert.True(t, d("0.003").Equal(api.CostUSD))
	metered, _ := b.Item(models.CostCenterMeteredCalls)
	assert.Equal(t, int64(2), metered.Quantity)
	assert.True(t, d("0.0002").Equal(metered.CostUSD))
	rows, _ := b.Item(models.CostCenterMeteredRows)
	assert.Equal(t, int64(25), rows.Quantity)
	assert.True(t, d("0.000025").Equal(rows.CostUSD))

	assert.True(t, d("0.007725").Equal(b.TotalUSD), "total %s", b.TotalUSD)
	assert.True(t, b.ItemSum().Equal(b.TotalUSD))
}

func TestBreakdown_ZeroUsage(t *testing.T) {
	m := MustNewModel(DefaultConfig())

	b := m.Breakdown(models.Usage{}, nil, d("-1"))

	assert.True(t, b.TotalUSD.IsZero())
	for _, item := range b.Items {
		assert.True(t, item.CostUSD.IsZero(), item.CostCenter)
	}
}

func TestValidateVolumeTiers(t *testing.T) {
	tests := []struct {
		name  string
		tiers []VolumeTier
		want  error
	}{
		{"default", DefaultVolumeTiers(), nil},
		{"empty", nil, ErrNoVolumeTiers},
		{"first tier above zero", []VolumeTier{{Name: "a", MinMonthlyCalls: 10, UnitCostUSD: d("1")}}, ErrFirstTierNotZero},
		{"not ascending", []VolumeTier{
			{Name: "a", MinMonthlyCalls: 0, UnitCostUSD: d("1")},
			{Name: "b", MinMonthlyCalls: 0, UnitCostUSD: d("1")},
		}, ErrTiersNotAscending},
		{"cost increases", []VolumeTier{
			{Name: "a", MinMonthlyCalls: 0, UnitCostUSD: d("1")},
			{Name: "b", MinMonthlyCalls: 5, UnitCostUSD: d("2")},
		}, ErrTierCostIncreasing},
		{"negative", []VolumeTier{{Name: "a", MinMonthlyCalls: 0, UnitCostUSD: d("-0.1")}}, ErrNegativeUnitCost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVolumeTiers(tt.tiers)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewModel_RejectsMissingBudget(t *testing.T) {
	cfg := DefaultConfig()
	delete(cfg.TokenBudgets, TierDeep)

	_, err := NewModel(cfg)
	assert.ErrorIs(t, err, ErrInvalidTokenBudgets)
}
