package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewCostBreakdown_TotalEqualsItemSum(t *testing.T) {
	tests := []struct {
		name  string
		items []CostItem
		want  string
	}{
		{
			name: "no items",
			want: "0",
		},
		{
			name: "tokens and metered calls",
			items: []CostItem{
				NewCostItem(CostCenterInferenceTokens, 1500, decimal.RequireFromString("0.000003")),
				NewCostItem(CostCenterMeteredCalls, 3, decimal.RequireFromString("0.0001")),
			},
			want: "0.0048",
		},
		{
			name: "values that drift in float64",
			items: []CostItem{
				NewCostItem(CostCenterExternalAPICalls, 1, decimal.RequireFromString("0.1")),
				NewCostItem(CostCenterMeteredCalls, 1, decimal.RequireFromString("0.2")),
			},
			want: "0.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewCostBreakdown(tt.items...)
			if !b.TotalUSD.Equal(b.ItemSum()) {
				t.Errorf("TotalUSD = %s, ItemSum = %s", b.TotalUSD, b.ItemSum())
			}
			if !b.TotalUSD.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("TotalUSD = %s, want %s", b.TotalUSD, tt.want)
			}
		})
	}
}

func TestCostBreakdown_Item(t *testing.T) {
	b := NewCostBreakdown(NewCostItem(CostCenterMeteredRows, 40, decimal.RequireFromString("0.000001")))

	item, ok := b.Item(CostCenterMeteredRows)
	if !ok {
		t.Fatal("Item(metered_rows) not found")
	}
	if !item.CostUSD.Equal(decimal.RequireFromString("0.00004")) {
		t.Errorf("CostUSD = %s, want 0.00004", item.CostUSD)
	}
	if _, ok := b.Item(CostCenterInferenceTokens); ok {
		t.Error("Item(inference_tokens) found, want missing")
	}
}

func TestCostBreakdown_ScanFromJSONB(t *testing.T) {
	original := NewCostBreakdown(NewCostItem(CostCenterMeteredCalls, 2, decimal.RequireFromString("0.0001")))
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var scanned CostBreakdown
	if err := scanned.Scan(raw); err != nil {
		t.Fatalf("Scan error = %v", err)
	}
	if !scanned.TotalUSD.Equal(original.TotalUSD) {
		t.Errorf("TotalUSD = %s, want %s", scanned.TotalUSD, original.TotalUSD)
	}
	if len(scanned.Items) != 1 || scanned.Items[0].Quantity != 2 {
		t.Errorf("Items = %+v", scanned.Items)
	}
}
