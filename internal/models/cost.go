package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CostCenter names one itemized line of a CostBreakdown.
type CostCenter string

const (
	CostCenterInferenceTokens  CostCenter = "inference_tokens"
	CostCenterExternalAPICalls CostCenter = "external_api_calls"
	CostCenterMeteredCalls     CostCenter = "metered_calls"
	CostCenterMeteredRows      CostCenter = "metered_rows"
)

// CostEstimate is the advisory, pre-execution cost of a tool call.
type CostEstimate struct {
	ToolName               string          `json:"tool_name"`
	ReasoningTier          string          `json:"reasoning_tier"`
	TokenBudget            int64           `json:"token_budget"`
	EstimatedSubOperations int64           `json:"estimated_sub_operations"`
	MonthlyVolume          int64           `json:"monthly_volume"`
	VolumeTier             string          `json:"volume_tier"`
	UnitCostUSD            decimal.Decimal `json:"unit_cost_usd"`
	EstimatedCostUSD       decimal.Decimal `json:"estimated_cost_usd"`
	EstimationNotes        []string        `json:"estimation_notes"`
}

// CostItem is a single cost center line: quantity × unit cost.
type CostItem struct {
	CostCenter  CostCenter      `json:"cost_center"`
	Quantity    int64           `json:"quantity"`
	UnitCostUSD decimal.Decimal `json:"unit_cost_usd"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
}

// NewCostItem prices quantity units at unitCost.
func NewCostItem(center CostCenter, quantity int64, unitCost decimal.Decimal) CostItem {
	return CostItem{
		CostCenter:  center,
		Quantity:    quantity,
		UnitCostUSD: unitCost,
		CostUSD:     unitCost.Mul(decimal.NewFromInt(quantity)),
	}
}

// CostBreakdown is the itemized actual cost of a completed request.
// TotalUSD always equals the sum of Items[].CostUSD.
type CostBreakdown struct {
	Items    []CostItem      `json:"items"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// NewCostBreakdown builds a breakdown whose total is derived from its items.
func NewCostBreakdown(items ...CostItem) CostBreakdown {
	b := CostBreakdown{Items: append([]CostItem{}, items...)}
	b.TotalUSD = b.ItemSum()
	return b
}

// ItemSum adds up the itemized components.
func (b CostBreakdown) ItemSum() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.Items {
		sum = sum.Add(item.CostUSD)
	}
	return sum
}

// Item returns the line for a cost center, if present.
func (b CostBreakdown) Item(center CostCenter) (CostItem, bool) {
	for _, item := range b.Items {
		if item.CostCenter == center {
			return item, true
		}
	}
	return CostItem{}, false
}

// Clone copies the item slice.
func (b CostBreakdown) Clone() CostBreakdown {
	return CostBreakdown{Items: append([]CostItem{}, b.Items...), TotalUSD: b.TotalUSD}
}

func (b CostBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *CostBreakdown) Scan(value any) error {
	raw, err := jsonbBytes("CostBreakdown", value)
	if err != nil || raw == nil {
		*b = CostBreakdown{}
		return err
	}
	return json.Unmarshal(raw, b)
}

// CostTracking pairs the advisory estimate with the reconciled actual cost of a request.
type CostTracking struct {
	RequestID      string         `json:"request_id"`
	EstimateBefore CostEstimate   `json:"estimate_before"`
	ActualCost     *CostBreakdown `json:"actual_cost,omitempty"`
}
