package pricing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML layout. Money values are strings so they keep
// their exact decimal representation.
type fileConfig struct {
	InferencePricePer1KTokens string           `yaml:"inference_price_per_1k_tokens"`
	MeteredCallUnitCost       string           `yaml:"metered_call_unit_cost"`
	MeteredRowUnitCost        string           `yaml:"metered_row_unit_cost"`
	DeepSubOperationBonus     *int64           `yaml:"deep_sub_operation_bonus"`
	TokenBudgets              map[string]int64 `yaml:"token_budgets"`
	ToolSubOperationBonus     map[string]int64 `yaml:"tool_sub_operation_bonus"`
	VolumeTiers               []fileVolumeTier `yaml:"volume_tiers"`
}

type fileVolumeTier struct {
	Name            string `yaml:"name"`
	MinMonthlyCalls int64  `yaml:"min_monthly_calls"`
	UnitCostUSD     string `yaml:"unit_cost_usd"`
}

// LoadConfigFile reads a YAML pricing file and overlays it on DefaultConfig.
// Fields absent from the file keep their defaults. The result is validated.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read pricing file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML pricing data; see LoadConfigFile.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse pricing file: %w", err)
	}

	cfg := DefaultConfig()

	prices := []struct {
		raw    string
		target *decimal.Decimal
	}{
		{fc.InferencePricePer1KTokens, &cfg.InferencePricePer1KTokens},
		{fc.MeteredCallUnitCost, &cfg.MeteredCallUnitCost},
		{fc.MeteredRowUnitCost, &cfg.MeteredRowUnitCost},
	}
	for _, p := range prices {
		if p.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(p.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse pricing file: invalid price %q: %w", p.raw, err)
		}
		*p.target = v
	}

	if fc.DeepSubOperationBonus != nil {
		cfg.DeepSubOperationBonus = *fc.DeepSubOperationBonus
	}
	for name, budget := range fc.TokenBudgets {
		tier := ReasoningTier(name)
		if !tier.Valid() {
			return Config{}, fmt.Errorf("parse pricing file: unknown reasoning tier %q", name)
		}
		cfg.TokenBudgets[tier] = budget
	}
	for tool, bonus := range fc.ToolSubOperationBonus {
		cfg.ToolSubOperationBonus[tool] = bonus
	}

	if len(fc.VolumeTiers) > 0 {
		tiers := make([]VolumeTier, 0, len(fc.VolumeTiers))
		for _, ft := range fc.VolumeTiers {
			unit, err := decimal.NewFromString(ft.UnitCostUSD)
			if err != nil {
				return Config{}, fmt.Errorf("parse pricing file: tier %q: invalid unit cost %q: %w", ft.Name, ft.UnitCostUSD, err)
			}
			tiers = append(tiers, VolumeTier{Name: ft.Name, MinMonthlyCalls: ft.MinMonthlyCalls, UnitCostUSD: unit})
		}
		cfg.VolumeTiers = tiers
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadModel builds a model from path, or from DefaultConfig when path is empty.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return NewModel(DefaultConfig())
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return NewModel(cfg)
}
