package pricing

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"media-orchestrator/internal/domain"
)

type rulesFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	Resource           string `yaml:"resource"`
	Provider           string `yaml:"provider"`
	Model              string `yaml:"model"`
	Unit               string `yaml:"unit"`
	PricePerUnit       int64  `yaml:"price_per_unit"`
	InputPricePerUnit  int64  `yaml:"input_price_per_unit"`
	OutputPricePerUnit int64  `yaml:"output_price_per_unit"`
	MinCharge          int64  `yaml:"min_charge"`
}

// LoadRulesFile reads default pricing rules from a YAML seed file. Rules are
// admin-managed reference data; the file only provides the initial set.
func LoadRulesFile(path string) ([]domain.PricingRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing rules: %w", err)
	}
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pricing rules: %w", err)
	}

	rules := make([]domain.PricingRule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		if entry.Resource == "" {
			return nil, fmt.Errorf("pricing rule %d: resource is required", i)
		}
		unit := domain.PricingUnit(entry.Unit)
		switch unit {
		case domain.UnitSecond, domain.UnitMinute, domain.UnitToken:
		default:
			return nil, fmt.Errorf("pricing rule %d: unknown unit %q", i, entry.Unit)
		}
		rules = append(rules, domain.PricingRule{
			ResourceType:       domain.ResourceType(entry.Resource),
			ProviderID:         entry.Provider,
			ModelID:            entry.Model,
			Unit:               unit,
			PricePerUnit:       entry.PricePerUnit,
			InputPricePerUnit:  entry.InputPricePerUnit,
			OutputPricePerUnit: entry.OutputPricePerUnit,
			MinCharge:          entry.MinCharge,
		})
	}
	return rules, nil
}

// SeedRules upserts the given rules; existing admin edits win on conflict
// only where the repository chooses to, so this stays safe to run at startup.
func SeedRules(ctx context.Context, repo domain.PricingRepository, rules []domain.PricingRule) error {
	for i := range rules {
		if err := repo.Upsert(ctx, &rules[i]); err != nil {
			return fmt.Errorf("seed pricing rule %s/%s/%s: %w",
				rules[i].ResourceType, rules[i].ProviderID, rules[i].ModelID, err)
		}
	}
	return nil
}
