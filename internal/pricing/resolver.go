package pricing

import (
	"context"
	"errors"
	"fmt"

	"media-orchestrator/internal/domain"
)

// Resolver finds the charge rule for a resource via specificity fallback:
// exact model match, then provider-level default, then global default.
type Resolver struct {
	repo domain.PricingRepository
}

func NewResolver(repo domain.PricingRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the most specific rule for the given resource. It fails
// with domain.ErrPricingRuleNotFound when no rule matches at any level;
// callers decide whether that means "free" (optional usage billing) or fatal
// (paths that gate job start).
func (r *Resolver) Resolve(ctx context.Context, resource domain.ResourceType, providerID, modelID string) (*domain.PricingRule, error) {
	if modelID != "" {
		rule, err := r.repo.Find(ctx, resource, providerID, modelID)
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if providerID != "" {
		rule, err := r.repo.Find(ctx, resource, providerID, "")
		if err == nil {
			return rule, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	rule, err := r.repo.Find(ctx, resource, "", "")
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("no rule for resource %q provider %q model %q: %w",
		resource, providerID, modelID, domain.ErrPricingRuleNotFound)
}

const microPointsPerPoint = 1_000_000

// TokenCost computes the cost of a token-metered call. The raw cost is
// accumulated in micro-points and rounded up to whole points, then floored at
// the rule's minimum charge.
func TokenCost(rule *domain.PricingRule, inputTokens, outputTokens int64) int64 {
	micro := inputTokens*rule.InputPricePerUnit + outputTokens*rule.OutputPricePerUnit
	points := (micro + microPointsPerPoint - 1) / microPointsPerPoint
	if points < rule.MinCharge {
		points = rule.MinCharge
	}
	return points
}

// DurationCost computes the cost of a duration-metered job. Units are whole
// seconds or minutes, rounded up, depending on the rule's unit.
func DurationCost(rule *domain.PricingRule, durationMs int64) (int64, error) {
	if durationMs <= 0 {
		return 0, fmt.Errorf("pricing: duration must be positive, got %dms", durationMs)
	}
	var perUnitMs int64
	switch rule.Unit {
	case domain.UnitSecond:
		perUnitMs = 1000
	case domain.UnitMinute:
		perUnitMs = 60_000
	default:
		return 0, fmt.Errorf("pricing: rule unit %q is not duration-based", rule.Unit)
	}
	units := (durationMs + perUnitMs - 1) / perUnitMs
	cost := units * rule.PricePerUnit
	if cost < rule.MinCharge {
		cost = rule.MinCharge
	}
	return cost, nil
}
