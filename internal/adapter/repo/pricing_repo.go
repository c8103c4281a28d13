package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// PricingRepositoryPG implements domain.PricingRepository.
type PricingRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewPricingRepository creates a new pricing repository backed by PostgreSQL.
func NewPricingRepository(pool *pgxpool.Pool) *PricingRepositoryPG {
	return &PricingRepositoryPG{pool: pool}
}

// Find returns the rule for the exact (resource, provider, model) triple.
// Fallback across specificity levels is the resolver's job, not the query's.
func (r *PricingRepositoryPG) Find(ctx context.Context, resource domain.ResourceType, providerID, modelID string) (*domain.PricingRule, error) {
	query := `
SELECT id, resource_type, provider_id, model_id, unit, price_per_unit, input_price_per_unit, output_price_per_unit, min_charge, updated_at
FROM pricing_rules
WHERE resource_type = $1 AND provider_id = $2 AND model_id = $3;
`
	var rule domain.PricingRule
	if err := r.pool.QueryRow(ctx, query, resource, providerID, modelID).Scan(
		&rule.ID,
		&rule.ResourceType,
		&rule.ProviderID,
		&rule.ModelID,
		&rule.Unit,
		&rule.PricePerUnit,
		&rule.InputPricePerUnit,
		&rule.OutputPricePerUnit,
		&rule.MinCharge,
		&rule.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// Upsert writes one rule keyed by its (resource, provider, model) triple.
func (r *PricingRepositoryPG) Upsert(ctx context.Context, rule *domain.PricingRule) error {
	query := `
INSERT INTO pricing_rules (id, resource_type, provider_id, model_id, unit, price_per_unit, input_price_per_unit, output_price_per_unit, min_charge, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (resource_type, provider_id, model_id) DO UPDATE
SET unit = EXCLUDED.unit,
    price_per_unit = EXCLUDED.price_per_unit,
    input_price_per_unit = EXCLUDED.input_price_per_unit,
    output_price_per_unit = EXCLUDED.output_price_per_unit,
    min_charge = EXCLUDED.min_charge,
    updated_at = NOW();
`
	id := rule.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, query,
		id,
		rule.ResourceType,
		rule.ProviderID,
		rule.ModelID,
		rule.Unit,
		rule.PricePerUnit,
		rule.InputPricePerUnit,
		rule.OutputPricePerUnit,
		rule.MinCharge,
	)
	return err
}
