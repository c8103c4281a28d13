package repo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// ManifestRepositoryPG implements domain.ManifestRepository.
type ManifestRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewManifestRepository creates a new manifest repository backed by PostgreSQL.
func NewManifestRepository(pool *pgxpool.Pool) *ManifestRepositoryPG {
	return &ManifestRepositoryPG{pool: pool}
}

// Create inserts the dispatch-time manifest for one job.
func (r *ManifestRepositoryPG) Create(ctx context.Context, m *domain.JobManifest) error {
	query := `
INSERT INTO job_manifests (job_id, user_id, kind, engine, media_id, channel_id, inputs, options_snapshot, derived_keys, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	derived, err := json.Marshal(derivedOrEmpty(m.DerivedKeys))
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		m.JobID,
		m.UserID,
		m.Kind,
		m.Engine,
		m.MediaID,
		m.ChannelID,
		nullableBytes(m.Inputs),
		nullableBytes(m.OptionsSnapshot),
		derived,
		m.CreatedAt,
	)
	return err
}

// GetByJobID fetches the manifest persisted for a job id.
func (r *ManifestRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.JobManifest, error) {
	query := `
SELECT job_id, user_id, kind, engine, media_id, channel_id, inputs, options_snapshot, derived_keys, created_at
FROM job_manifests
WHERE job_id = $1;
`
	var (
		m       domain.JobManifest
		derived []byte
	)
	if err := r.pool.QueryRow(ctx, query, jobID).Scan(
		&m.JobID,
		&m.UserID,
		&m.Kind,
		&m.Engine,
		&m.MediaID,
		&m.ChannelID,
		&m.Inputs,
		&m.OptionsSnapshot,
		&derived,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(derived) > 0 {
		if err := json.Unmarshal(derived, &m.DerivedKeys); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// PatchDerivedKey merges one key into the manifest's derived-keys map.
func (r *ManifestRepositoryPG) PatchDerivedKey(ctx context.Context, jobID, key, value string) error {
	query := `
UPDATE job_manifests
SET derived_keys = COALESCE(derived_keys, '{}'::jsonb) || jsonb_build_object($2::text, $3::text)
WHERE job_id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, key, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func derivedOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
