package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// ProxyRepositoryPG implements domain.ProxyRepository.
type ProxyRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProxyRepository creates a new proxy repository backed by PostgreSQL.
func NewProxyRepository(pool *pgxpool.Pool) *ProxyRepositoryPG {
	return &ProxyRepositoryPG{pool: pool}
}

// GetByID fetches a configured proxy by its identifier.
func (r *ProxyRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ProxyRecord, error) {
	query := `
SELECT id, name, protocol, host, port, username, password, last_test, last_tested_at, updated_at
FROM proxies
WHERE id = $1;
`
	var p domain.ProxyRecord
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Protocol,
		&p.Host,
		&p.Port,
		&p.Username,
		&p.Password,
		&p.LastTest,
		&p.LastTestedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
