package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// ChannelRepositoryPG implements domain.ChannelRepository.
type ChannelRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new channel repository backed by PostgreSQL.
func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepositoryPG {
	return &ChannelRepositoryPG{pool: pool}
}

// GetByID fetches a channel by its identifier.
func (r *ChannelRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	query := `
SELECT id, user_id, title, thumbnail, last_sync_status, last_synced_at, updated_at
FROM channels
WHERE id = $1;
`
	var ch domain.Channel
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID,
		&ch.UserID,
		&ch.Title,
		&ch.Thumbnail,
		&ch.LastSyncStatus,
		&ch.LastSyncedAt,
		&ch.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// UpdateSync records a sync outcome. Title and thumbnail are only overwritten
// when the listing provided them.
func (r *ChannelRepositoryPG) UpdateSync(ctx context.Context, id string, status domain.SyncStatus, title, thumbnail *string) error {
	query := `
UPDATE channels
SET last_sync_status = $2,
    last_synced_at = NOW(),
    title = COALESCE($3, title),
    thumbnail = COALESCE($4, thumbnail),
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id, status, title, thumbnail)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertVideo inserts one listed video, ignoring rows the channel already
// knows, and reports whether a new row was written.
func (r *ChannelRepositoryPG) UpsertVideo(ctx context.Context, v *domain.ChannelVideo) (bool, error) {
	query := `
INSERT INTO channel_videos (channel_id, video_id, title, thumbnail, duration_ms, published_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (channel_id, video_id) DO NOTHING;
`
	tag, err := r.pool.Exec(ctx, query,
		v.ChannelID,
		v.VideoID,
		v.Title,
		v.Thumbnail,
		v.DurationMs,
		v.PublishedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
