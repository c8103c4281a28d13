package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// MediaRepositoryPG implements domain.MediaRepository.
type MediaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewMediaRepository creates a new media repository backed by PostgreSQL.
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepositoryPG {
	return &MediaRepositoryPG{pool: pool}
}

// GetByID fetches a media row by its identifier.
func (r *MediaRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	query := `
SELECT id, user_id, channel_id, source_url, title, author, thumbnail,
       view_count, like_count, comment_count, source, quality, duration_ms,
       remote_video_key, remote_audio_key, remote_metadata_key, transcript_key,
       artifact_ref, comments, download_status, download_error, render_error,
       created_at, updated_at
FROM media
WHERE id = $1;
`
	var m domain.Media
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.UserID,
		&m.ChannelID,
		&m.SourceURL,
		&m.Title,
		&m.Author,
		&m.Thumbnail,
		&m.ViewCount,
		&m.LikeCount,
		&m.CommentCount,
		&m.Source,
		&m.Quality,
		&m.DurationMs,
		&m.RemoteVideoKey,
		&m.RemoteAudioKey,
		&m.RemoteMetadataKey,
		&m.TranscriptKey,
		&m.ArtifactRef,
		&m.Comments,
		&m.DownloadStatus,
		&m.DownloadError,
		&m.RenderError,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Patch applies a sparse update: only the non-nil fields are written.
func (r *MediaRepositoryPG) Patch(ctx context.Context, id string, patch domain.MediaPatch) error {
	set := newSetBuilder()
	set.add("title", patch.Title)
	set.add("author", patch.Author)
	set.add("thumbnail", patch.Thumbnail)
	set.add("view_count", patch.ViewCount)
	set.add("like_count", patch.LikeCount)
	set.add("comment_count", patch.CommentCount)
	set.add("source", patch.Source)
	set.add("quality", patch.Quality)
	set.add("duration_ms", patch.DurationMs)
	set.add("remote_video_key", patch.RemoteVideoKey)
	set.add("remote_audio_key", patch.RemoteAudioKey)
	set.add("remote_metadata_key", patch.RemoteMetadataKey)
	set.add("transcript_key", patch.TranscriptKey)
	set.add("artifact_ref", patch.ArtifactRef)
	set.add("download_status", patch.DownloadStatus)
	set.add("download_error", patch.DownloadError)
	set.add("render_error", patch.RenderError)
	if patch.Comments != nil {
		set.addValue("comments", patch.Comments)
	}
	if set.empty() {
		return nil
	}

	query, args := set.update("media", id)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// setBuilder accumulates SET clauses for a sparse UPDATE. $1 is reserved for
// the row id.
type setBuilder struct {
	clauses []string
	args    []any
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(column string, value any) {
	switch v := value.(type) {
	case *string:
		if v != nil {
			b.addValue(column, *v)
		}
	case *int64:
		if v != nil {
			b.addValue(column, *v)
		}
	case *domain.DownloadStatus:
		if v != nil {
			b.addValue(column, *v)
		}
	}
}

func (b *setBuilder) addValue(column string, value any) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)+1))
}

func (b *setBuilder) empty() bool {
	return len(b.clauses) == 0
}

func (b *setBuilder) update(table, id string) (string, []any) {
	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = NOW() WHERE id = $1;",
		table, strings.Join(b.clauses, ", "))
	return query, append([]any{id}, b.args...)
}
