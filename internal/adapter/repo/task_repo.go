package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new task repository backed by PostgreSQL.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepositoryPG {
	return &TaskRepositoryPG{pool: pool}
}

const taskColumns = `id, user_id, kind, engine, target_type, target_id, status, progress, job_id, error_message, payload_snapshot, job_status_snapshot, created_at, started_at, finished_at, updated_at`

// Create inserts a new task row.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	query := `
INSERT INTO tasks (id, user_id, kind, engine, target_type, target_id, status, progress, job_id, payload_snapshot, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.Kind,
		task.Engine,
		task.TargetType,
		task.TargetID,
		task.Status,
		task.Progress,
		task.JobID,
		nullableBytes(task.PayloadSnapshot),
		task.CreatedAt,
		task.UpdatedAt,
	)
	return err
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1;`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByJobID fetches the task joined to an external job id.
func (r *TaskRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE job_id = $1;`
	return r.scanOne(r.pool.QueryRow(ctx, query, jobID))
}

// MarkFailed records a terminal failure with its error message.
func (r *TaskRepositoryPG) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
UPDATE tasks
SET status = $2,
    error_message = $3,
    finished_at = NOW(),
    updated_at = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id, domain.TaskStatusFailed, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyCallback overwrites the lifecycle fields for the task owning jobID.
// A re-delivered payload writes the same values again, which is fine.
func (r *TaskRepositoryPG) ApplyCallback(ctx context.Context, jobID string, status domain.TaskStatus, progress int, errMsg string, finishedAt *time.Time) error {
	query := `
UPDATE tasks
SET status = $2,
    progress = $3,
    error_message = $4,
    finished_at = $5,
    updated_at = NOW()
WHERE job_id = $1;
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, progress, errMsg, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SyncJobStatus stores a best-effort snapshot from a status poll. Terminal
// rows are skipped so a stale poll cannot reopen a finished task.
func (r *TaskRepositoryPG) SyncJobStatus(ctx context.Context, id string, status domain.TaskStatus, progress int, snapshot []byte) error {
	query := `
UPDATE tasks
SET status = $2,
    progress = $3,
    job_status_snapshot = COALESCE($4, job_status_snapshot),
    started_at = COALESCE(started_at, NOW()),
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ($5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query, id, status, progress, nullableBytes(snapshot),
		domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCanceled)
	return err
}

// ListStalled returns non-terminal tasks not updated since the cutoff,
// oldest first.
func (r *TaskRepositoryPG) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]domain.Task, error) {
	query := `
SELECT ` + taskColumns + `
FROM tasks
WHERE status NOT IN ($2, $3, $4)
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $5;
`
	rows, err := r.pool.Query(ctx, query, cutoff,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCanceled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepositoryPG) scanOne(row pgx.Row) (*domain.Task, error) {
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Kind,
		&task.Engine,
		&task.TargetType,
		&task.TargetID,
		&task.Status,
		&task.Progress,
		&task.JobID,
		&task.ErrorMessage,
		&task.PayloadSnapshot,
		&task.JobStatusSnapshot,
		&task.CreatedAt,
		&task.StartedAt,
		&task.FinishedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
