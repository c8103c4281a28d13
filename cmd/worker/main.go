package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"media-orchestrator/internal/adapter/repo"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/infra"
	"media-orchestrator/internal/orchestrator"
)

// The watchdog sweeps tasks whose jobs never delivered a terminal callback:
// it re-polls the orchestrator for each stalled task, syncs what the poll
// reports, and fails tasks that outlived the configured job timeout.

const sweepBatchSize = 50

type watchdog struct {
	ctx      context.Context
	tasks    domain.TaskRepository
	orch     *orchestrator.Client
	logger   zerolog.Logger
	interval time.Duration
	timeout  time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	orch, err := orchestrator.NewClient(orchestrator.Options{
		BaseURL:    cfg.OrchestratorBaseURL,
		Token:      cfg.OrchestratorToken,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure orchestrator client")
	}

	w := &watchdog{
		ctx:      ctx,
		tasks:    repo.NewTaskRepository(pool),
		orch:     orch,
		logger:   logger,
		interval: cfg.WatchdogInterval,
		timeout:  cfg.JobTimeout,
	}

	if err := w.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *watchdog) Run() error {
	w.logger.Info().
		Dur("interval", w.interval).
		Dur("job_timeout", w.timeout).
		Msg("worker: started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *watchdog) sweep() {
	cutoff := time.Now().Add(-w.interval)
	stalled, err := w.tasks.ListStalled(w.ctx, cutoff, sweepBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: failed to list stalled tasks")
		return
	}
	for i := range stalled {
		w.check(&stalled[i])
	}
}

func (w *watchdog) check(task *domain.Task) {
	state, err := w.orch.JobStatus(w.ctx, task.JobID)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("task_id", task.ID).
			Str("job_id", task.JobID).
			Msg("worker: job status poll failed")
		w.failIfExpired(task)
		return
	}

	status, ok := jobTaskStatus(state.Status)
	if !ok || !domain.CanTransition(task.Status, status) {
		w.failIfExpired(task)
		return
	}

	if status.IsTerminal() {
		// The terminal callback never arrived (or was lost); the poll is
		// authoritative for the lifecycle even though no reconciliation ran.
		w.logger.Warn().
			Str("task_id", task.ID).
			Str("job_id", task.JobID).
			Str("status", string(status)).
			Msg("worker: job finished without a delivered callback")
	}

	progress := int(state.Progress * 100)
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if err := w.tasks.SyncJobStatus(w.ctx, task.ID, status, progress, nil); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: sync task failed")
		return
	}
	if !status.IsTerminal() {
		w.failIfExpired(task)
	}
}

// failIfExpired moves a task past the job timeout into failed so a lost job
// cannot stay "running" forever.
func (w *watchdog) failIfExpired(task *domain.Task) {
	if time.Since(task.CreatedAt) < w.timeout {
		return
	}
	if err := w.tasks.MarkFailed(w.ctx, task.ID, "job timed out without a terminal callback"); err != nil {
		w.logger.Error().Err(err).Str("task_id", task.ID).Msg("worker: mark timed-out task failed")
		return
	}
	w.logger.Info().
		Str("task_id", task.ID).
		Str("job_id", task.JobID).
		Msg("worker: task failed on timeout")
}

func jobTaskStatus(s string) (domain.TaskStatus, bool) {
	switch s {
	case "queued":
		return domain.TaskStatusQueued, true
	case "fetching_metadata":
		return domain.TaskStatusFetchingMetadata, true
	case "preparing":
		return domain.TaskStatusPreparing, true
	case "running", "processing":
		return domain.TaskStatusRunning, true
	case "uploading":
		return domain.TaskStatusUploading, true
	case "completed":
		return domain.TaskStatusCompleted, true
	case "failed":
		return domain.TaskStatusFailed, true
	case "canceled":
		return domain.TaskStatusCanceled, true
	default:
		return "", false
	}
}
