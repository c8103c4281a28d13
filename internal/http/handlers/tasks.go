package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"media-orchestrator/internal/dispatch"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/infra"
)

type createTaskRequest struct {
	Kind         string         `json:"kind"`
	TargetType   string         `json:"targetType"`
	TargetID     string         `json:"targetId"`
	SourceURL    string         `json:"sourceUrl"`
	ProxyID      string         `json:"proxyId"`
	ProviderID   string         `json:"providerId"`
	ModelID      string         `json:"modelId"`
	Quality      string         `json:"quality"`
	RenderEngine string         `json:"renderEngine"`
	DurationMs   int64          `json:"durationMs"`
	Options      map[string]any `json:"options"`
}

type taskView struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Engine     string     `json:"engine"`
	TargetType string     `json:"targetType"`
	TargetID   string     `json:"targetId"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	JobID      string     `json:"jobId"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func viewOf(task *domain.Task) taskView {
	return taskView{
		ID:         task.ID,
		Kind:       string(task.Kind),
		Engine:     string(task.Engine),
		TargetType: string(task.TargetType),
		TargetID:   task.TargetID,
		Status:     string(task.Status),
		Progress:   task.Progress,
		JobID:      task.JobID,
		Error:      task.ErrorMessage,
		CreatedAt:  task.CreatedAt,
		StartedAt:  task.StartedAt,
		FinishedAt: task.FinishedAt,
		UpdatedAt:  task.UpdatedAt,
	}
}

// TasksCreate dispatches one job for the authenticated user.
func (a *App) TasksCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	result, err := a.Dispatcher.Dispatch(r.Context(), userID, dispatch.Request{
		Kind:         domain.TaskKind(req.Kind),
		TargetType:   domain.TargetType(req.TargetType),
		TargetID:     req.TargetID,
		SourceURL:    req.SourceURL,
		ProxyID:      req.ProxyID,
		ProviderID:   req.ProviderID,
		ModelID:      req.ModelID,
		Quality:      req.Quality,
		RenderEngine: domain.Engine(req.RenderEngine),
		DurationMs:   req.DurationMs,
		Options:      req.Options,
	})
	if err != nil {
		a.dispatchError(w, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{
		"taskId": result.TaskID,
		"jobId":  result.JobID,
	})
}

// dispatchError maps dispatch failures onto actionable HTTP responses.
func (a *App) dispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInsufficientPoints):
		a.error(w, http.StatusPaymentRequired, "insufficient_points", "not enough points for this job")
	case errors.Is(err, domain.ErrDurationUnknown):
		a.error(w, http.StatusUnprocessableEntity, "duration_unknown", "cannot price this job without a duration")
	case errors.Is(err, domain.ErrPricingRuleNotFound):
		a.error(w, http.StatusUnprocessableEntity, "pricing_rule_missing", "no pricing rule covers this job")
	default:
		a.Logger.Error().Err(err).Msg("tasks: dispatch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to dispatch job")
	}
}

// TasksGet returns one of the caller's tasks.
func (a *App) TasksGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	task, err := a.Tasks.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || task.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, viewOf(task))
}

// TasksJobStatus polls the external orchestrator for the task's job and
// returns its live state. The task row is synced best-effort from what the
// poll reported; the poll itself never mutates anything upstream.
func (a *App) TasksJobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	task, err := a.Tasks.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil || task.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}

	state, err := a.Jobs.JobStatus(r.Context(), task.JobID)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", task.JobID).Msg("tasks: job status poll failed")
		a.error(w, http.StatusBadGateway, "upstream", "job status unavailable")
		return
	}

	progress := int(state.Progress * 100)
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if status, ok := jobTaskStatus(state.Status); ok && domain.CanTransition(task.Status, status) {
		snapshot, _ := json.Marshal(state)
		infra.BestEffort(a.Logger, "sync task from job status", func() error {
			return a.Tasks.SyncJobStatus(r.Context(), task.ID, status, progress, snapshot)
		})
	}

	a.json(w, http.StatusOK, map[string]any{
		"status":   state.Status,
		"progress": progress,
		"phase":    state.Phase,
		"outputs":  state.Outputs,
	})
}

// jobTaskStatus maps orchestrator-reported states onto the task lifecycle.
// Unknown states are not persisted.
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
