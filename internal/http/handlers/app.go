package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"media-orchestrator/internal/callback"
	"media-orchestrator/internal/dispatch"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/ledger"
	"media-orchestrator/internal/middleware"
	"media-orchestrator/internal/orchestrator"
)

// Dispatcher starts jobs on behalf of an authenticated user.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, req dispatch.Request) (*dispatch.Result, error)
}

// Reconciler applies one verified callback payload.
type Reconciler interface {
	Apply(ctx context.Context, manifest *domain.JobManifest, media *domain.Media, p *callback.Payload) error
}

// JobStatusClient polls the external orchestrator for one job's state.
type JobStatusClient interface {
	JobStatus(ctx context.Context, jobID string) (*orchestrator.JobState, error)
}

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Tasks          domain.TaskRepository
	Manifests      domain.ManifestRepository
	Media          domain.MediaRepository
	Ledger         *ledger.Service
	Dispatcher     Dispatcher
	Reconciler     Reconciler
	Jobs           JobStatusClient
	CallbackSecret string
	Logger         zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
