package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"media-orchestrator/internal/http/handlers"
	"media-orchestrator/internal/middleware"
)

// Options carries the router's cross-cutting settings.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
}

// NewRouter wires the public API surface. The callback endpoint is
// authenticated by its HMAC signature, not by a bearer token, so it sits
// outside the auth group.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Post("/v1/callbacks/jobs", app.JobCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}

		r.Route("/v1/tasks", func(r chi.Router) {
			r.Post("/", app.TasksCreate)
			r.Get("/{id}", app.TasksGet)
			r.Get("/{id}/job", app.TasksJobStatus)
		})

		r.Route("/v1/points", func(r chi.Router) {
			r.Get("/balance", app.PointsBalance)
			r.Get("/transactions", app.PointsTransactions)
		})
	})

	return r
}
