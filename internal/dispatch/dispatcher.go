// Package dispatch starts external jobs: it fixes a job id, persists the task
// and manifest, charges any up-front cost, and only then calls the
// orchestrator. Everything after the charge refunds on failure.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/infra"
	"media-orchestrator/internal/ledger"
	"media-orchestrator/internal/orchestrator"
	"media-orchestrator/internal/pricing"
	"media-orchestrator/internal/proxy"
)

// Orchestrator is the slice of the orchestrator client the dispatcher needs.
type Orchestrator interface {
	StartJob(ctx context.Context, req orchestrator.StartJobRequest) (*orchestrator.StartJobResponse, error)
	ProbeMetadata(ctx context.Context, sourceURL, proxyURL string) (*orchestrator.MediaProbe, error)
}

// Request describes one job to dispatch.
type Request struct {
	Kind         domain.TaskKind
	TargetType   domain.TargetType
	TargetID     string
	SourceURL    string
	ProxyID      string
	ProviderID   string
	ModelID      string
	Quality      string
	RenderEngine domain.Engine // render jobs only; defaults to ffmpeg
	DurationMs   int64         // 0 when the caller does not know the duration
	Options      map[string]any
}

// Result identifies the dispatched work: the task row and the orchestrator
// job joined to it by JobID.
type Result struct {
	TaskID string
	JobID  string
}

// Dispatcher implements the dispatch contract.
type Dispatcher struct {
	tasks       domain.TaskRepository
	manifests   domain.ManifestRepository
	ledger      *ledger.Service
	pricing     *pricing.Resolver
	proxies     *proxy.Resolver
	orch        Orchestrator
	callbackURL string
	logger      zerolog.Logger
}

func NewDispatcher(
	tasks domain.TaskRepository,
	manifests domain.ManifestRepository,
	ledgerSvc *ledger.Service,
	pricingResolver *pricing.Resolver,
	proxyResolver *proxy.Resolver,
	orch Orchestrator,
	callbackURL string,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		tasks:       tasks,
		manifests:   manifests,
		ledger:      ledgerSvc,
		pricing:     pricingResolver,
		proxies:     proxyResolver,
		orch:        orch,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// Dispatch starts one job. The job id exists before any network call; the
// task row and manifest are persisted before the up-front charge, and the
// orchestrator is called last. Failures after the charge refund exactly what
// was charged, and the original error is always the one returned.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, req Request) (*Result, error) {
	engine, err := engineFor(req)
	if err != nil {
		return nil, err
	}
	if req.TargetID == "" {
		return nil, fmt.Errorf("dispatch: target id is required: %w", domain.ErrValidation)
	}

	jobID := newJobID()
	taskID := uuid.NewString()

	sel, err := d.proxies.Resolve(ctx, req.ProxyID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolve proxy: %w", err)
	}

	cost, durationMs, err := d.upfrontCost(ctx, req, sel.URL)
	if err != nil {
		return nil, err
	}

	if err := d.persist(ctx, userID, taskID, jobID, engine, req, sel.ProxyID, durationMs); err != nil {
		return nil, fmt.Errorf("dispatch: persist task: %w", err)
	}

	if cost > 0 {
		if _, _, err := d.ledger.ChargeOnce(ctx, userID, cost, domain.TxTypeDownloadUsage, jobID, "download dispatch", nil); err != nil {
			d.failTask(ctx, taskID, err)
			return nil, fmt.Errorf("dispatch: charge %d points: %w", cost, err)
		}
	}

	resp, err := d.orch.StartJob(ctx, orchestrator.StartJobRequest{
		JobID:       jobID,
		Kind:        string(req.Kind),
		Engine:      string(engine),
		MediaID:     mediaTarget(req),
		ChannelID:   channelTarget(req),
		SourceURL:   req.SourceURL,
		ProxyURL:    sel.URL,
		CallbackURL: d.callbackURL,
		Options:     req.Options,
	})
	if err != nil {
		d.failTask(ctx, taskID, err)
		d.refund(ctx, userID, jobID)
		return nil, fmt.Errorf("dispatch: start job: %w", err)
	}
	if resp.JobID != jobID {
		// Something started a job the ledger and task store do not know
		// under this id.
		err := fmt.Errorf("dispatch: sent %s, orchestrator answered %s: %w", jobID, resp.JobID, domain.ErrJobIDMismatch)
		d.failTask(ctx, taskID, err)
		d.refund(ctx, userID, jobID)
		return nil, err
	}

	d.logger.Info().
		Str("task_id", taskID).
		Str("job_id", jobID).
		Str("kind", string(req.Kind)).
		Str("engine", string(engine)).
		Int64("cost", cost).
		Msg("dispatch: job started")
	return &Result{TaskID: taskID, JobID: jobID}, nil
}

// upfrontCost computes the charge that gates job start. Only downloads are
// duration-priced before dispatch; every other kind bills usage from its
// completion callback.
func (d *Dispatcher) upfrontCost(ctx context.Context, req Request, proxyURL string) (int64, int64, error) {
	if req.Kind != domain.TaskKindDownload {
		return 0, req.DurationMs, nil
	}
	rule, err := d.pricing.Resolve(ctx, domain.ResourceDownload, req.ProviderID, req.ModelID)
	if err != nil {
		// A download without a known per-unit cost must not start.
		return 0, 0, fmt.Errorf("dispatch: %w", err)
	}

	durationMs := req.DurationMs
	if durationMs <= 0 && req.SourceURL != "" {
		probe, err := d.orch.ProbeMetadata(ctx, req.SourceURL, proxyURL)
		if err != nil {
			d.logger.Warn().Err(err).Str("source_url", req.SourceURL).Msg("dispatch: metadata probe failed")
		} else {
			durationMs = probe.DurationMs
		}
	}
	if durationMs <= 0 {
		return 0, 0, fmt.Errorf("dispatch: cannot price download without a duration: %w", domain.ErrDurationUnknown)
	}

	cost, err := pricing.DurationCost(rule, durationMs)
	if err != nil {
		return 0, 0, fmt.Errorf("dispatch: %w", err)
	}
	return cost, durationMs, nil
}

func (d *Dispatcher) persist(ctx context.Context, userID, taskID, jobID string, engine domain.Engine, req Request, proxyID string, durationMs int64) error {
	now := time.Now().UTC()
	inputs, _ := json.Marshal(map[string]any{
		"sourceUrl":  req.SourceURL,
		"quality":    req.Quality,
		"proxyId":    proxyID,
		"durationMs": durationMs,
	})
	options, _ := json.Marshal(req.Options)

	task := &domain.Task{
		ID:              taskID,
		UserID:          userID,
		Kind:            req.Kind,
		Engine:          engine,
		TargetType:      req.TargetType,
		TargetID:        req.TargetID,
		Status:          domain.TaskStatusQueued,
		JobID:           jobID,
		PayloadSnapshot: inputs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.tasks.Create(ctx, task); err != nil {
		return err
	}

	manifest := &domain.JobManifest{
		JobID:           jobID,
		UserID:          userID,
		Kind:            req.Kind,
		Engine:          engine,
		MediaID:         mediaTarget(req),
		ChannelID:       channelTarget(req),
		Inputs:          inputs,
		OptionsSnapshot: options,
		CreatedAt:       now,
	}
	return d.manifests.Create(ctx, manifest)
}

// failTask records a terminal dispatch failure. Best-effort: the original
// dispatch error is what the caller sees, not a persistence problem.
func (d *Dispatcher) failTask(ctx context.Context, taskID string, cause error) {
	infra.BestEffort(d.logger, "mark task failed", func() error {
		return d.tasks.MarkFailed(ctx, taskID, cause.Error())
	})
}

// refund returns whatever the ledger charged under this job id. Refund
// failures are logged, never thrown, so they cannot mask the dispatch error.
func (d *Dispatcher) refund(ctx context.Context, userID, jobID string) {
	refunded, err := d.ledger.RefundByRef(ctx, userID, domain.TxTypeDownloadUsage, jobID, "dispatch failed")
	if err != nil {
		d.logger.Error().Err(err).Str("job_id", jobID).Msg("dispatch: refund failed")
		return
	}
	if refunded > 0 {
		d.logger.Info().Str("job_id", jobID).Int64("points", refunded).Msg("dispatch: charge refunded")
	}
}

func newJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func engineFor(req Request) (domain.Engine, error) {
	switch req.Kind {
	case domain.TaskKindDownload, domain.TaskKindCommentsDownload,
		domain.TaskKindChannelSync, domain.TaskKindMetadataRefresh:
		return domain.EngineMediaDownloader, nil
	case domain.TaskKindTranscribe:
		return domain.EngineTranscriber, nil
	case domain.TaskKindRender:
		switch req.RenderEngine {
		case domain.EngineRendererFFmpeg, domain.EngineRendererRemotion:
			return req.RenderEngine, nil
		case "":
			return domain.EngineRendererFFmpeg, nil
		default:
			return "", fmt.Errorf("dispatch: unsupported render engine %q: %w", req.RenderEngine, domain.ErrValidation)
		}
	default:
		return "", fmt.Errorf("dispatch: unsupported kind %q: %w", req.Kind, domain.ErrValidation)
	}
}

func mediaTarget(req Request) string {
	if req.TargetType == domain.TargetTypeMedia {
		return req.TargetID
	}
	return ""
}

func channelTarget(req Request) string {
	if req.TargetType == domain.TargetTypeChannel {
		return req.TargetID
	}
	return ""
}
