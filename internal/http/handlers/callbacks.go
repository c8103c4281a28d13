package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"media-orchestrator/internal/callback"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/infra"
)

const maxCallbackBody = 1 << 20 // 1 MiB

// JobCallback is the webhook the external orchestrator delivers terminal job
// results to. The signature check runs on the raw body before any parsing; a
// mismatch rejects the request with no side effects at all.
func (a *App) JobCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "cannot read body")
		return
	}

	if !callback.VerifySignature(a.CallbackSecret, body, r.Header.Get("X-Signature")) {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	p, err := callback.Decode(body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "malformed payload")
		return
	}

	a.syncTask(r, p)

	manifest, err := a.Manifests.GetByJobID(r.Context(), p.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && p.MetadataOnly() {
			// Late delivery for a job this service never dispatched, with
			// nothing media-bound to lose. Acknowledge so the caller stops
			// retrying.
			a.json(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "unknown job")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "manifest lookup failed")
		return
	}

	var media *domain.Media
	if manifest.Kind != domain.TaskKindChannelSync {
		mediaID := manifest.MediaID
		if mediaID == "" {
			mediaID = p.MediaID
		}
		if mediaID == "" {
			if p.MetadataOnly() {
				a.json(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
				return
			}
			a.error(w, http.StatusNotFound, "not_found", "unknown media")
			return
		}
		media, err = a.Media.GetByID(r.Context(), mediaID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if p.MetadataOnly() {
					a.json(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
					return
				}
				a.error(w, http.StatusNotFound, "not_found", "unknown media")
				return
			}
			a.error(w, http.StatusInternalServerError, "internal", "media lookup failed")
			return
		}
	}

	if err := a.Reconciler.Apply(r.Context(), manifest, media, p); err != nil {
		a.Logger.Error().Err(err).
			Str("job_id", p.JobID).
			Str("kind", string(manifest.Kind)).
			Msg("callback: reconcile failed")
		// 500 tells the orchestrator to retry the delivery.
		a.error(w, http.StatusInternalServerError, "internal", "reconcile failed")
		return
	}

	a.json(w, http.StatusOK, map[string]any{"ok": true})
}

// syncTask overwrites the task row for this job id. Best-effort: a missing or
// failing task row never blocks reconciliation.
func (a *App) syncTask(r *http.Request, p *callback.Payload) {
	status := p.Status.TaskStatus()
	progress := 0
	if p.Status == callback.StatusCompleted {
		progress = 100
	}
	finishedAt := time.Now().UTC()
	infra.BestEffort(a.Logger, "apply callback to task", func() error {
		err := a.Tasks.ApplyCallback(r.Context(), p.JobID, status, progress, p.Error, &finishedAt)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	})
}
