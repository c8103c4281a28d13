// Package callback decodes and authenticates webhook payloads delivered by
// the external job orchestrator. Decoding is deliberately closed: unknown
// engines or statuses fail as validation errors instead of flowing through as
// zero values.
package callback

import (
	"encoding/json"
	"fmt"

	"media-orchestrator/internal/domain"
)

// Status is the terminal state reported by a callback.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// TaskStatus maps a callback status onto the task lifecycle.
func (s Status) TaskStatus() domain.TaskStatus {
	switch s {
	case StatusCompleted:
		return domain.TaskStatusCompleted
	case StatusCanceled:
		return domain.TaskStatusCanceled
	default:
		return domain.TaskStatusFailed
	}
}

// Artifact is one produced object, addressed by presigned URL and/or object
// key.
type Artifact struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Outputs groups the artifacts a job may produce.
type Outputs struct {
	Video    *Artifact `json:"video"`
	Audio    *Artifact `json:"audio"`
	Metadata *Artifact `json:"metadata"`
}

// Metadata carries sparse source-media fields; nil pointers mean "not
// reported", which the reconciler must not overwrite with.
type Metadata struct {
	Title        *string `json:"title"`
	Author       *string `json:"author"`
	Thumbnail    *string `json:"thumbnail"`
	ViewCount    *int64  `json:"viewCount"`
	LikeCount    *int64  `json:"likeCount"`
	Source       *string `json:"source"`
	Quality      *string `json:"quality"`
	CommentCount *int64  `json:"commentCount"`
}

// Payload is the verified, typed form of one webhook delivery.
type Payload struct {
	JobID      string        `json:"jobId"`
	MediaID    string        `json:"mediaId"`
	Status     Status        `json:"status"`
	Engine     domain.Engine `json:"engine"`
	Outputs    Outputs       `json:"outputs"`
	Metadata   *Metadata     `json:"metadata"`
	DurationMs int64         `json:"durationMs"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error"`
}

// MetadataOnly reports whether the job produced no video or audio artifact.
// Comments-only, channel-sync and metadata-refresh jobs legitimately have no
// owning media row.
func (p *Payload) MetadataOnly() bool {
	return p.Outputs.Video == nil && p.Outputs.Audio == nil
}

var knownEngines = map[domain.Engine]struct{}{
	domain.EngineMediaDownloader:  {},
	domain.EngineTranscriber:      {},
	domain.EngineRendererFFmpeg:   {},
	domain.EngineRendererRemotion: {},
}

// Decode parses a raw webhook body into a Payload. Any shape the reconcilers
// do not understand is rejected with domain.ErrValidation so it can never be
// half-processed.
func Decode(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode callback body: %v: %w", err, domain.ErrValidation)
	}
	if p.JobID == "" {
		return nil, fmt.Errorf("callback missing jobId: %w", domain.ErrValidation)
	}
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusCanceled:
	default:
		return nil, fmt.Errorf("callback status %q unknown: %w", p.Status, domain.ErrValidation)
	}
	if _, ok := knownEngines[p.Engine]; !ok {
		return nil, fmt.Errorf("callback engine %q unknown: %w", p.Engine, domain.ErrValidation)
	}
	if p.DurationMs < 0 {
		return nil, fmt.Errorf("callback durationMs %d negative: %w", p.DurationMs, domain.ErrValidation)
	}
	return &p, nil
}
