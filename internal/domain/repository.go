package domain

import (
	"context"
	"time"
)

// TaskRepository persists task lifecycle rows.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	GetByJobID(ctx context.Context, jobID string) (*Task, error)
	// MarkFailed records a terminal failure with its error message.
	MarkFailed(ctx context.Context, id, errMsg string) error
	// ApplyCallback overwrites status/progress/error/finishedAt for the task
	// owning jobID. The write is a pure overwrite so that a re-delivered
	// payload produces the same row.
	ApplyCallback(ctx context.Context, jobID string, status TaskStatus, progress int, errMsg string, finishedAt *time.Time) error
	// SyncJobStatus stores a best-effort snapshot from a status poll.
	SyncJobStatus(ctx context.Context, id string, status TaskStatus, progress int, snapshot []byte) error
	// ListStalled returns non-terminal tasks not updated since the cutoff.
	ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]Task, error)
}

// ManifestRepository persists dispatch-time job manifests.
type ManifestRepository interface {
	Create(ctx context.Context, m *JobManifest) error
	GetByJobID(ctx context.Context, jobID string) (*JobManifest, error)
	// PatchDerivedKey records a key derived after completion, e.g. the
	// rendered-artifact job id.
	PatchDerivedKey(ctx context.Context, jobID, key, value string) error
}

// MediaRepository mutates media aggregates addressed by id.
type MediaRepository interface {
	GetByID(ctx context.Context, id string) (*Media, error)
	Patch(ctx context.Context, id string, patch MediaPatch) error
}

// ChannelRepository mutates channel aggregates and their synced video lists.
type ChannelRepository interface {
	GetByID(ctx context.Context, id string) (*Channel, error)
	// UpdateSync sets the sync status, preserving title/thumbnail when nil.
	UpdateSync(ctx context.Context, id string, status SyncStatus, title, thumbnail *string) error
	// UpsertVideo inserts one listed video with insert-or-ignore-on-conflict
	// semantics and reports whether a new row was written.
	UpsertVideo(ctx context.Context, v *ChannelVideo) (bool, error)
}

// PricingRepository reads and seeds admin-managed pricing rules.
type PricingRepository interface {
	// Find returns the rule matching the exact triple, ErrNotFound otherwise.
	Find(ctx context.Context, resource ResourceType, providerID, modelID string) (*PricingRule, error)
	Upsert(ctx context.Context, rule *PricingRule) error
}

// ProxyRepository reads configured egress proxies.
type ProxyRepository interface {
	GetByID(ctx context.Context, id string) (*ProxyRecord, error)
}
