package domain

import "time"

// TaskKind enumerates the job categories this service dispatches.
type TaskKind string

const (
	TaskKindDownload         TaskKind = "download"
	TaskKindCommentsDownload TaskKind = "comments_download"
	TaskKindChannelSync      TaskKind = "channel_sync"
	TaskKindMetadataRefresh  TaskKind = "metadata_refresh"
	TaskKindTranscribe       TaskKind = "transcribe"
	TaskKindRender           TaskKind = "render"
)

// Engine enumerates the external worker classes that execute jobs.
type Engine string

const (
	EngineMediaDownloader  Engine = "media-downloader"
	EngineTranscriber      Engine = "transcriber"
	EngineRendererFFmpeg   Engine = "renderer-ffmpeg"
	EngineRendererRemotion Engine = "renderer-remotion"
)

// TaskStatus enumerates the task lifecycle states.
type TaskStatus string

const (
	TaskStatusQueued           TaskStatus = "queued"
	TaskStatusFetchingMetadata TaskStatus = "fetching_metadata"
	TaskStatusPreparing        TaskStatus = "preparing"
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusUploading        TaskStatus = "uploading"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCanceled         TaskStatus = "canceled"
)

// IsTerminal reports whether no further status transition is expected.
// Terminal rows are retained for audit and may still receive late callback
// re-deliveries.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// taskTransitions encodes the forward edges of the task lifecycle.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:           {TaskStatusFetchingMetadata, TaskStatusPreparing, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled},
	TaskStatusFetchingMetadata: {TaskStatusPreparing, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled},
	TaskStatusPreparing:        {TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled},
	TaskStatusRunning:          {TaskStatusUploading, TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled},
	TaskStatusUploading:        {TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled},
}

// CanTransition reports whether moving from one status to the next follows the
// task lifecycle. Identical statuses are allowed so re-delivered payloads stay
// idempotent.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TargetType identifies the aggregate a task operates on.
type TargetType string

const (
	TargetTypeMedia   TargetType = "media"
	TargetTypeChannel TargetType = "channel"
)

// Task is the persisted record of one dispatched job's lifecycle. Created
// before the external orchestrator is called, mutated by dispatch failure
// handling and by callback processing, never deleted.
type Task struct {
	ID                string
	UserID            string
	Kind              TaskKind
	Engine            Engine
	TargetType        TargetType
	TargetID          string
	Status            TaskStatus
	Progress          int // 0-100
	JobID             string
	ErrorMessage      string
	PayloadSnapshot   []byte
	JobStatusSnapshot []byte
	CreatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	UpdatedAt         time.Time
}
