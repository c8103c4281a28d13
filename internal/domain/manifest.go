package domain

import "time"

// JobManifest is the dispatch-time snapshot of a job's inputs and options,
// persisted so that a later callback can be reconciled without the original
// request context. Immutable once the job starts, except for derived keys
// patched in after completion (e.g. the rendered-artifact job id).
type JobManifest struct {
	JobID           string
	UserID          string
	Kind            TaskKind
	Engine          Engine
	MediaID         string
	ChannelID       string
	Inputs          []byte
	OptionsSnapshot []byte
	DerivedKeys     map[string]string
	CreatedAt       time.Time
}
