package domain

import "time"

// DownloadStatus tracks the remote-object download lifecycle of a media row.
type DownloadStatus string

const (
	DownloadStatusNone      DownloadStatus = "none"
	DownloadStatusPending   DownloadStatus = "pending"
	DownloadStatusCompleted DownloadStatus = "completed"
	DownloadStatusFailed    DownloadStatus = "failed"
)

// Media is the aggregate root a media-bound job mutates. The core treats it as
// an opaque target addressed by id; only the fields the reconciler touches are
// modeled.
type Media struct {
	ID                string
	UserID            string
	ChannelID         string
	SourceURL         string
	Title             string
	Author            string
	Thumbnail         string
	ViewCount         int64
	LikeCount         int64
	CommentCount      int64
	Source            string
	Quality           string
	DurationMs        int64
	RemoteVideoKey    string
	RemoteAudioKey    string
	RemoteMetadataKey string
	TranscriptKey     string
	ArtifactRef       string
	Comments          []byte
	DownloadStatus    DownloadStatus
	DownloadError     string
	RenderError       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MediaPatch is a sparse update: nil fields are left untouched. The reconciler
// only ever overwrites derived fields, never accumulates.
type MediaPatch struct {
	Title             *string
	Author            *string
	Thumbnail         *string
	ViewCount         *int64
	LikeCount         *int64
	CommentCount      *int64
	Source            *string
	Quality           *string
	DurationMs        *int64
	RemoteVideoKey    *string
	RemoteAudioKey    *string
	RemoteMetadataKey *string
	TranscriptKey     *string
	ArtifactRef       *string
	Comments          []byte
	DownloadStatus    *DownloadStatus
	DownloadError     *string
	RenderError       *string
}

// SyncStatus tracks the last channel synchronization outcome.
type SyncStatus string

const (
	SyncStatusNever     SyncStatus = "never"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Channel is the aggregate root of a channel-sync job.
type Channel struct {
	ID             string
	UserID         string
	Title          string
	Thumbnail      string
	LastSyncStatus SyncStatus
	LastSyncedAt   *time.Time
	UpdatedAt      time.Time
}

// ChannelVideo is one video listed by a channel sync, unique per
// (ChannelID, VideoID).
type ChannelVideo struct {
	ChannelID   string
	VideoID     string
	Title       string
	Thumbnail   string
	DurationMs  int64
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// Comment is one entry of a comments-download result.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	LikeCount int64  `json:"likeCount"`
	ReplyTo   string `json:"replyTo,omitempty"`
}
