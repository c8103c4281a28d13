// Package reconcile turns verified callback payloads into task, media and
// channel state plus idempotent billing. Each (engine, kind) branch is a pure
// overwrite of derived fields: replaying the same payload produces the same
// state and charges nothing further.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"media-orchestrator/internal/callback"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/infra"
	"media-orchestrator/internal/ledger"
	"media-orchestrator/internal/pricing"
)

// ObjectStore is the presign slice of the object-storage client.
type ObjectStore interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

// RemoteReader reads remote objects: existence probes and small JSON
// documents behind presigned URLs.
type RemoteReader interface {
	Probe(ctx context.Context, url string) (bool, error)
	FetchJSON(ctx context.Context, url string, out any) error
}

// Reconciler applies one verified payload to the aggregates a job owns.
type Reconciler struct {
	media     domain.MediaRepository
	channels  domain.ChannelRepository
	manifests domain.ManifestRepository
	ledger    *ledger.Service
	pricing   *pricing.Resolver
	store     ObjectStore
	remote    RemoteReader
	logger    zerolog.Logger
}

func NewReconciler(
	media domain.MediaRepository,
	channels domain.ChannelRepository,
	manifests domain.ManifestRepository,
	ledgerSvc *ledger.Service,
	pricingResolver *pricing.Resolver,
	store ObjectStore,
	remote RemoteReader,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		media:     media,
		channels:  channels,
		manifests: manifests,
		ledger:    ledgerSvc,
		pricing:   pricingResolver,
		store:     store,
		remote:    remote,
		logger:    logger,
	}
}

// Apply routes the payload to the branch for the manifest's kind. media is
// the already-resolved target for media-bound kinds and nil otherwise.
func (r *Reconciler) Apply(ctx context.Context, manifest *domain.JobManifest, media *domain.Media, p *callback.Payload) error {
	switch manifest.Kind {
	case domain.TaskKindDownload:
		return r.applyDownload(ctx, manifest, media, p)
	case domain.TaskKindCommentsDownload:
		return r.applyCommentsDownload(ctx, media, p)
	case domain.TaskKindChannelSync:
		return r.applyChannelSync(ctx, manifest, p)
	case domain.TaskKindMetadataRefresh:
		return r.applyMetadataRefresh(ctx, media, p)
	case domain.TaskKindTranscribe:
		return r.applyTranscribe(ctx, manifest, media, p)
	case domain.TaskKindRender:
		return r.applyRender(ctx, manifest, media, p)
	default:
		return fmt.Errorf("reconcile: unknown kind %q: %w", manifest.Kind, domain.ErrValidation)
	}
}

func (r *Reconciler) applyDownload(ctx context.Context, manifest *domain.JobManifest, media *domain.Media, p *callback.Payload) error {
	if p.Status != callback.StatusCompleted {
		status := domain.DownloadStatusFailed
		patch := domain.MediaPatch{DownloadStatus: &status, DownloadError: &p.Error}
		// Existing object keys are never touched on failure.
		return r.media.Patch(ctx, media.ID, patch)
	}

	patch := metadataPatch(p.Metadata)
	if key := r.verifiedKey(ctx, p.Outputs.Video); key != "" {
		patch.RemoteVideoKey = &key
	}
	if key := r.verifiedKey(ctx, p.Outputs.Audio); key != "" {
		patch.RemoteAudioKey = &key
	}
	if p.Outputs.Metadata != nil && p.Outputs.Metadata.Key != "" {
		patch.RemoteMetadataKey = &p.Outputs.Metadata.Key
	}
	if p.DurationMs > 0 {
		patch.DurationMs = &p.DurationMs
	}
	status := domain.DownloadStatusCompleted
	empty := ""
	patch.DownloadStatus = &status
	patch.DownloadError = &empty
	if err := r.media.Patch(ctx, media.ID, patch); err != nil {
		return fmt.Errorf("reconcile: patch media %s: %w", media.ID, err)
	}

	return r.chargeUsage(ctx, manifest, domain.ResourceDownload, domain.TxTypeDownloadUsage, p.DurationMs, "download usage")
}

// verifiedKey returns the artifact key only when the remote object provably
// exists. An unverifiable key is dropped so a previously stored key is never
// overwritten with an unverified value.
func (r *Reconciler) verifiedKey(ctx context.Context, artifact *callback.Artifact) string {
	if artifact == nil || artifact.Key == "" {
		return ""
	}
	url := artifact.URL
	if url == "" {
		presigned, err := r.store.PresignGet(ctx, artifact.Key)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", artifact.Key).Msg("reconcile: presign for probe failed")
			return ""
		}
		url = presigned
	}
	exists, err := r.remote.Probe(ctx, url)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", artifact.Key).Msg("reconcile: object probe inconclusive, treating key as absent")
		return ""
	}
	if !exists {
		return ""
	}
	return artifact.Key
}

func (r *Reconciler) applyCommentsDownload(ctx context.Context, media *domain.Media, p *callback.Payload) error {
	if p.Status != callback.StatusCompleted {
		return nil
	}
	url, err := r.metadataURL(ctx, p)
	if err != nil {
		return err
	}
	var doc struct {
		Comments []domain.Comment `json:"comments"`
	}
	if err := r.remote.FetchJSON(ctx, url, &doc); err != nil {
		return fmt.Errorf("reconcile: fetch comments: %w: %w", err, domain.ErrUpstream)
	}
	raw, err := marshalComments(doc.Comments)
	if err != nil {
		return err
	}
	count := int64(len(doc.Comments))
	return r.media.Patch(ctx, media.ID, domain.MediaPatch{Comments: raw, CommentCount: &count})
}

// channelListing is the metadata JSON a channel-sync job uploads.
type channelListing struct {
	Title     *string `json:"title"`
	Thumbnail *string `json:"thumbnail"`
	Videos    []struct {
		VideoID     string     `json:"videoId"`
		Title       string     `json:"title"`
		Thumbnail   string     `json:"thumbnail"`
		DurationMs  int64      `json:"durationMs"`
		PublishedAt *time.Time `json:"publishedAt"`
	} `json:"videos"`
}

func (r *Reconciler) applyChannelSync(ctx context.Context, manifest *domain.JobManifest, p *callback.Payload) error {
	channelID := manifest.ChannelID
	if channelID == "" {
		return fmt.Errorf("reconcile: channel sync without channel id: %w", domain.ErrValidation)
	}
	if p.Status != callback.StatusCompleted {
		return r.channels.UpdateSync(ctx, channelID, domain.SyncStatusFailed, nil, nil)
	}

	url, err := r.metadataURL(ctx, p)
	if err != nil {
		return err
	}
	var listing channelListing
	if err := r.remote.FetchJSON(ctx, url, &listing); err != nil {
		return fmt.Errorf("reconcile: fetch channel listing: %w: %w", err, domain.ErrUpstream)
	}

	inserted := 0
	for _, v := range listing.Videos {
		if v.VideoID == "" {
			continue
		}
		fresh, err := r.channels.UpsertVideo(ctx, &domain.ChannelVideo{
			ChannelID:   channelID,
			VideoID:     v.VideoID,
			Title:       v.Title,
			Thumbnail:   v.Thumbnail,
			DurationMs:  v.DurationMs,
			PublishedAt: v.PublishedAt,
		})
		if err != nil {
			return fmt.Errorf("reconcile: upsert channel video %s: %w", v.VideoID, err)
		}
		if fresh {
			inserted++
		}
	}
	r.logger.Info().
		Str("channel_id", channelID).
		Int("listed", len(listing.Videos)).
		Int("inserted", inserted).
		Msg("reconcile: channel sync applied")

	// Previous title/thumbnail survive when the payload omits them.
	return r.channels.UpdateSync(ctx, channelID, domain.SyncStatusCompleted, listing.Title, listing.Thumbnail)
}

func (r *Reconciler) applyMetadataRefresh(ctx context.Context, media *domain.Media, p *callback.Payload) error {
	if p.Status != callback.StatusCompleted {
		return nil
	}
	patch := metadataPatch(p.Metadata)
	if p.DurationMs > 0 {
		patch.DurationMs = &p.DurationMs
	}
	return r.media.Patch(ctx, media.ID, patch)
}

func (r *Reconciler) applyTranscribe(ctx context.Context, manifest *domain.JobManifest, media *domain.Media, p *callback.Payload) error {
	if p.Status != callback.StatusCompleted {
		return nil
	}
	if p.Outputs.Metadata != nil && p.Outputs.Metadata.Key != "" {
		patch := domain.MediaPatch{TranscriptKey: &p.Outputs.Metadata.Key}
		if err := r.media.Patch(ctx, media.ID, patch); err != nil {
			return fmt.Errorf("reconcile: patch transcript key: %w", err)
		}
	}
	return r.chargeUsage(ctx, manifest, domain.ResourceASR, domain.TxTypeASRUsage, p.DurationMs, "asr usage")
}

func (r *Reconciler) applyRender(ctx context.Context, manifest *domain.JobManifest, media *domain.Media, p *callback.Payload) error {
	if p.Status != callback.StatusCompleted {
		// A failed re-render must never destroy a prior successful artifact;
		// only the namespaced error string is written.
		msg := fmt.Sprintf("[%s] %s", p.Engine, p.Error)
		return r.media.Patch(ctx, media.ID, domain.MediaPatch{RenderError: &msg})
	}

	// The artifact stays in the orchestrator's store; record a pointer, not a
	// local path.
	ref := "remote:orchestrator:" + p.JobID
	empty := ""
	if err := r.media.Patch(ctx, media.ID, domain.MediaPatch{ArtifactRef: &ref, RenderError: &empty}); err != nil {
		return fmt.Errorf("reconcile: patch artifact ref: %w", err)
	}
	infra.BestEffort(r.logger, "patch manifest rendered artifact", func() error {
		return r.manifests.PatchDerivedKey(ctx, manifest.JobID, "renderedArtifactJobId", p.JobID)
	})
	return nil
}

// chargeUsage bills a duration-metered resource with the job id as the
// idempotency ref. A missing rule means the resource is free/untracked.
func (r *Reconciler) chargeUsage(ctx context.Context, manifest *domain.JobManifest, resource domain.ResourceType, txType domain.PointTxType, durationMs int64, remark string) error {
	if durationMs <= 0 {
		return nil
	}
	rule, err := r.pricing.Resolve(ctx, resource, "", "")
	if err != nil {
		if errors.Is(err, domain.ErrPricingRuleNotFound) {
			return nil
		}
		return fmt.Errorf("reconcile: resolve %s pricing: %w", resource, err)
	}
	cost, err := pricing.DurationCost(rule, durationMs)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	charged, _, err := r.ledger.ChargeOnce(ctx, manifest.UserID, cost, txType, manifest.JobID, remark, nil)
	if err != nil {
		return fmt.Errorf("reconcile: charge %s: %w", resource, err)
	}
	if charged > 0 {
		r.logger.Info().
			Str("job_id", manifest.JobID).
			Str("user_id", manifest.UserID).
			Int64("points", charged).
			Str("resource", string(resource)).
			Msg("reconcile: usage charged")
	}
	return nil
}

// metadataURL resolves the URL of the payload's metadata artifact, presigning
// the key when no URL was delivered.
func (r *Reconciler) metadataURL(ctx context.Context, p *callback.Payload) (string, error) {
	artifact := p.Outputs.Metadata
	if artifact == nil || (artifact.URL == "" && artifact.Key == "") {
		return "", fmt.Errorf("reconcile: payload has no metadata output: %w", domain.ErrValidation)
	}
	if artifact.URL != "" {
		return artifact.URL, nil
	}
	url, err := r.store.PresignGet(ctx, artifact.Key)
	if err != nil {
		return "", fmt.Errorf("reconcile: presign metadata %s: %w", artifact.Key, err)
	}
	return url, nil
}

// marshalComments stores an overwrite-only comment list; an empty result is
// an empty array, not null, so replays stay byte-identical.
func marshalComments(comments []domain.Comment) ([]byte, error) {
	if comments == nil {
		comments = []domain.Comment{}
	}
	raw, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("reconcile: encode comments: %w", err)
	}
	return raw, nil
}

// metadataPatch maps sparse payload metadata onto a media patch; absent
// fields stay untouched.
func metadataPatch(meta *callback.Metadata) domain.MediaPatch {
	var patch domain.MediaPatch
	if meta == nil {
		return patch
	}
	patch.Title = meta.Title
	patch.Author = meta.Author
	patch.Thumbnail = meta.Thumbnail
	patch.ViewCount = meta.ViewCount
	patch.LikeCount = meta.LikeCount
	patch.CommentCount = meta.CommentCount
	patch.Source = meta.Source
	patch.Quality = meta.Quality
	return patch
}
