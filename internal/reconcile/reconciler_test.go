package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"media-orchestrator/internal/callback"
	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/ledger"
	"media-orchestrator/internal/pricing"
)

type memMedia struct {
	mu   sync.Mutex
	rows map[string]*domain.Media
}

func newMemMedia(rows ...*domain.Media) *memMedia {
	m := &memMedia{rows: make(map[string]*domain.Media)}
	for _, row := range rows {
		copied := *row
		m.rows[row.ID] = &copied
	}
	return m
}

func (m *memMedia) GetByID(_ context.Context, id string) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memMedia) Patch(_ context.Context, id string, patch domain.MediaPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Title != nil {
		row.Title = *patch.Title
	}
	if patch.Author != nil {
		row.Author = *patch.Author
	}
	if patch.Thumbnail != nil {
		row.Thumbnail = *patch.Thumbnail
	}
	if patch.ViewCount != nil {
		row.ViewCount = *patch.ViewCount
	}
	if patch.LikeCount != nil {
		row.LikeCount = *patch.LikeCount
	}
	if patch.CommentCount != nil {
		row.CommentCount = *patch.CommentCount
	}
	if patch.Source != nil {
		row.Source = *patch.Source
	}
	if patch.Quality != nil {
		row.Quality = *patch.Quality
	}
	if patch.DurationMs != nil {
		row.DurationMs = *patch.DurationMs
	}
	if patch.RemoteVideoKey != nil {
		row.RemoteVideoKey = *patch.RemoteVideoKey
	}
	if patch.RemoteAudioKey != nil {
		row.RemoteAudioKey = *patch.RemoteAudioKey
	}
	if patch.RemoteMetadataKey != nil {
		row.RemoteMetadataKey = *patch.RemoteMetadataKey
	}
	if patch.TranscriptKey != nil {
		row.TranscriptKey = *patch.TranscriptKey
	}
	if patch.ArtifactRef != nil {
		row.ArtifactRef = *patch.ArtifactRef
	}
	if patch.Comments != nil {
		row.Comments = append([]byte(nil), patch.Comments...)
	}
	if patch.DownloadStatus != nil {
		row.DownloadStatus = *patch.DownloadStatus
	}
	if patch.DownloadError != nil {
		row.DownloadError = *patch.DownloadError
	}
	if patch.RenderError != nil {
		row.RenderError = *patch.RenderError
	}
	row.UpdatedAt = time.Now().UTC()
	return nil
}

type memChannels struct {
	mu       sync.Mutex
	channels map[string]*domain.Channel
	videos   map[string]map[string]domain.ChannelVideo
}

func newMemChannels(channels ...*domain.Channel) *memChannels {
	m := &memChannels{
		channels: make(map[string]*domain.Channel),
		videos:   make(map[string]map[string]domain.ChannelVideo),
	}
	for _, ch := range channels {
		copied := *ch
		m.channels[ch.ID] = &copied
	}
	return m
}

func (m *memChannels) GetByID(_ context.Context, id string) (*domain.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[id]; ok {
		copied := *ch
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memChannels) UpdateSync(_ context.Context, id string, status domain.SyncStatus, title, thumbnail *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[id]
	if !ok {
		return domain.ErrNotFound
	}
	ch.LastSyncStatus = status
	if title != nil {
		ch.Title = *title
	}
	if thumbnail != nil {
		ch.Thumbnail = *thumbnail
	}
	now := time.Now().UTC()
	ch.LastSyncedAt = &now
	return nil
}

func (m *memChannels) UpsertVideo(_ context.Context, v *domain.ChannelVideo) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVideo, ok := m.videos[v.ChannelID]
	if !ok {
		byVideo = make(map[string]domain.ChannelVideo)
		m.videos[v.ChannelID] = byVideo
	}
	if _, exists := byVideo[v.VideoID]; exists {
		return false, nil
	}
	byVideo[v.VideoID] = *v
	return true, nil
}

type memManifests struct {
	mu    sync.Mutex
	byJob map[string]*domain.JobManifest
}

func newMemManifests(manifests ...*domain.JobManifest) *memManifests {
	m := &memManifests{byJob: make(map[string]*domain.JobManifest)}
	for _, manifest := range manifests {
		copied := *manifest
		m.byJob[manifest.JobID] = &copied
	}
	return m
}

func (m *memManifests) Create(_ context.Context, manifest *domain.JobManifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *manifest
	m.byJob[manifest.JobID] = &copied
	return nil
}

func (m *memManifests) GetByJobID(_ context.Context, jobID string) (*domain.JobManifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if manifest, ok := m.byJob[jobID]; ok {
		copied := *manifest
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memManifests) PatchDerivedKey(_ context.Context, jobID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	manifest, ok := m.byJob[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if manifest.DerivedKeys == nil {
		manifest.DerivedKeys = make(map[string]string)
	}
	manifest.DerivedKeys[key] = value
	return nil
}

type fakeStore struct{}

func (fakeStore) PresignGet(_ context.Context, key string) (string, error) {
	return "https://store.example.com/" + key, nil
}

type fakeRemote struct {
	existing map[string]bool // by full URL; missing entry means probe error
	docs     map[string]any  // JSON documents by full URL
}

func (f *fakeRemote) Probe(_ context.Context, url string) (bool, error) {
	exists, ok := f.existing[url]
	if !ok {
		return false, fmt.Errorf("probe object: unexpected status 503")
	}
	return exists, nil
}

func (f *fakeRemote) FetchJSON(_ context.Context, url string, out any) error {
	doc, ok := f.docs[url]
	if !ok {
		return fmt.Errorf("fetch object: unexpected status 404")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

type fakeRuleRepo struct {
	rules []domain.PricingRule
}

func (f *fakeRuleRepo) Find(_ context.Context, resource domain.ResourceType, providerID, modelID string) (*domain.PricingRule, error) {
	for i := range f.rules {
		r := f.rules[i]
		if r.ResourceType == resource && r.ProviderID == providerID && r.ModelID == modelID {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRuleRepo) Upsert(_ context.Context, rule *domain.PricingRule) error {
	f.rules = append(f.rules, *rule)
	return nil
}

type fixture struct {
	reconciler *Reconciler
	media      *memMedia
	channels   *memChannels
	manifests  *memManifests
	ledger     *ledger.Service
	store      *ledger.MemoryStore
	remote     *fakeRemote
}

func newFixture(t *testing.T, media *memMedia, channels *memChannels, manifests *memManifests, remote *fakeRemote, rules ...domain.PricingRule) *fixture {
	t.Helper()
	store := ledger.NewMemoryStore()
	ledgerSvc := ledger.NewService(store, zerolog.Nop())
	if remote == nil {
		remote = &fakeRemote{}
	}
	return &fixture{
		reconciler: NewReconciler(
			media, channels, manifests, ledgerSvc,
			pricing.NewResolver(&fakeRuleRepo{rules: rules}),
			fakeStore{}, remote, zerolog.Nop(),
		),
		media:     media,
		channels:  channels,
		manifests: manifests,
		ledger:    ledgerSvc,
		store:     store,
		remote:    remote,
	}
}

func downloadManifest() *domain.JobManifest {
	return &domain.JobManifest{JobID: "job_dl", UserID: "u1", Kind: domain.TaskKindDownload, Engine: domain.EngineMediaDownloader, MediaID: "m1"}
}

func downloadRule() domain.PricingRule {
	return domain.PricingRule{ResourceType: domain.ResourceDownload, Unit: domain.UnitMinute, PricePerUnit: 1, MinCharge: 1}
}

func asrRule() domain.PricingRule {
	return domain.PricingRule{ResourceType: domain.ResourceASR, Unit: domain.UnitMinute, PricePerUnit: 2, MinCharge: 1}
}

func TestDownloadCompletedVerifiesAndCharges(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1"})
	remote := &fakeRemote{existing: map[string]bool{
		"https://store.example.com/media/m1/video.mp4": true,
	}}
	f := newFixture(t, media, newMemChannels(), newMemManifests(), remote, downloadRule())
	if _, err := f.ledger.Add(ctx, "u1", 10, domain.TxTypeGrant, nil, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	title := "fresh title"
	payload := &callback.Payload{
		JobID: "job_dl", MediaID: "m1", Status: callback.StatusCompleted,
		Engine:     domain.EngineMediaDownloader,
		Outputs:    callback.Outputs{Video: &callback.Artifact{Key: "media/m1/video.mp4"}},
		Metadata:   &callback.Metadata{Title: &title},
		DurationMs: 120_000,
	}
	row, _ := media.GetByID(ctx, "m1")
	manifest := downloadManifest()

	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.RemoteVideoKey != "media/m1/video.mp4" {
		t.Fatalf("video key not persisted: %q", row.RemoteVideoKey)
	}
	if row.Title != "fresh title" || row.DownloadStatus != domain.DownloadStatusCompleted {
		t.Fatalf("metadata/status not applied: %+v", row)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 8 {
		t.Fatalf("usage charge: got balance %d want 8", balance)
	}

	// Replaying the identical payload is a pure overwrite and charges nothing.
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("replay: %v", err)
	}
	balance, _ = f.ledger.Balance(ctx, "u1")
	if balance != 8 {
		t.Fatalf("replay double-charged: balance %d", balance)
	}
}

func TestDownloadCompletedKeepsOldKeyWhenProbe404s(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", RemoteVideoKey: "media/m1/previous.mp4"})
	remote := &fakeRemote{existing: map[string]bool{
		"https://store.example.com/media/m1/ghost.mp4": false,
	}}
	f := newFixture(t, media, newMemChannels(), newMemManifests(), remote, downloadRule())

	payload := &callback.Payload{
		JobID: "job_dl", MediaID: "m1", Status: callback.StatusCompleted,
		Engine:  domain.EngineMediaDownloader,
		Outputs: callback.Outputs{Video: &callback.Artifact{Key: "media/m1/ghost.mp4"}},
	}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, downloadManifest(), row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.RemoteVideoKey != "media/m1/previous.mp4" {
		t.Fatalf("unverified key overwrote stored key: %q", row.RemoteVideoKey)
	}
	if row.DownloadStatus != domain.DownloadStatusCompleted {
		t.Fatalf("status: %q", row.DownloadStatus)
	}
}

func TestDownloadCompletedTreatsProbeErrorAsAbsent(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", RemoteVideoKey: "media/m1/previous.mp4"})
	// No probe entry: every probe errors.
	f := newFixture(t, media, newMemChannels(), newMemManifests(), &fakeRemote{}, downloadRule())

	payload := &callback.Payload{
		JobID: "job_dl", MediaID: "m1", Status: callback.StatusCompleted,
		Engine:  domain.EngineMediaDownloader,
		Outputs: callback.Outputs{Video: &callback.Artifact{Key: "media/m1/new.mp4"}},
	}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, downloadManifest(), row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.RemoteVideoKey != "media/m1/previous.mp4" {
		t.Fatalf("inconclusive probe overwrote stored key: %q", row.RemoteVideoKey)
	}
}

func TestDownloadFailedTouchesNoKeys(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", RemoteVideoKey: "media/m1/previous.mp4"})
	f := newFixture(t, media, newMemChannels(), newMemManifests(), nil, downloadRule())

	payload := &callback.Payload{
		JobID: "job_dl", MediaID: "m1", Status: callback.StatusFailed,
		Engine: domain.EngineMediaDownloader, Error: "fetch blocked",
	}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, downloadManifest(), row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.RemoteVideoKey != "media/m1/previous.mp4" {
		t.Fatalf("failure touched video key: %q", row.RemoteVideoKey)
	}
	if row.DownloadStatus != domain.DownloadStatusFailed || row.DownloadError != "fetch blocked" {
		t.Fatalf("failure not recorded: %+v", row)
	}
}

func TestChannelSyncUpsertsListedVideosOnce(t *testing.T) {
	ctx := context.Background()
	channels := newMemChannels(&domain.Channel{ID: "c1", UserID: "u1", Title: "old title"})
	// v1 already known from an earlier sync.
	channels.videos["c1"] = map[string]domain.ChannelVideo{"v1": {ChannelID: "c1", VideoID: "v1"}}

	remote := &fakeRemote{docs: map[string]any{
		"https://store.example.com/sync/c1.json": map[string]any{
			"videos": []map[string]any{
				{"videoId": "v1", "title": "first"},
				{"videoId": "v2", "title": "second"},
				{"videoId": "v3", "title": "third"},
			},
		},
	}}
	f := newFixture(t, newMemMedia(), channels, newMemManifests(), remote)

	manifest := &domain.JobManifest{JobID: "job_cs", UserID: "u1", Kind: domain.TaskKindChannelSync, Engine: domain.EngineMediaDownloader, ChannelID: "c1"}
	payload := &callback.Payload{
		JobID: "job_cs", Status: callback.StatusCompleted, Engine: domain.EngineMediaDownloader,
		Outputs: callback.Outputs{Metadata: &callback.Artifact{Key: "sync/c1.json"}},
	}
	if err := f.reconciler.Apply(ctx, manifest, nil, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := len(channels.videos["c1"]); got != 3 {
		t.Fatalf("expected 3 stored videos total, got %d", got)
	}
	ch, _ := channels.GetByID(ctx, "c1")
	if ch.LastSyncStatus != domain.SyncStatusCompleted {
		t.Fatalf("sync status: %q", ch.LastSyncStatus)
	}
	// The listing omitted title/thumbnail; previous values survive.
	if ch.Title != "old title" {
		t.Fatalf("title overwritten: %q", ch.Title)
	}
}

func TestChannelSyncFailedSetsStatusOnly(t *testing.T) {
	ctx := context.Background()
	channels := newMemChannels(&domain.Channel{ID: "c1", UserID: "u1", Title: "keep me"})
	f := newFixture(t, newMemMedia(), channels, newMemManifests(), nil)

	manifest := &domain.JobManifest{JobID: "job_cs", UserID: "u1", Kind: domain.TaskKindChannelSync, Engine: domain.EngineMediaDownloader, ChannelID: "c1"}
	payload := &callback.Payload{JobID: "job_cs", Status: callback.StatusFailed, Engine: domain.EngineMediaDownloader, Error: "listing failed"}
	if err := f.reconciler.Apply(ctx, manifest, nil, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	ch, _ := channels.GetByID(ctx, "c1")
	if ch.LastSyncStatus != domain.SyncStatusFailed || ch.Title != "keep me" {
		t.Fatalf("unexpected channel state: %+v", ch)
	}
	if len(channels.videos["c1"]) != 0 {
		t.Fatal("failed sync inserted videos")
	}
}

func TestCommentsDownloadOverwritesComments(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", Comments: []byte(`[{"id":"stale"}]`), CommentCount: 1})
	remote := &fakeRemote{docs: map[string]any{
		"https://store.example.com/comments/m1.json": map[string]any{
			"comments": []map[string]any{
				{"id": "c1", "author": "a", "text": "first"},
				{"id": "c2", "author": "b", "text": "second"},
			},
		},
	}}
	f := newFixture(t, media, newMemChannels(), newMemManifests(), remote)

	manifest := &domain.JobManifest{JobID: "job_cm", UserID: "u1", Kind: domain.TaskKindCommentsDownload, Engine: domain.EngineMediaDownloader, MediaID: "m1"}
	payload := &callback.Payload{
		JobID: "job_cm", MediaID: "m1", Status: callback.StatusCompleted, Engine: domain.EngineMediaDownloader,
		Outputs: callback.Outputs{Metadata: &callback.Artifact{Key: "comments/m1.json"}},
	}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.CommentCount != 2 {
		t.Fatalf("comment count: got %d want 2", row.CommentCount)
	}
	var comments []domain.Comment
	if err := json.Unmarshal(row.Comments, &comments); err != nil {
		t.Fatalf("stored comments invalid: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != "c1" {
		t.Fatalf("comments not overwritten: %+v", comments)
	}
}

func TestTranscribeChargesASROnce(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1"})
	f := newFixture(t, media, newMemChannels(), newMemManifests(), nil, asrRule())
	if _, err := f.ledger.Add(ctx, "u1", 10, domain.TxTypeGrant, nil, "", nil); err != nil {
		t.Fatalf("grant: %v", err)
	}

	manifest := &domain.JobManifest{JobID: "job_asr", UserID: "u1", Kind: domain.TaskKindTranscribe, Engine: domain.EngineTranscriber, MediaID: "m1"}
	payload := &callback.Payload{
		JobID: "job_asr", MediaID: "m1", Status: callback.StatusCompleted, Engine: domain.EngineTranscriber,
		Outputs:    callback.Outputs{Metadata: &callback.Artifact{Key: "transcripts/m1.json"}},
		DurationMs: 120_000,
	}
	row, _ := media.GetByID(ctx, "m1")

	// Two identical deliveries seconds apart.
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 6 {
		t.Fatalf("120s at 2pt/min must charge 4 exactly once: balance %d", balance)
	}
	rows, _ := f.store.ListTransactions(ctx, "u1", 100)
	var asrCharges int
	for _, tx := range rows {
		if tx.Type == domain.TxTypeASRUsage && tx.RefID == "job_asr" {
			asrCharges++
		}
	}
	if asrCharges != 1 {
		t.Fatalf("expected one asr transaction, got %d", asrCharges)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.TranscriptKey != "transcripts/m1.json" {
		t.Fatalf("transcript key: %q", row.TranscriptKey)
	}
}

func TestTranscribeWithoutRuleIsFree(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1"})
	f := newFixture(t, media, newMemChannels(), newMemManifests(), nil)

	manifest := &domain.JobManifest{JobID: "job_asr", UserID: "u1", Kind: domain.TaskKindTranscribe, Engine: domain.EngineTranscriber, MediaID: "m1"}
	payload := &callback.Payload{JobID: "job_asr", MediaID: "m1", Status: callback.StatusCompleted, Engine: domain.EngineTranscriber, DurationMs: 60_000}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rows, _ := f.store.ListTransactions(ctx, "u1", 10)
	if len(rows) != 0 {
		t.Fatalf("missing rule must mean free, got %d transactions", len(rows))
	}
}

func TestMetadataRefreshPatchesOnlyPresentFields(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", Title: "keep", Author: "keep author", ViewCount: 7})
	f := newFixture(t, media, newMemChannels(), newMemManifests(), nil)

	views := int64(999)
	manifest := &domain.JobManifest{JobID: "job_mr", UserID: "u1", Kind: domain.TaskKindMetadataRefresh, Engine: domain.EngineMediaDownloader, MediaID: "m1"}
	payload := &callback.Payload{
		JobID: "job_mr", MediaID: "m1", Status: callback.StatusCompleted, Engine: domain.EngineMediaDownloader,
		Metadata: &callback.Metadata{ViewCount: &views},
	}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.ViewCount != 999 {
		t.Fatalf("view count not patched: %d", row.ViewCount)
	}
	if row.Title != "keep" || row.Author != "keep author" {
		t.Fatalf("absent fields mutated: %+v", row)
	}
}

func TestRenderCompletedWritesPointerArtifact(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", RenderError: "[renderer-ffmpeg] old failure"})
	manifests := newMemManifests(&domain.JobManifest{JobID: "job_r1", UserID: "u1", Kind: domain.TaskKindRender, Engine: domain.EngineRendererFFmpeg, MediaID: "m1"})
	f := newFixture(t, media, newMemChannels(), manifests, nil)

	manifest, _ := manifests.GetByJobID(ctx, "job_r1")
	payload := &callback.Payload{JobID: "job_r1", MediaID: "m1", Status: callback.StatusCompleted, Engine: domain.EngineRendererFFmpeg}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.ArtifactRef != "remote:orchestrator:job_r1" {
		t.Fatalf("artifact ref: %q", row.ArtifactRef)
	}
	if row.RenderError != "" {
		t.Fatalf("render error not cleared: %q", row.RenderError)
	}
	stored, _ := manifests.GetByJobID(ctx, "job_r1")
	if stored.DerivedKeys["renderedArtifactJobId"] != "job_r1" {
		t.Fatalf("manifest not patched: %+v", stored.DerivedKeys)
	}
}

func TestRenderFailureNeverDestroysPriorArtifact(t *testing.T) {
	ctx := context.Background()
	media := newMemMedia(&domain.Media{ID: "m1", UserID: "u1", ArtifactRef: "remote:orchestrator:job_ok"})
	manifests := newMemManifests(&domain.JobManifest{JobID: "job_r2", UserID: "u1", Kind: domain.TaskKindRender, Engine: domain.EngineRendererRemotion, MediaID: "m1"})
	f := newFixture(t, media, newMemChannels(), manifests, nil)

	manifest, _ := manifests.GetByJobID(ctx, "job_r2")
	payload := &callback.Payload{JobID: "job_r2", MediaID: "m1", Status: callback.StatusFailed, Engine: domain.EngineRendererRemotion, Error: "composition crashed"}
	row, _ := media.GetByID(ctx, "m1")
	if err := f.reconciler.Apply(ctx, manifest, row, payload); err != nil {
		t.Fatalf("apply: %v", err)
	}
	row, _ = media.GetByID(ctx, "m1")
	if row.ArtifactRef != "remote:orchestrator:job_ok" {
		t.Fatalf("failed re-render destroyed artifact: %q", row.ArtifactRef)
	}
	if row.RenderError != "[renderer-remotion] composition crashed" {
		t.Fatalf("namespaced error: %q", row.RenderError)
	}
}
