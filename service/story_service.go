package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/keepsakehq/keepsake/capture"
	"github.com/keepsakehq/keepsake/events"
	"github.com/keepsakehq/keepsake/models"
	"github.com/keepsakehq/keepsake/pkg/metrics"
	"github.com/keepsakehq/keepsake/repository"
	"github.com/keepsakehq/keepsake/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrStoryNotFound    = errors.New("story session not found")
	ErrPermissionDenied = errors.New("story does not belong to user")
	// ErrNoSourceMedia is an integrity guard: a transcript must decorate a
	// committed audio/video asset on the same story. Hitting this is a
	// programming error in call ordering, not a user-facing condition.
	ErrNoSourceMedia     = errors.New("no qualifying source media asset for transcript")
	ErrUnsupportedUpload = errors.New("unsupported upload content type")
	ErrNotBinaryAsset    = errors.New("asset has no stored binary")
)

// FailurePolicy decides how a transcription failure is handled at the call
// site. The recorded media is the deliverable; the transcript is enrichment.
// A screen whose primary action is "record and auto-transcribe" surfaces the
// failure; secondary upload paths suppress it and log.
type FailurePolicy string

const (
	SurfaceFailure  FailurePolicy = "surface"
	SuppressFailure FailurePolicy = "suppress"
)

// Transcriber runs the sign-then-transcribe pipeline for a stored media
// reference.
type Transcriber interface {
	Transcribe(ctx context.Context, storagePath string) (string, error)
}

// SaveResult reports the outcome of a primary-path save. TranscriptErr is
// distinct from the save outcome: a committed asset is never rolled back
// because enrichment failed.
type SaveResult struct {
	Asset         *models.StoryAsset
	Transcript    *models.StoryAsset
	TranscriptErr error
}

// DisplayAsset is a primary asset with its companion transcript resolved.
// Transcript assets never appear as standalone entries.
type DisplayAsset struct {
	*models.StoryAsset
	TranscriptText *string `json:"transcript_text,omitempty"`
}

type StoryService struct {
	stories     repository.StorySessionRepository
	assets      repository.StoryAssetRepository
	store       storage.ObjectStore
	transcriber Transcriber
	publisher   *events.Publisher
	logger      *logrus.Logger
}

func NewStoryService(
	stories repository.StorySessionRepository,
	assets repository.StoryAssetRepository,
	store storage.ObjectStore,
	transcriber Transcriber,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *StoryService {
	return &StoryService{
		stories:     stories,
		assets:      assets,
		store:       store,
		transcriber: transcriber,
		publisher:   publisher,
		logger:      logger,
	}
}

func (s *StoryService) CreateStory(ctx context.Context, userID uuid.UUID, title string) (*models.StorySession, error) {
	story := &models.StorySession{
		UserID: userID,
		Title:  title,
	}
	if err := s.stories.Create(story); err != nil {
		return nil, fmt.Errorf("failed to create story session: %w", err)
	}
	return story, nil
}

func (s *StoryService) GetStory(ctx context.Context, id uuid.UUID) (*models.StorySession, error) {
	story, err := s.stories.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	return story, nil
}

func (s *StoryService) ListStories(ctx context.Context, userID uuid.UUID, page, pageSize int32) ([]*models.StorySession, int64, error) {
	return s.stories.GetByUserIDWithPagination(userID, page, pageSize)
}

// DeleteStory tombstones the story session. Assets and stored binaries are
// left in place; this core never hard-deletes.
func (s *StoryService) DeleteStory(ctx context.Context, storyID, userID uuid.UUID) error {
	story, err := s.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if story.UserID != userID {
		return ErrPermissionDenied
	}
	if err := s.stories.Delete(storyID); err != nil {
		return fmt.Errorf("failed to delete story session: %w", err)
	}
	s.publisher.StoryDeleted(ctx, storyID.String())
	return nil
}

// SaveRecording is the primary save path for a freshly captured blob: the
// binary is stored and its asset row committed before any transcription is
// attempted, then the transcript is produced synchronously with
// SurfaceFailure policy. A storage failure is fatal to the save; a
// transcription failure is reported separately and never undoes the save.
func (s *StoryService) SaveRecording(ctx context.Context, storyID, userID uuid.UUID, blob *capture.Blob) (*SaveResult, error) {
	story, err := s.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, ErrPermissionDenied
	}

	assetType := models.AssetTypeAudio
	if strings.HasPrefix(blob.MIMEType, "video/") {
		assetType = models.AssetTypeVideo
	}

	key := storageKey(storyID, capture.ExtensionForMIME(blob.MIMEType))
	path, err := s.store.Put(ctx, key, blob.Bytes, blob.MIMEType)
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}
	metrics.StorageOperationsTotal.WithLabelValues("put", "ok").Inc()

	mimeType := blob.MIMEType
	duration := blob.DurationSeconds
	asset := &models.StoryAsset{
		StorySessionID:  storyID,
		AssetType:       assetType,
		SourceType:      models.SourceTypeBrowserRecording,
		StoragePath:     &path,
		MIMEType:        &mimeType,
		DurationSeconds: &duration,
		WaveformPeaks:   blob.Peaks,
		CreatedByUserID: &userID,
	}
	if err := s.assets.Create(asset); err != nil {
		s.removeOrphanedObject(ctx, path)
		return nil, fmt.Errorf("failed to save asset record: %w", err)
	}
	s.publisher.AssetCreated(ctx, asset)

	transcript, terr := s.TranscribeAndAttach(ctx, asset, SurfaceFailure)
	return &SaveResult{
		Asset:         asset,
		Transcript:    transcript,
		TranscriptErr: terr,
	}, nil
}

// UploadAsset is the secondary save path for user-provided files. Audio and
// video uploads get a best-effort background transcription; its failure is
// logged and the upload still reports success.
func (s *StoryService) UploadAsset(ctx context.Context, storyID, userID uuid.UUID, filename, contentType string, data []byte) (*models.StoryAsset, error) {
	story, err := s.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, ErrPermissionDenied
	}

	assetType, err := assetTypeForUpload(contentType)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = capture.ExtensionForMIME(contentType)
	}
	key := storageKey(storyID, ext)

	path, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("put", "error").Inc()
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	metrics.StorageOperationsTotal.WithLabelValues("put", "ok").Inc()

	asset := &models.StoryAsset{
		StorySessionID:  storyID,
		AssetType:       assetType,
		SourceType:      models.SourceTypeFileUpload,
		StoragePath:     &path,
		MIMEType:        &contentType,
		CreatedByUserID: &userID,
	}
	if err := s.assets.Create(asset); err != nil {
		s.removeOrphanedObject(ctx, path)
		return nil, fmt.Errorf("failed to save asset record: %w", err)
	}
	s.publisher.AssetCreated(ctx, asset)

	if asset.IsTranscribable() {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			_, _ = s.TranscribeAndAttach(bgCtx, asset, SuppressFailure)
		}()
	}

	return asset, nil
}

// TranscribeAndAttach runs the transcription pipeline for a committed media
// asset and attaches the transcript according to the call-site policy.
// Non-media assets are skipped. With SuppressFailure the error is logged and
// swallowed; with SurfaceFailure it is returned for the user to see.
func (s *StoryService) TranscribeAndAttach(ctx context.Context, asset *models.StoryAsset, policy FailurePolicy) (*models.StoryAsset, error) {
	if !asset.IsTranscribable() {
		return nil, nil
	}

	start := time.Now()
	text, err := s.transcriber.Transcribe(ctx, *asset.StoragePath)
	metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TranscriptionsTotal.WithLabelValues(string(policy), "error").Inc()
		if policy == SuppressFailure {
			s.logger.WithError(err).WithField("asset_id", asset.ID).Warn("best-effort transcription failed")
			return nil, nil
		}
		return nil, err
	}
	metrics.TranscriptionsTotal.WithLabelValues(string(policy), "ok").Inc()

	transcript, err := s.AttachTranscript(ctx, asset.StorySessionID, asset.ID, text)
	if err != nil {
		if policy == SuppressFailure {
			s.logger.WithError(err).WithField("asset_id", asset.ID).Error("failed to attach transcript")
			return nil, nil
		}
		return nil, err
	}
	return transcript, nil
}

// AttachTranscript creates the transcription-derived text asset for a source
// media asset. The source must be a committed audio/video asset on the same
// story. Retried transcriptions replace the prior transcript for the same
// source instead of piling up duplicates.
func (s *StoryService) AttachTranscript(ctx context.Context, storyID, sourceAssetID uuid.UUID, text string) (*models.StoryAsset, error) {
	media, err := s.assets.GetMediaByStoryID(storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story media: %w", err)
	}
	found := false
	for _, m := range media {
		if m.ID == sourceAssetID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoSourceMedia
	}

	if err := s.assets.DeleteTranscriptsBySourceAssetID(storyID, sourceAssetID); err != nil {
		return nil, fmt.Errorf("failed to replace prior transcript: %w", err)
	}

	meta, err := json.Marshal(map[string]string{"source_asset_id": sourceAssetID.String()})
	if err != nil {
		return nil, err
	}

	transcript := &models.StoryAsset{
		StorySessionID: storyID,
		AssetType:      models.AssetTypeText,
		SourceType:     models.SourceTypeTranscription,
		TextContent:    &text,
		Metadata:       datatypes.JSON(meta),
	}
	if err := s.assets.Create(transcript); err != nil {
		return nil, fmt.Errorf("failed to save transcript asset: %w", err)
	}
	s.publisher.TranscriptAttached(ctx, transcript)
	return transcript, nil
}

// AttachNote adds a user-written text asset to a story.
func (s *StoryService) AttachNote(ctx context.Context, storyID, userID uuid.UUID, text string) (*models.StoryAsset, error) {
	story, err := s.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, ErrPermissionDenied
	}

	note := &models.StoryAsset{
		StorySessionID:  storyID,
		AssetType:       models.AssetTypeText,
		SourceType:      models.SourceTypeText,
		TextContent:     &text,
		CreatedByUserID: &userID,
	}
	if err := s.assets.Create(note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	s.publisher.AssetCreated(ctx, note)
	return note, nil
}

// AttachExternalMedia links externally hosted media to a story.
func (s *StoryService) AttachExternalMedia(ctx context.Context, storyID, userID uuid.UUID, url string) (*models.StoryAsset, error) {
	story, err := s.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, ErrPermissionDenied
	}

	asset := &models.StoryAsset{
		StorySessionID:  storyID,
		AssetType:       models.AssetTypeExternalMedia,
		SourceType:      models.SourceTypeExternalLink,
		TextContent:     &url,
		CreatedByUserID: &userID,
	}
	if err := s.assets.Create(asset); err != nil {
		return nil, fmt.Errorf("failed to save external media link: %w", err)
	}
	s.publisher.AssetCreated(ctx, asset)
	return asset, nil
}

// CompanionTranscript resolves the transcript attached to a media asset.
// Returns nil when no transcript exists yet.
func (s *StoryService) CompanionTranscript(ctx context.Context, assetID uuid.UUID) (*models.StoryAsset, error) {
	asset, err := s.assets.GetByID(assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	if asset.AssetType != models.AssetTypeAudio && asset.AssetType != models.AssetTypeVideo {
		return nil, ErrNoSourceMedia
	}

	transcript, err := s.assets.GetTranscriptBySourceAssetID(asset.StorySessionID, assetID)
	if err == nil {
		return transcript, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Legacy transcripts carry no source link; fall back to the story level
	// when this is the story's only media asset.
	media, err := s.assets.GetMediaByStoryID(asset.StorySessionID)
	if err != nil {
		return nil, err
	}
	if len(media) != 1 {
		return nil, nil
	}
	transcripts, err := s.assets.GetTranscriptsByStoryID(asset.StorySessionID)
	if err != nil {
		return nil, err
	}
	for _, t := range transcripts {
		if len(t.Metadata) == 0 {
			return t, nil
		}
	}
	return nil, nil
}

// ResolveDisplayAssets returns the story's assets in display order with
// transcripts folded into their source media asset as companion text.
func (s *StoryService) ResolveDisplayAssets(ctx context.Context, storyID uuid.UUID) ([]*DisplayAsset, error) {
	all, err := s.assets.GetByStoryID(storyID)
	if err != nil {
		return nil, err
	}

	bySource := make(map[uuid.UUID]*models.StoryAsset)
	var unlinked []*models.StoryAsset
	mediaCount := 0
	for _, a := range all {
		if a.IsTranscript() {
			if id, ok := transcriptSourceID(a); ok {
				bySource[id] = a
			} else {
				unlinked = append(unlinked, a)
			}
			continue
		}
		if a.AssetType == models.AssetTypeAudio || a.AssetType == models.AssetTypeVideo {
			mediaCount++
		}
	}

	var display []*DisplayAsset
	for _, a := range all {
		if a.IsTranscript() {
			continue
		}
		d := &DisplayAsset{StoryAsset: a}
		if t, ok := bySource[a.ID]; ok {
			d.TranscriptText = t.TextContent
		} else if mediaCount == 1 && len(unlinked) > 0 &&
			(a.AssetType == models.AssetTypeAudio || a.AssetType == models.AssetTypeVideo) {
			d.TranscriptText = unlinked[0].TextContent
		}
		display = append(display, d)
	}
	return display, nil
}

// PlaybackURL signs a one-hour read URL for in-app playback of a binary
// asset.
func (s *StoryService) PlaybackURL(ctx context.Context, assetID uuid.UUID) (string, error) {
	asset, err := s.assets.GetByID(assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrStoryNotFound
		}
		return "", err
	}
	if asset.StoragePath == nil {
		return "", ErrNotBinaryAsset
	}
	url, err := s.store.PresignedURL(ctx, *asset.StoragePath, storage.PlaybackURLTTL)
	if err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("presign", "error").Inc()
		return "", fmt.Errorf("failed to sign playback URL: %w", err)
	}
	metrics.StorageOperationsTotal.WithLabelValues("presign", "ok").Inc()
	return url, nil
}

func (s *StoryService) ListAssets(ctx context.Context, storyID uuid.UUID) ([]*models.StoryAsset, error) {
	return s.assets.GetByStoryID(storyID)
}

// removeOrphanedObject deletes a stored binary whose asset row never
// committed. Best-effort: a leaked object is logged, never surfaced.
func (s *StoryService) removeOrphanedObject(ctx context.Context, key string) {
	if err := s.store.Remove(ctx, key); err != nil {
		metrics.StorageOperationsTotal.WithLabelValues("remove", "error").Inc()
		s.logger.WithError(err).WithField("key", key).Warn("failed to remove orphaned object")
		return
	}
	metrics.StorageOperationsTotal.WithLabelValues("remove", "ok").Inc()
}

func storageKey(storyID uuid.UUID, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%d%s", storyID, time.Now().UnixMilli(), ext)
}

func assetTypeForUpload(contentType string) (string, error) {
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		return models.AssetTypeAudio, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.AssetTypeVideo, nil
	case strings.HasPrefix(contentType, "image/"):
		return models.AssetTypePhoto, nil
	default:
		return "", ErrUnsupportedUpload
	}
}

func transcriptSourceID(t *models.StoryAsset) (uuid.UUID, bool) {
	if len(t.Metadata) == 0 {
		return uuid.Nil, false
	}
	var meta struct {
		SourceAssetID string `json:"source_asset_id"`
	}
	if err := json.Unmarshal(t.Metadata, &meta); err != nil || meta.SourceAssetID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(meta.SourceAssetID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
