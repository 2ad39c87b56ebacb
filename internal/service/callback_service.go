package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/tunewave/api/internal/client"
	"github.com/tunewave/api/internal/model"
	"github.com/tunewave/api/internal/store"
)

// CompletionNotifier pushes completion events to a user's live clients.
// A nil notifier disables notifications without touching the pipeline.
type CompletionNotifier interface {
	NotifyTrackCompleted(userID string, track *model.Track)
	NotifyTaskProcessed(userID, taskID string, successful, failed int)
}

// CallbackService runs the ingestion pipeline for one validated callback:
// per track, fetch the audio, persist it to blob storage under a
// deterministic key, and write the metadata row. Tracks are processed
// strictly sequentially, and one track's failure never aborts its siblings.
type CallbackService struct {
	fetcher  client.AudioFetcher
	storage  client.StorageClient
	tracks   store.TrackStore
	notifier CompletionNotifier

	now func() time.Time
}

func NewCallbackService(fetcher client.AudioFetcher, storage client.StorageClient, tracks store.TrackStore, notifier CompletionNotifier) *CallbackService {
	return &CallbackService{
		fetcher:  fetcher,
		storage:  storage,
		tracks:   tracks,
		notifier: notifier,
		now:      time.Now,
	}
}

// Process handles every track of a validated envelope for the given owner
// and returns the aggregated summary. It never fails as a whole: envelope
// validation happened before this point, and everything after is per-track.
func (s *CallbackService) Process(ctx context.Context, userID string, env *model.CallbackEnvelope) *model.CallbackSummary {
	log.Printf("[Callback] Processing %d tracks for user %s, task %s", len(env.Tracks), userID, env.TaskID)

	results := make([]model.TrackOutcome, 0, len(env.Tracks))
	for i := range env.Tracks {
		results = append(results, s.processTrack(ctx, userID, env.TaskID, &env.Tracks[i]))
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	failed := len(results) - successful

	// Resolve the dispatch-time placeholder: gone once real tracks landed,
	// failed when nothing survived. Both operations are idempotent across
	// re-deliveries.
	if successful > 0 {
		if err := s.tracks.ResolvePlaceholder(ctx, env.TaskID); err != nil {
			log.Printf("[Callback] Failed to resolve placeholder for task %s: %v", env.TaskID, err)
		}
	} else {
		if err := s.tracks.FailPlaceholder(ctx, env.TaskID); err != nil {
			log.Printf("[Callback] Failed to mark placeholder for task %s: %v", env.TaskID, err)
		}
	}

	log.Printf("[Callback] Task %s complete for user %s: %d successful, %d failed", env.TaskID, userID, successful, failed)

	if s.notifier != nil {
		s.notifier.NotifyTaskProcessed(userID, env.TaskID, successful, failed)
	}

	return &model.CallbackSummary{
		TaskID:     env.TaskID,
		Processed:  len(results),
		Successful: successful,
		Failed:     failed,
		Results:    results,
	}
}

// processTrack produces exactly one outcome. A panic inside the per-track
// boundary is converted into a processing_error outcome for that track
// only; nothing escapes to the caller.
func (s *CallbackService) processTrack(ctx context.Context, userID, taskID string, t *model.TrackPayload) (out model.TrackOutcome) {
	out = model.TrackOutcome{ID: t.ID}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Callback] Panic processing track %s: %v", t.ID, r)
			out = model.TrackOutcome{ID: t.ID, Error: fmt.Sprintf("processing_error: %v", r)}
		}
	}()

	sourceURL := t.SourceURL()
	if sourceURL == "" {
		log.Printf("[Callback] No audio URL for track %s", t.ID)
		out.Error = "audio_url missing"
		return out
	}

	data, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		var dlErr *client.DownloadError
		switch {
		case errors.As(err, &dlErr):
			log.Printf("[Callback] Download failed for track %s: status %d", t.ID, dlErr.Status)
			out.Error = fmt.Sprintf("download_failed_%d", dlErr.Status)
		case errors.Is(err, client.ErrEmptyAudio):
			log.Printf("[Callback] Empty audio file for track %s", t.ID)
			out.Error = "empty_audio_file"
		default:
			log.Printf("[Callback] Error downloading track %s: %v", t.ID, err)
			out.Error = fmt.Sprintf("processing_error: %v", err)
		}
		return out
	}

	if s.storage == nil {
		out.Error = "upload_failed: storage not configured"
		return out
	}

	// Re-deliveries reuse the original row's timestamp so the storage key
	// stays identical and the blob is overwritten instead of duplicated.
	keyTime := s.now().UTC()
	if existing, gerr := s.tracks.GetTrack(ctx, t.ID); gerr == nil && existing.Status == model.TrackStatusCompleted {
		keyTime = existing.CreatedAt.UTC()
	}

	key := StorageKey(userID, keyTime, t.Title, t.ID)
	publicURL, err := s.storage.Upload(ctx, key, bytes.NewReader(data), "audio/mpeg")
	if err != nil {
		log.Printf("[Callback] Upload failed for track %s: %v", t.ID, err)
		out.Error = fmt.Sprintf("upload_failed: %v", err)
		return out
	}

	title := t.Title
	if title == "" {
		title = "Untitled"
	}
	modelName := t.ModelName
	if modelName == "" {
		modelName = "unknown"
	}

	rec := &model.Track{
		ID:           t.ID,
		UserID:       userID,
		TaskID:       taskID,
		Title:        title,
		PublicURL:    publicURL,
		ModelName:    modelName,
		Duration:     t.Duration,
		Style:        t.Tags,
		Instrumental: t.IsInstrumental(),
		Status:       model.TrackStatusCompleted,
		CreatedAt:    keyTime,
	}
	if err := s.tracks.UpsertTrack(ctx, rec); err != nil {
		log.Printf("[Callback] Database write failed for track %s: %v", t.ID, err)
		out.Error = fmt.Sprintf("db_insert_failed: %v", err)
		return out
	}

	log.Printf("[Callback] Track %s stored for user %s (%d bytes)", t.ID, userID, len(data))

	if s.notifier != nil {
		s.notifier.NotifyTrackCompleted(userID, rec)
	}

	out.Success = true
	out.PublicURL = publicURL
	out.Duration = t.Duration
	out.Title = t.Title
	return out
}

var (
	slugStrip  = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)
	slugSpaces = regexp.MustCompile(`\s+`)
)

// titleSlug reduces a display title to a storage-safe slug: strip anything
// outside alphanumerics/space/dash/underscore, cap at 50 bytes, collapse
// whitespace to underscores, lowercase.
func titleSlug(title string) string {
	if title == "" {
		title = "untitled"
	}
	s := slugStrip.ReplaceAllString(title, "")
	if len(s) > 50 {
		s = s[:50]
	}
	s = slugSpaces.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.ToLower(s)
	if s == "" {
		s = "untitled"
	}
	return s
}

/// StorageKey builds the blob key for one track: the owner as namespace
// prefix, a sortable timestamp, the title slug, and the track ID so two
// same-titled tracks from one job can never collide.
func StorageKey(userID string, ts time.Time, title, trackID string) string {
	return fmt.Sprintf("%s/%s_%s_%s.mp3", userID, ts.UTC().Format("20060102T150405"), titleSlug(title), trackID)
}
