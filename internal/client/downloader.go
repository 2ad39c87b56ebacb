package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tunewave/api/internal/config"
)

// ErrEmptyAudio is returned when a download succeeds but carries no bytes.
// An empty file is never a valid generation result.
var ErrEmptyAudio = errors.New("empty audio file")

// DownloadError reports a non-success HTTP status from the audio source.
type DownloadError struct {
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.Status)
}

// AudioFetcher retrieves the binary content of one generated track.
type AudioFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Downloader implements AudioFetcher over plain HTTP. No retries: the
// pipeline treats a failed fetch as final for that track and relies on
// callback re-delivery for another attempt.
type Downloader struct {
	httpClient *http.Client
}

// NewDownloader creates a Downloader with the configured per-track timeout,
// so one stalled source cannot starve the rest of the job.
func NewDownloader(cfg *config.FetchConfig) *Downloader {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the audio at url and returns the raw bytes.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DownloadError{Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	return data, nil
}
