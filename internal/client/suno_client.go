package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/tunewave/api/internal/config"
)

// MusicDispatcher forwards generation jobs to the external music service.
type MusicDispatcher interface {
	Generate(ctx context.Context, req *GenerateJobRequest) (string, error)
}

// GenerateJobRequest is the outbound generation payload. CallBackURL is
// minted by this service and already carries the owner identity; no caller
// identity field ever appears here.
type GenerateJobRequest struct {
	Prompt       string `json:"prompt"`
	Model        string `json:"model,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	NegativeTags string `json:"negativeTags,omitempty"`
	CallBackURL  string `json:"callBackUrl"`
}

// UpstreamError reports a non-success response from the Suno API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("suno API error (status %d): %s", e.Status, e.Body)
}

// SunoClient implements MusicDispatcher for the Suno API.
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewSunoClient creates a new Suno API client.
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// IsConfigured returns true if the client has valid configuration.
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Generate submits a generation job and returns the external task ID.
func (c *SunoClient) Generate(ctx context.Context, genReq *GenerateJobRequest) (string, error) {
	bodyBytes, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/api/v1/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Suno API] → POST %s", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Suno API] ✗ POST %s request failed: %v", url, err)
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Suno API] ← %d POST %s", resp.StatusCode, url)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if result.Code != 200 || result.Data.TaskID == "" {
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return result.Data.TaskID, nil
}
