package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SunoSuccessCode is the status sentinel Suno sends on a successful job.
const SunoSuccessCode = 200

// UnknownTaskID is substituted when a callback omits its task identifier.
const UnknownTaskID = "unknown-task"

// TrackPayload is one produced track inside a callback delivery. The audio
// location arrives under audio_url, or source_audio_url on older deliveries.
type TrackPayload struct {
	ID             string   `json:"id"`
	AudioURL       string   `json:"audio_url"`
	SourceAudioURL string   `json:"source_audio_url"`
	Title          string   `json:"title"`
	Duration       *float64 `json:"duration"`
	ModelName      string   `json:"model_name"`
	Tags           string   `json:"tags"`
	Type           string   `json:"type"`
}

// SourceURL returns the canonical audio URL, falling back to the legacy
// field name. Empty means the track carries no fetchable source.
func (t *TrackPayload) SourceURL() string {
	if t.AudioURL != "" {
		return t.AudioURL
	}
	return t.SourceAudioURL
}

// IsInstrumental reports whether the track was generated without vocals.
func (t *TrackPayload) IsInstrumental() bool {
	return t.Type == "instrumental"
}

// CallbackEnvelope is a fully validated callback body. Instances exist only
// via ParseCallbackEnvelope; any structural violation yields an
// EnvelopeError instead, so downstream code never sees a partial envelope.
type CallbackEnvelope struct {
	Code   int
	TaskID string
	Tracks []TrackPayload
}

// EnvelopeError is a terminal envelope rejection: a human-readable reason
// plus the offending payload fragment.
type EnvelopeError struct {
	Reason string
	Extra  interface{}
}

func (e *EnvelopeError) Error() string { return e.Reason }

// ParseCallbackEnvelope validates raw callback JSON into a typed envelope.
// Checks run in order: body parses, code equals the success sentinel, the
// nested data.data field is an array, and that array is non-empty. Track
// ids missing from the payload are filled with fresh UUIDs so every track
// is individually addressable.
func ParseCallbackEnvelope(body []byte) (*CallbackEnvelope, *EnvelopeError) {
	var raw struct {
		Code *int            `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &EnvelopeError{Reason: "Invalid JSON payload"}
	}

	if raw.Code == nil || *raw.Code != SunoSuccessCode {
		return nil, &EnvelopeError{Reason: "Unexpected code from Suno", Extra: asFragment(body)}
	}

	var inner struct {
		TaskID string          `json:"task_id"`
		Tracks json.RawMessage `json:"data"`
	}
	if len(raw.Data) == 0 || string(raw.Data) == "null" ||
		json.Unmarshal(raw.Data, &inner) != nil {
		return nil, &EnvelopeError{Reason: "Missing track array in callback", Extra: asFragment(raw.Data)}
	}

	var tracks []TrackPayload
	if len(inner.Tracks) == 0 || string(inner.Tracks) == "null" ||
		json.Unmarshal(inner.Tracks, &tracks) != nil {
		return nil, &EnvelopeError{Reason: "Missing track array in callback", Extra: asFragment(raw.Data)}
	}

	if len(tracks) == 0 {
		return nil, &EnvelopeError{Reason: "Track list empty", Extra: asFragment(raw.Data)}
	}

	taskID := inner.TaskID
	if taskID == "" {
		taskID = UnknownTaskID
	}

	for i := range tracks {
		if tracks[i].ID == "" {
			tracks[i].ID = uuid.New().String()
		}
	}

	return &CallbackEnvelope{
		Code:   *raw.Code,
		TaskID: taskID,
		Tracks: tracks,
	}, nil
}

// asFragment decodes a payload fragment for inclusion in a rejection body.
func asFragment(data []byte) interface{} {
	var v interface{}
	if len(data) == 0 || json.Unmarshal(data, &v) != nil {
		return map[string]interface{}{}
	}
	return v
}

// TrackOutcome is the per-track processing result reported back to Suno.
type TrackOutcome struct {
	ID        string   `json:"id"`
	Success   bool     `json:"success"`
	PublicURL string   `json:"publicUrl,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	Title     string   `json:"title,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// CallbackSummary aggregates one callback invocation. Results preserve the
// delivery order of the tracks.
type CallbackSummary struct {
	TaskID     string
	Processed  int
	Successful int
	Failed     int
	Results    []TrackOutcome
}
