package model

import "time"

// TrackStatus is the lifecycle state of a persisted track row.
type TrackStatus string

const (
	TrackStatusProcessing TrackStatus = "processing"
	TrackStatusCompleted  TrackStatus = "completed"
	TrackStatusFailed     TrackStatus = "failed"
)

// Track is one persisted media record. ID is the external track identifier
// (or the task identifier for the dispatch-time placeholder row).
type Track struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	TaskID       string      `json:"task_id"`
	Title        string      `json:"title"`
	PublicURL    string      `json:"public_url,omitempty"`
	ModelName    string      `json:"model_name,omitempty"`
	Duration     *float64    `json:"duration,omitempty"`
	Style        string      `json:"style,omitempty"`
	Instrumental bool        `json:"instrumental"`
	Status       TrackStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}
