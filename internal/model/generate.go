package model

// GenerateRequest is the caller-supplied generation payload. UserID, when a
// client sends it, is never trusted for authorization; the JWT subject is
// authoritative and a mismatch is only logged.
type GenerateRequest struct {
	Prompt       string `json:"prompt" validate:"required,min=1,max=2000"`
	Model        string `json:"model" validate:"omitempty,max=64"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Style        string `json:"style" validate:"omitempty,max=200"`
	Title        string `json:"title" validate:"omitempty,max=80"`
	NegativeTags string `json:"negativeTags" validate:"omitempty,max=200"`
	UserID       string `json:"user_id,omitempty"`
}

// GenerateResponse acknowledges an accepted generation job.
type GenerateResponse struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}
