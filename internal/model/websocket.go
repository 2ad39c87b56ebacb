package model

// WebSocket message types
const (
	WSMessageTypeTrackCompleted = "track.completed"
	WSMessageTypeTaskProcessed  = "task.processed"
	WSMessageTypePing           = "ping"
	WSMessageTypePong           = "pong"
)

// WSMessage is the minimal message frame (ping/pong).
type WSMessage struct {
	Type string `json:"type"`
}

// WSTrackMessage announces one durably persisted track to its owner.
type WSTrackMessage struct {
	Type  string `json:"type"`
	Track *Track `json:"track"`
}

// WSTaskMessage announces the end of callback processing for a task.
type WSTaskMessage struct {
	Type       string `json:"type"`
	TaskID     string `json:"taskId"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}
