package model

// WebSocket message types
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage carries the operation state when a subscriber connects
type WSSnapshotMessage struct {
	Type      string     `json:"type"`
	Operation *Operation `json:"operation"`
}

// WSProgressMessage represents a progress update for one fan-out unit
type WSProgressMessage struct {
	Type        string    `json:"type"`
	OperationID string    `json:"operationId"`
	Index       int       `json:"index"`
	Total       int       `json:"total"`
	JobID       JobHandle `json:"jobId,omitempty"`
	Phase       string    `json:"phase"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Cost        *float64  `json:"cost,omitempty"`
}

// WSCompleteMessage represents operation completion
type WSCompleteMessage struct {
	Type        string     `json:"type"`
	OperationID string     `json:"operationId"`
	Artifacts   []Artifact `json:"artifacts"`
	MirrorURLs  []string   `json:"mirrorUrls,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type        string  `json:"type"`
	OperationID string  `json:"operationId"`
	Error       WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
