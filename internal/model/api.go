package model

import "time"

// GenerationStartRequest represents the request to start a generation
type GenerationStartRequest struct {
	Model          string         `json:"model" validate:"required"`
	Prompt         string         `json:"prompt" validate:"required,max=4000"`
	Images         []ImagePayload `json:"images" validate:"omitempty,max=10,dive"`
	Duration       int            `json:"duration" validate:"omitempty,min=1,max=60"`
	GuidanceScale  float64        `json:"guidanceScale" validate:"omitempty,min=0,max=1"`
	Width          int            `json:"width" validate:"omitempty,min=256,max=4096"`
	Height         int            `json:"height" validate:"omitempty,min=256,max=4096"`
	NegativePrompt string         `json:"negativePrompt" validate:"max=2000"`
	ArtifactCount  int            `json:"artifactCount" validate:"omitempty,min=1,max=8"`
	Seed           *int64         `json:"seed" validate:"omitempty,min=0"`
}

// ImagePayload is an input image supplied as a data URI
type ImagePayload struct {
	DataURI string `json:"dataUri" validate:"required,startswith=data:"`
	Name    string `json:"name"`
}

// GenerationStartResponse represents the response after starting a generation
type GenerationStartResponse struct {
	OperationID   string    `json:"operationId"`
	Status        JobStatus `json:"status"`
	EstimatedCost float64   `json:"estimatedCost"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GenerationResultResponse represents a finished generation
type GenerationResultResponse struct {
	OperationID  string     `json:"operationId"`
	Model        string     `json:"model"`
	Artifacts    []Artifact `json:"artifacts"`
	MirrorURLs   []string   `json:"mirrorUrls,omitempty"`
	ReportedCost *float64   `json:"reportedCost,omitempty"`
	ElapsedMs    int64      `json:"elapsedMs"`
}

// CancelResponse represents the response to a cancel request
type CancelResponse struct {
	Success     bool      `json:"success"`
	OperationID string    `json:"operationId"`
	Status      JobStatus `json:"status"`
}

// ResetResponse represents the response to a workspace reset
type ResetResponse struct {
	Canceled int `json:"canceled"`
	Removed  int `json:"removed"`
}

// EstimateRequest asks for a projected price
type EstimateRequest struct {
	Model         string `json:"model" validate:"required"`
	Duration      int    `json:"duration" validate:"omitempty,min=1,max=60"`
	ArtifactCount int    `json:"artifactCount" validate:"omitempty,min=1,max=8"`
}

// EstimateResponse carries the projected price
type EstimateResponse struct {
	Model         string  `json:"model"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// EncodeResponse is returned by the encode endpoint
type EncodeResponse struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
	DataURI  string `json:"dataUri"`
}

// ModelInfo describes a catalog entry to API clients
type ModelInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        MediaKind `json:"kind"`
	Pricing     Pricing   `json:"pricing"`
	MaxAttempts int       `json:"maxAttempts"`
	IntervalMs  int64     `json:"intervalMs"`
	MinImages   int       `json:"minImages"`
}

// NewModelInfo projects a ModelSpec for API output
func NewModelInfo(spec ModelSpec) ModelInfo {
	return ModelInfo{
		ID:          spec.ID,
		Name:        spec.Name,
		Kind:        spec.Kind,
		Pricing:     spec.Pricing,
		MaxAttempts: spec.Budget.MaxAttempts,
		IntervalMs:  spec.Budget.Interval.Milliseconds(),
		MinImages:   spec.MinImages,
	}
}

// HealthResponse reports which integrations are configured
type HealthResponse struct {
	Status       string          `json:"status"`
	Integrations map[string]bool `json:"integrations"`
}
