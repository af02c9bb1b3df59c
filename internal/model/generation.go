package model

import (
	"encoding/base64"
	"fmt"
	"time"
)

// InputImage is a conditioning image carried inline with a request.
type InputImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	Name     string `json:"name,omitempty"`
}

// DataURI renders the image as data:<mime>;base64,<payload>.
func (i InputImage) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// Params holds the model-specific numeric and text controls.
type Params struct {
	Duration       int     `json:"duration,omitempty"`
	GuidanceScale  float64 `json:"guidanceScale,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	ArtifactCount  int     `json:"artifactCount,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
}

// GenerationRequest is built once per user action and consumed once.
// Treat it as immutable: derive variants with WithSeed.
type GenerationRequest struct {
	Endpoint string       `json:"endpoint"`
	Prompt   string       `json:"prompt"`
	Images   []InputImage `json:"images,omitempty"`
	Params   Params       `json:"params"`
}

// WithSeed returns a copy of the request that differs only in its seed.
func (r GenerationRequest) WithSeed(seed int64) GenerationRequest {
	out := r
	out.Params.Seed = &seed
	return out
}

// UnitCount is the number of independent jobs the request fans out to.
func (r GenerationRequest) UnitCount() int {
	if r.Params.ArtifactCount <= 0 {
		return 1
	}
	return r.Params.ArtifactCount
}

// JobHandle is the opaque identifier the remote service assigns on submission.
type JobHandle string

// StatusSnapshot is one decoded status response.
type StatusSnapshot struct {
	RawStatus    string
	Status       JobStatus
	Outputs      []RawArtifact
	FailReason   string
	ReportedCost *float64
}

// JobOutcome is the terminal value of one polling run.
type JobOutcome struct {
	JobID        JobHandle
	Status       JobStatus
	Artifacts    []RawArtifact
	Elapsed      time.Duration
	ReportedCost *float64
	FailReason   string
	Attempts     int
}

// ProgressEvent is emitted incrementally while a generation runs.
type ProgressEvent struct {
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	JobID   JobHandle     `json:"jobId,omitempty"`
	Phase   string        `json:"phase"`
	Elapsed time.Duration `json:"elapsed"`
	Cost    *float64      `json:"cost,omitempty"`
}

// ElapsedMs is the elapsed time in whole milliseconds.
func (e ProgressEvent) ElapsedMs() int64 {
	return e.Elapsed.Milliseconds()
}

// Defaults applied when a control is left at its zero value
const (
	DefaultDuration      = 5
	DefaultGuidanceScale = 0.5
	DefaultImageSide     = 1024
)

// WithDefaults fills unset controls relevant to the given body style.
func (p Params) WithDefaults(style BodyStyle) Params {
	switch style {
	case BodyStyleImageEdit:
		if p.Width <= 0 {
			p.Width = DefaultImageSide
		}
		if p.Height <= 0 {
			p.Height = DefaultImageSide
		}
	case BodyStyleImageToVideo:
		if p.Duration <= 0 {
			p.Duration = DefaultDuration
		}
		if p.GuidanceScale <= 0 {
			p.GuidanceScale = DefaultGuidanceScale
		}
	}
	return p
}
