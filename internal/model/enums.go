package model

import "strings"

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no further polling happens in this state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// NormalizeStatus maps the remote service's status literal onto JobStatus.
// Unrecognized literals are treated as still processing.
func NormalizeStatus(literal string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(literal)) {
	case "completed", "succeeded":
		return JobStatusSucceeded
	case "failed":
		return JobStatusFailed
	case "queued", "pending":
		return JobStatusQueued
	default:
		// "created", "processing" and anything undocumented
		return JobStatusProcessing
	}
}

// Media kinds
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Request body styles understood by the remote API
type BodyStyle string

const (
	BodyStyleImageEdit    BodyStyle = "image-edit"
	BodyStyleImageToVideo BodyStyle = "image-to-video"
)

// Progress phases emitted outside of status polling
const (
	PhaseSubmitting = "submitting"
	PhaseSubmitted  = "submitted"
)
