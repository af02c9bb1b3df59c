package model

import (
	"context"
	"errors"
	"fmt"
)

// Error codes shared by the engine, the HTTP layer and the CLI.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeSubmissionFailed   = "SUBMISSION_FAILED"
	CodeProtocolError      = "PROTOCOL_ERROR"
	CodeTransientPoll      = "TRANSIENT_POLL_ERROR"
	CodeJobFailed          = "JOB_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeEmptyResult        = "EMPTY_RESULT"
	CodeUnrecognizedOutput = "UNRECOGNIZED_ARTIFACT"
	CodeCanceled           = "CANCELED"
	CodeInternal           = "INTERNAL_ERROR"
)

// ValidationError reports a structurally invalid request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string { return CodeValidation }

// SubmissionError means the remote endpoint rejected a submission or could
// not be reached. StatusCode is 0 when no response arrived.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode == 0 {
		return "submission failed: " + e.Body
	}
	return fmt.Sprintf("submission rejected (status %d): %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Code() string { return CodeSubmissionFailed }

// ProtocolError means a success response had an unexpected shape.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Code() string { return CodeProtocolError }

// TransientPollError wraps a status query failure that polling absorbs.
// It only escapes the poller in logs.
type TransientPollError struct {
	JobID   JobHandle
	Attempt int
	Err     error
}

func (e *TransientPollError) Error() string {
	return fmt.Sprintf("poll attempt %d for job %s: %v", e.Attempt, e.JobID, e.Err)
}

func (e *TransientPollError) Unwrap() error { return e.Err }

func (e *TransientPollError) Code() string { return CodeTransientPoll }

// TerminalJobError means the remote service declared the job failed.
type TerminalJobError struct {
	JobID  JobHandle
	Reason string
}

func (e *TerminalJobError) Error() string {
	return "task failed: " + e.Reason
}

func (e *TerminalJobError) Code() string { return CodeJobFailed }

// TimeoutError means the attempt budget ran out before a terminal state.
type TimeoutError struct {
	JobID    JobHandle
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for job %s after %d attempts", e.JobID, e.Attempts)
}

func (e *TimeoutError) Code() string { return CodeTimeout }

// EmptyResultError means success was declared but no outputs arrived before
// the budget ran out.
type EmptyResultError struct {
	JobID JobHandle
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("job %s completed but no output found", e.JobID)
}

func (e *EmptyResultError) Code() string { return CodeEmptyResult }

// UnrecognizedArtifactShapeError means an output could not be normalized.
type UnrecognizedArtifactShapeError struct {
	Raw string
}

func (e *UnrecognizedArtifactShapeError) Error() string {
	raw := e.Raw
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	return fmt.Sprintf("unrecognized artifact shape: %s", raw)
}

func (e *UnrecognizedArtifactShapeError) Code() string { return CodeUnrecognizedOutput }

// ErrorCode returns the stable code of a classified error, CodeCanceled for
// context cancellation and CodeInternal otherwise.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeInternal
}
