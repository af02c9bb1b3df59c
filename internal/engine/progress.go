package engine

import (
	"context"

	"github.com/wavedeck/studio/internal/model"
)

// ProgressSink receives progress events. Implementations must tolerate
// concurrent calls from different fan-out units.
type ProgressSink interface {
	Progress(event model.ProgressEvent)
}

// ProgressFunc adapts a plain function to ProgressSink
type ProgressFunc func(event model.ProgressEvent)

func (f ProgressFunc) Progress(event model.ProgressEvent) { f(event) }

type discardSink struct{}

func (discardSink) Progress(model.ProgressEvent) {}

// indexedSink stamps events with the unit they belong to.
type indexedSink struct {
	next  ProgressSink
	index int
	total int
}

func (s indexedSink) Progress(event model.ProgressEvent) {
	event.Index = s.index
	event.Total = s.total
	s.next.Progress(event)
}

func sinkOrDiscard(sink ProgressSink) ProgressSink {
	if sink == nil {
		return discardSink{}
	}
	return sink
}

// Submitter posts a generation job to the remote service
type Submitter interface {
	Submit(ctx context.Context, spec model.ModelSpec, req model.GenerationRequest, credential string) (model.JobHandle, error)
}

// StatusFetcher reads one status snapshot of a job
type StatusFetcher interface {
	FetchStatus(ctx context.Context, handle model.JobHandle, credential string) (model.StatusSnapshot, error)
}

// JobClient is the remote job API the engine drives
type JobClient interface {
	Submitter
	StatusFetcher
}
