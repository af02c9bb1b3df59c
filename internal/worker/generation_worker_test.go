package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wavedeck/studio/internal/client"
	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/logger"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/internal/service"
)

type stubGenerator struct {
	events    []model.ProgressEvent
	artifacts []model.Artifact
	err       error
	// before runs ahead of returning, after events were emitted
	before func()
	// ignoreCtx returns artifacts even when ctx is done
	ignoreCtx bool
}

func (g *stubGenerator) SubmitAndAwait(ctx context.Context, req model.GenerationRequest, credential string, sink engine.ProgressSink) ([]model.Artifact, error) {
	for _, e := range g.events {
		sink.Progress(e)
	}
	if g.before != nil {
		g.before()
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.ignoreCtx {
		return g.artifacts, nil
	}
	return g.artifacts, ctx.Err()
}

type recordingHub struct {
	mu        sync.Mutex
	progress  []model.ProgressEvent
	completed [][]model.Artifact
	mirrors   [][]string
	errors    []string
}

func (h *recordingHub) BroadcastProgress(opID string, event model.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, event)
}

func (h *recordingHub) BroadcastComplete(opID string, artifacts []model.Artifact, mirrorURLs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, artifacts)
	h.mirrors = append(h.mirrors, mirrorURLs)
}

func (h *recordingHub) BroadcastError(opID string, code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, code)
}

type stubMirror struct {
	out    []client.MirroredArtifact
	err    error
	calls  int
	purged []string
}

func (m *stubMirror) Enabled() bool { return true }

func (m *stubMirror) Mirror(ctx context.Context, opID string, artifacts []model.Artifact) ([]client.MirroredArtifact, error) {
	m.calls++
	return m.out, m.err
}

func (m *stubMirror) Purge(ctx context.Context, keys []string) {
	m.purged = append(m.purged, keys...)
}

func newStoreWithOp(id string, units int) *service.OperationStore {
	store := service.NewOperationStore()
	store.Create(&model.Operation{ID: id, Status: model.JobStatusQueued, Units: make([]model.UnitProgress, units)})
	return store
}

func TestRunCompletesOperation(t *testing.T) {
	store := newStoreWithOp("op", 2)
	hub := &recordingHub{}
	cost := 0.04
	gen := &stubGenerator{
		events: []model.ProgressEvent{
			{Index: 0, Total: 2, JobID: "job-0", Phase: "submitted"},
			{Index: 1, Total: 2, JobID: "job-1", Phase: "succeeded", Cost: &cost},
		},
		artifacts: []model.Artifact{"https://cdn/0.png", "data:image/png;base64,AAAA"},
	}
	mirror := &stubMirror{out: []client.MirroredArtifact{
		{URL: "https://cdn/0.png"},
		{Key: "artifacts/op/1.png", URL: "https://mirror/artifacts/op/1.png"},
	}}
	w := NewGenerationWorker(store, gen, hub, mirror, logger.Discard())

	w.Run(context.Background(), "op", model.GenerationRequest{Endpoint: "m"}, "k")

	op, err := store.Get("op")
	if err != nil {
		t.Fatal(err)
	}
	if op.Status != model.JobStatusSucceeded {
		t.Fatalf("status = %q", op.Status)
	}
	if len(op.Artifacts) != 2 || op.MirrorURLs[1] != "https://mirror/artifacts/op/1.png" {
		t.Errorf("artifacts = %v mirrors = %v", op.Artifacts, op.MirrorURLs)
	}
	if len(op.MirrorKeys) != 1 || op.MirrorKeys[0] != "artifacts/op/1.png" {
		t.Errorf("keys = %v", op.MirrorKeys)
	}
	if op.Units[1].JobID != "job-1" || op.ReportedCost == nil || *op.ReportedCost != 0.04 {
		t.Errorf("units = %+v cost = %v", op.Units, op.ReportedCost)
	}
	if len(hub.progress) != 2 || len(hub.completed) != 1 || len(hub.errors) != 0 {
		t.Errorf("hub = %d progress, %d complete, %d errors", len(hub.progress), len(hub.completed), len(hub.errors))
	}
}

func TestRunMirrorFailureKeepsArtifacts(t *testing.T) {
	store := newStoreWithOp("op", 1)
	gen := &stubGenerator{artifacts: []model.Artifact{"data:image/png;base64,AAAA"}}
	w := NewGenerationWorker(store, gen, &recordingHub{}, &stubMirror{err: errors.New("bucket gone")}, logger.Discard())

	w.Run(context.Background(), "op", model.GenerationRequest{}, "k")

	op, _ := store.Get("op")
	if op.Status != model.JobStatusSucceeded || len(op.MirrorURLs) != 0 {
		t.Errorf("op = %+v", op)
	}
}

func TestRunFailsOperationWithCode(t *testing.T) {
	store := newStoreWithOp("op", 1)
	hub := &recordingHub{}
	gen := &stubGenerator{err: &model.TerminalJobError{JobID: "job-0", Reason: "nsfw"}}
	w := NewGenerationWorker(store, gen, hub, nil, logger.Discard())

	w.Run(context.Background(), "op", model.GenerationRequest{}, "k")

	op, _ := store.Get("op")
	if op.Status != model.JobStatusFailed || op.ErrorCode != model.CodeJobFailed {
		t.Fatalf("op = %+v", op)
	}
	if *op.Error != "task failed: nsfw" {
		t.Errorf("error = %q", *op.Error)
	}
	if len(hub.errors) != 1 || hub.errors[0] != model.CodeJobFailed {
		t.Errorf("hub errors = %v", hub.errors)
	}
}

func TestRunDiscardsResultAfterCancel(t *testing.T) {
	store := newStoreWithOp("op", 1)
	hub := &recordingHub{}
	gen := &stubGenerator{
		artifacts: []model.Artifact{"https://cdn/late.png"},
		before: func() {
			_ = store.Cancel("op")
		},
	}
	w := NewGenerationWorker(store, gen, hub, nil, logger.Discard())

	w.Run(context.Background(), "op", model.GenerationRequest{}, "k")

	op, _ := store.Get("op")
	if op.Status != model.JobStatusCanceled || len(op.Artifacts) != 0 {
		t.Errorf("op = %+v", op)
	}
	if len(hub.completed) != 0 {
		t.Error("late completion broadcast")
	}
}

func TestRunAbandonedContext(t *testing.T) {
	store := newStoreWithOp("op", 1)
	hub := &recordingHub{}
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGenerator{err: context.Canceled, before: cancel}
	w := NewGenerationWorker(store, gen, hub, nil, logger.Discard())

	w.Run(ctx, "op", model.GenerationRequest{}, "k")

	op, _ := store.Get("op")
	if op.Status != model.JobStatusProcessing {
		t.Errorf("status = %q, want untouched processing", op.Status)
	}
	if len(hub.errors) != 0 {
		t.Error("abandoned run must not broadcast an error")
	}
}

func TestRunPurgesMirrorOfLateResult(t *testing.T) {
	store := newStoreWithOp("op", 1)
	hub := &recordingHub{}
	gen := &stubGenerator{artifacts: []model.Artifact{"data:image/png;base64,AAAA"}}
	mirror := &stubMirror{out: []client.MirroredArtifact{
		{Key: "artifacts/op/0.png", URL: "https://mirror/artifacts/op/0.png"},
	}}
	// The operation is canceled while the upload is in flight.
	w := NewGenerationWorker(store, gen, hub, &cancelingMirror{stubMirror: mirror, cancel: func() { _ = store.Cancel("op") }}, logger.Discard())

	w.Run(context.Background(), "op", model.GenerationRequest{}, "k")

	op, _ := store.Get("op")
	if op.Status != model.JobStatusCanceled {
		t.Fatalf("status = %q", op.Status)
	}
	if len(mirror.purged) != 1 || mirror.purged[0] != "artifacts/op/0.png" {
		t.Errorf("purged = %v", mirror.purged)
	}
	if len(hub.completed) != 0 {
		t.Error("late completion broadcast")
	}
}

func TestRunSkipsMirrorOnceAbandoned(t *testing.T) {
	store := newStoreWithOp("op", 1)
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGenerator{
		artifacts: []model.Artifact{"data:image/png;base64,AAAA"},
		before:    cancel,
		ignoreCtx: true,
	}
	mirror := &stubMirror{}
	w := NewGenerationWorker(store, gen, &recordingHub{}, mirror, logger.Discard())

	w.Run(ctx, "op", model.GenerationRequest{}, "k")

	if mirror.calls != 0 {
		t.Errorf("mirror called %d times after abandonment", mirror.calls)
	}
	op, _ := store.Get("op")
	if op.Status != model.JobStatusProcessing {
		t.Errorf("status = %q, want untouched processing", op.Status)
	}
}

// cancelingMirror runs cancel before delegating, simulating a cancel that
// lands during the upload.
type cancelingMirror struct {
	*stubMirror
	cancel func()
}

func (m *cancelingMirror) Mirror(ctx context.Context, opID string, artifacts []model.Artifact) ([]client.MirroredArtifact, error) {
	m.cancel()
	return m.stubMirror.Mirror(ctx, opID, artifacts)
}
