package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wavedeck/studio/internal/model"
)

// step is one scripted status response; err simulates a transport failure.
type step struct {
	snap model.StatusSnapshot
	err  error
}

func status(literal string, outputs ...string) step {
	snap := model.StatusSnapshot{RawStatus: literal, Status: model.NormalizeStatus(literal)}
	for _, o := range outputs {
		snap.Outputs = append(snap.Outputs, model.RawArtifactFromString(o, ""))
	}
	return step{snap: snap}
}

func failed(reason string) step {
	s := status("failed")
	s.snap.FailReason = reason
	return s
}

func transient() step {
	return step{err: errors.New("connection reset")}
}

// fakeClient replays scripted status sequences per job. The last step of a
// script repeats once exhausted.
type fakeClient struct {
	mu        sync.Mutex
	scripts   map[model.JobHandle][]step
	calls     map[model.JobHandle]int
	submitted []model.GenerationRequest
	submitErr map[int]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		scripts:   map[model.JobHandle][]step{},
		calls:     map[model.JobHandle]int{},
		submitErr: map[int]error{},
	}
}

// script registers the status sequence for a handle.
func (c *fakeClient) script(handle model.JobHandle, steps ...step) {
	c.scripts[handle] = steps
}

func (c *fakeClient) Submit(ctx context.Context, spec model.ModelSpec, req model.GenerationRequest, credential string) (model.JobHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, req)
	// Handles are derived from seeds so tests can address units by index
	// regardless of goroutine scheduling.
	idx := int(*req.Params.Seed)
	if err, ok := c.submitErr[idx]; ok {
		return "", err
	}
	return model.JobHandle(fmt.Sprintf("job-%d", idx)), nil
}

func (c *fakeClient) FetchStatus(ctx context.Context, handle model.JobHandle, credential string) (model.StatusSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := c.scripts[handle]
	if len(steps) == 0 {
		return model.StatusSnapshot{}, errors.New("unknown job")
	}
	i := c.calls[handle]
	c.calls[handle]++
	if i >= len(steps) {
		i = len(steps) - 1
	}
	return steps[i].snap, steps[i].err
}

func (c *fakeClient) callCount(handle model.JobHandle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[handle]
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// sequentialSeeds hands out 0, 1, 2, ... so unit i gets seed i.
func sequentialSeeds() SeedFunc {
	var mu sync.Mutex
	var n int64
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		s := n
		n++
		return s
	}
}

// recordingSink keeps every event it sees.
type recordingSink struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (s *recordingSink) Progress(e model.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) phases(index int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if e.Index == index {
			out = append(out, e.Phase)
		}
	}
	return out
}
