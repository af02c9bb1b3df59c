package engine

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/wavedeck/studio/internal/model"
)

// MaxSeed is the exclusive upper bound of generated seeds
const MaxSeed = 2147483647

// SeedFunc returns a seed in [0, MaxSeed).
type SeedFunc func() int64

// RandomSeed draws a uniform seed in [0, MaxSeed).
func RandomSeed() int64 {
	return rand.Int64N(MaxSeed)
}

// FanOut runs N independent submit and poll pipelines for one request
type FanOut struct {
	client JobClient
	poller *Poller
	log    zerolog.Logger
	seed   SeedFunc
	limit  int
}

// NewFanOut wires a coordinator. limit caps concurrently running pipelines;
// zero means no cap.
func NewFanOut(client JobClient, poller *Poller, log zerolog.Logger, seed SeedFunc, limit int) *FanOut {
	if seed == nil {
		seed = RandomSeed
	}
	return &FanOut{client: client, poller: poller, log: log, seed: seed, limit: limit}
}

// Generate produces exactly n artifacts in submission order, or the first
// failure observed across units. All units run to completion before the
// batch resolves; succeeded siblings of a failed unit are discarded.
func (f *FanOut) Generate(ctx context.Context, spec model.ModelSpec, base model.GenerationRequest, n int, credential string, sink ProgressSink) ([]model.Artifact, error) {
	if n <= 0 {
		n = 1
	}
	sink = sinkOrDiscard(sink)
	requests := f.derive(base, n)
	sinks := lo.Times(n, func(i int) ProgressSink {
		return indexedSink{next: sink, index: i, total: n}
	})
	var failure firstFailure

	// Submit every unit, then join.
	handles := make([]model.JobHandle, n)
	f.run(n, func(i int) {
		sinks[i].Progress(model.ProgressEvent{Phase: model.PhaseSubmitting})
		handle, err := f.client.Submit(ctx, spec, requests[i], credential)
		if err != nil {
			failure.record(err)
			sinks[i].Progress(model.ProgressEvent{Phase: string(model.JobStatusFailed)})
			return
		}
		handles[i] = handle
		sinks[i].Progress(model.ProgressEvent{JobID: handle, Phase: model.PhaseSubmitted})
	})
	if err := failure.get(); err != nil {
		f.log.Warn().Err(err).Str("model", spec.ID).Int("units", n).Msg("submission failed")
		return nil, err
	}

	f.log.Info().
		Str("model", spec.ID).
		Strs("job_ids", lo.Map(handles, func(h model.JobHandle, _ int) string { return string(h) })).
		Msg("jobs submitted")

	// Await every handle, then join.
	results := make([]model.Artifact, n)
	f.run(n, func(i int) {
		outcome, err := f.poller.Await(ctx, handles[i], credential, spec.Budget, sinks[i])
		if err == nil {
			raw := outcome.Artifacts[0]
			if raw.MIMEHint == "" {
				raw.MIMEHint = spec.OutputMIME
			}
			results[i], err = Normalize(raw)
		}

		phase := model.JobStatusSucceeded
		if err != nil {
			failure.record(err)
			phase = model.JobStatusFailed
		}
		sinks[i].Progress(model.ProgressEvent{
			JobID:   handles[i],
			Phase:   string(phase),
			Elapsed: outcome.Elapsed,
			Cost:    outcome.ReportedCost,
		})
	})
	if err := failure.get(); err != nil {
		return nil, err
	}

	return results, nil
}

// derive builds one request per unit differing only in seed. A pinned seed
// is honoured when a single unit is requested.
func (f *FanOut) derive(base model.GenerationRequest, n int) []model.GenerationRequest {
	if n == 1 && base.Params.Seed != nil {
		return []model.GenerationRequest{base}
	}
	return lo.Times(n, func(int) model.GenerationRequest {
		return base.WithSeed(f.seed())
	})
}

// run executes fn for every index and waits for all of them.
func (f *FanOut) run(n int, fn func(i int)) {
	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// firstFailure keeps the earliest error reported by any unit.
type firstFailure struct {
	mu  sync.Mutex
	err error
}

func (f *firstFailure) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *firstFailure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
