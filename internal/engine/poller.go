package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/model"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller waits for one remote job to reach a terminal state
type Poller struct {
	fetcher StatusFetcher
	log     zerolog.Logger
	now     func() time.Time
	sleep   SleepFunc
}

// NewPoller creates a poller backed by fetcher. Nil clock or sleep use real time.
func NewPoller(fetcher StatusFetcher, log zerolog.Logger, now func() time.Time, sleep SleepFunc) *Poller {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Poller{fetcher: fetcher, log: log, now: now, sleep: sleep}
}

// Await polls handle up to budget.MaxAttempts times, sleeping budget.Interval
// before each query.
//
// Query failures are logged and consume an attempt. A failed status stops
// immediately with TerminalJobError. A succeeded status without outputs keeps
// polling until the last attempt, which yields EmptyResultError. Running out
// of attempts yields TimeoutError. Once ctx is done no further attempt is made
// and ctx.Err() is returned, even if a response arrives afterwards.
func (p *Poller) Await(ctx context.Context, handle model.JobHandle, credential string, budget model.PollBudget, sink ProgressSink) (model.JobOutcome, error) {
	sink = sinkOrDiscard(sink)
	start := p.now()
	outcome := model.JobOutcome{JobID: handle, Status: model.JobStatusQueued}

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if err := p.sleep(ctx, budget.Interval); err != nil {
			return outcome, err
		}
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		outcome.Attempts = attempt
		snap, err := p.fetcher.FetchStatus(ctx, handle, credential)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, ctxErr
		}
		if err != nil {
			p.log.Warn().
				Err(&model.TransientPollError{JobID: handle, Attempt: attempt, Err: err}).
				Str("job_id", string(handle)).
				Int("attempt", attempt).
				Msg("status query failed, retrying")
			continue
		}

		outcome.Elapsed = p.now().Sub(start)
		outcome.Status = snap.Status
		if snap.ReportedCost != nil {
			outcome.ReportedCost = snap.ReportedCost
		}

		p.log.Debug().
			Str("job_id", string(handle)).
			Int("attempt", attempt).
			Str("status", snap.RawStatus).
			Msg("status polled")

		sink.Progress(model.ProgressEvent{
			JobID:   handle,
			Phase:   string(snap.Status),
			Elapsed: outcome.Elapsed,
			Cost:    outcome.ReportedCost,
		})

		switch snap.Status {
		case model.JobStatusFailed:
			outcome.FailReason = snap.FailReason
			return outcome, &model.TerminalJobError{JobID: handle, Reason: snap.FailReason}
		case model.JobStatusSucceeded:
			if len(snap.Outputs) > 0 {
				outcome.Artifacts = snap.Outputs
				return outcome, nil
			}
			if attempt == budget.MaxAttempts {
				return outcome, &model.EmptyResultError{JobID: handle}
			}
		}
	}

	outcome.Elapsed = p.now().Sub(start)
	return outcome, &model.TimeoutError{JobID: handle, Attempts: budget.MaxAttempts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
