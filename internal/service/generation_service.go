package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/model"
)

// Runner executes one operation to completion and records the outcome in the store
type Runner interface {
	Run(ctx context.Context, opID string, req model.GenerationRequest, credential string)
}

// RequestValidator resolves the model of a request and rejects malformed ones
type RequestValidator interface {
	Validate(req model.GenerationRequest, credential string) (model.ModelSpec, error)
}

// Purger removes mirrored copies of artifacts
type Purger interface {
	Purge(ctx context.Context, keys []string)
}

// GenerationService handles generation operation management
type GenerationService struct {
	store     *OperationStore
	runner    Runner
	validator RequestValidator
	purger    Purger
	retention time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewGenerationService wires the operation registry. purger may be nil.
func NewGenerationService(store *OperationStore, runner Runner, validator RequestValidator, purger Purger, retention time.Duration, log zerolog.Logger) *GenerationService {
	return &GenerationService{
		store:     store,
		runner:    runner,
		validator: validator,
		purger:    purger,
		retention: retention,
		log:       log.With().Str("component", "generations").Logger(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start registers a new operation and runs it in the background
func (s *GenerationService) Start(req model.GenerationRequest, credential string) (*model.GenerationStartResponse, error) {
	spec, err := s.validator.Validate(req, credential)
	if err != nil {
		return nil, err
	}

	opID := uuid.New().String()
	now := time.Now()
	n := req.UnitCount()

	units := make([]model.UnitProgress, n)
	for i := range units {
		units[i] = model.UnitProgress{Index: i, Phase: string(model.JobStatusQueued)}
	}

	op := &model.Operation{
		ID:            opID,
		Model:         spec.ID,
		Status:        model.JobStatusQueued,
		Units:         units,
		EstimatedCost: engine.Estimate(spec.Pricing, req.Params.WithDefaults(spec.BodyStyle)),
		CreatedAt:     now,
	}
	s.store.Create(op)

	// The run outlives the HTTP request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[opID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(opID)
		s.runner.Run(ctx, opID, req, credential)
	}()

	s.log.Info().Str("operation_id", opID).Str("model", spec.ID).Int("units", n).Msg("generation started")

	return &model.GenerationStartResponse{
		OperationID:   opID,
		Status:        model.JobStatusQueued,
		EstimatedCost: op.EstimatedCost,
		CreatedAt:     now,
	}, nil
}

// Status returns the current state of an operation
func (s *GenerationService) Status(opID string) (*model.Operation, error) {
	return s.store.Get(opID)
}

// Result returns the artifacts of a succeeded operation
func (s *GenerationService) Result(opID string) (*model.GenerationResultResponse, error) {
	op, err := s.store.Get(opID)
	if err != nil {
		return nil, err
	}
	if op.Status != model.JobStatusSucceeded {
		return nil, ErrOperationNotComplete
	}

	var elapsed time.Duration
	if op.CompletedAt != nil {
		elapsed = op.CompletedAt.Sub(op.CreatedAt)
	}

	return &model.GenerationResultResponse{
		OperationID:  op.ID,
		Model:        op.Model,
		Artifacts:    op.Artifacts,
		MirrorURLs:   op.MirrorURLs,
		ReportedCost: op.ReportedCost,
		ElapsedMs:    elapsed.Milliseconds(),
	}, nil
}

// Cancel abandons a running operation. In-flight requests are not retracted;
// their late results are discarded.
func (s *GenerationService) Cancel(opID string) (*model.CancelResponse, error) {
	if err := s.store.Cancel(opID); err != nil {
		return nil, err
	}
	s.abort(opID)

	s.log.Info().Str("operation_id", opID).Msg("generation canceled")

	return &model.CancelResponse{
		Success:     true,
		OperationID: opID,
		Status:      model.JobStatusCanceled,
	}, nil
}

// Reset cancels every running operation and forgets all operations
func (s *GenerationService) Reset(ctx context.Context) *model.ResetResponse {
	resp := &model.ResetResponse{}
	for _, id := range s.store.IDs() {
		if err := s.store.Cancel(id); err == nil {
			resp.Canceled++
		}
		s.abort(id)
		if s.remove(ctx, id) {
			resp.Removed++
		}
	}

	s.log.Info().Int("canceled", resp.Canceled).Int("removed", resp.Removed).Msg("workspace reset")
	return resp
}

// Sweep drops finished operations older than the retention window
func (s *GenerationService) Sweep(ctx context.Context) int {
	if s.retention <= 0 {
		return 0
	}
	removed := 0
	for _, id := range s.store.Expired(time.Now().Add(-s.retention)) {
		if s.remove(ctx, id) {
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("expired operations swept")
	}
	return removed
}

// RunJanitor sweeps periodically until ctx is done
func (s *GenerationService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Shutdown cancels every running operation and waits for their runners
func (s *GenerationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GenerationService) abort(opID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[opID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *GenerationService) release(opID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[opID]
	delete(s.cancels, opID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *GenerationService) remove(ctx context.Context, opID string) bool {
	op, ok := s.store.Delete(opID)
	if !ok {
		return false
	}
	if s.purger != nil && len(op.MirrorKeys) > 0 {
		s.purger.Purge(ctx, op.MirrorKeys)
	}
	return true
}
