package service

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/wavedeck/studio/internal/model"
)

var (
	ErrOperationNotFound    = errors.New("operation not found")
	ErrOperationNotComplete = errors.New("operation not completed")
	ErrOperationFinished    = errors.New("operation already finished")
)

// OperationStore keeps generation operations in memory. State does not
// survive a restart.
type OperationStore struct {
	mu  sync.RWMutex
	ops map[string]*model.Operation
	now func() time.Time
}

// NewOperationStore creates an empty store
func NewOperationStore() *OperationStore {
	return &OperationStore{
		ops: make(map[string]*model.Operation),
		now: time.Now,
	}
}

// Create registers a new operation
func (s *OperationStore) Create(op *model.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.ID] = cloneOperation(op)
}

// Get returns a copy of the operation
func (s *OperationStore) Get(id string) (*model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return cloneOperation(op), nil
}

// IDs returns every stored operation id
func (s *OperationStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.ops))
	for id := range s.ops {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Delete removes an operation and returns it
func (s *OperationStore) Delete(id string) (*model.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if ok {
		delete(s.ops, id)
	}
	return op, ok
}

// MarkStarted moves a queued operation to processing (called by worker)
func (s *OperationStore) MarkStarted(id string) error {
	return s.update(id, func(op *model.Operation) {
		s.start(op)
	})
}

// RecordProgress stores the latest event of one unit (called by worker).
// Events for finished operations are rejected.
func (s *OperationStore) RecordProgress(id string, event model.ProgressEvent) error {
	return s.update(id, func(op *model.Operation) {
		s.start(op)
		if event.Index < 0 || event.Index >= len(op.Units) {
			return
		}
		unit := &op.Units[event.Index]
		unit.Phase = event.Phase
		unit.ElapsedMs = event.ElapsedMs()
		if event.JobID != "" {
			unit.JobID = event.JobID
		}
		if event.Cost != nil {
			cost := *event.Cost
			unit.Cost = &cost
		}
		op.ReportedCost = op.TotalReportedCost()
	})
}

// Complete marks the operation succeeded (called by worker)
func (s *OperationStore) Complete(id string, artifacts []model.Artifact, mirrorURLs, mirrorKeys []string) error {
	return s.update(id, func(op *model.Operation) {
		op.Status = model.JobStatusSucceeded
		op.Artifacts = artifacts
		op.MirrorURLs = mirrorURLs
		op.MirrorKeys = mirrorKeys
		now := s.now()
		op.CompletedAt = &now
	})
}

// Fail marks the operation failed (called by worker)
func (s *OperationStore) Fail(id, code, message string) error {
	return s.update(id, func(op *model.Operation) {
		op.Status = model.JobStatusFailed
		op.ErrorCode = code
		op.Error = &message
		now := s.now()
		op.CompletedAt = &now
	})
}

// Cancel marks the operation canceled
func (s *OperationStore) Cancel(id string) error {
	return s.update(id, func(op *model.Operation) {
		op.Status = model.JobStatusCanceled
		op.ErrorCode = model.CodeCanceled
		now := s.now()
		op.CompletedAt = &now
	})
}

// Expired returns finished operations that completed before cutoff
func (s *OperationStore) Expired(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, op := range s.ops {
		if op.Status.IsTerminal() && op.CompletedAt != nil && op.CompletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// update applies fn to a live operation. Finished operations are immutable.
func (s *OperationStore) update(id string, fn func(op *model.Operation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return ErrOperationNotFound
	}
	if op.Status.IsTerminal() {
		return ErrOperationFinished
	}
	fn(op)
	return nil
}

func (s *OperationStore) start(op *model.Operation) {
	if op.Status != model.JobStatusQueued {
		return
	}
	op.Status = model.JobStatusProcessing
	now := s.now()
	op.StartedAt = &now
}

func cloneOperation(op *model.Operation) *model.Operation {
	out := *op
	out.Units = slices.Clone(op.Units)
	out.Artifacts = slices.Clone(op.Artifacts)
	out.MirrorURLs = slices.Clone(op.MirrorURLs)
	out.MirrorKeys = slices.Clone(op.MirrorKeys)
	return &out
}
