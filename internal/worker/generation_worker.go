package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/client"
	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/model"
	"github.com/wavedeck/studio/internal/service"
)

// Generator runs a generation request to completion
type Generator interface {
	SubmitAndAwait(ctx context.Context, req model.GenerationRequest, credential string, sink engine.ProgressSink) ([]model.Artifact, error)
}

// Broadcaster pushes operation events to live subscribers
type Broadcaster interface {
	BroadcastProgress(opID string, event model.ProgressEvent)
	BroadcastComplete(opID string, artifacts []model.Artifact, mirrorURLs []string)
	BroadcastError(opID string, code, message string)
}

// Mirror copies inline artifacts to object storage
type Mirror interface {
	Enabled() bool
	Mirror(ctx context.Context, opID string, artifacts []model.Artifact) ([]client.MirroredArtifact, error)
	Purge(ctx context.Context, keys []string)
}

// GenerationWorker processes generation operations
type GenerationWorker struct {
	store  *service.OperationStore
	engine Generator
	hub    Broadcaster
	mirror Mirror
	log    zerolog.Logger
}

// NewGenerationWorker creates a new generation worker. mirror may be nil.
func NewGenerationWorker(store *service.OperationStore, gen Generator, hub Broadcaster, mirror Mirror, log zerolog.Logger) *GenerationWorker {
	return &GenerationWorker{
		store:  store,
		engine: gen,
		hub:    hub,
		mirror: mirror,
		log:    log.With().Str("component", "worker").Logger(),
	}
}

// Run drives one operation. Results arriving after the operation was
// canceled or removed are dropped.
func (w *GenerationWorker) Run(ctx context.Context, opID string, req model.GenerationRequest, credential string) {
	log := w.log.With().Str("operation_id", opID).Str("model", req.Endpoint).Logger()
	log.Info().Msg("starting generation")

	if err := w.store.MarkStarted(opID); err != nil {
		log.Warn().Err(err).Msg("operation no longer runnable")
		return
	}

	sink := engine.ProgressFunc(func(event model.ProgressEvent) {
		if err := w.store.RecordProgress(opID, event); err != nil {
			return
		}
		w.hub.BroadcastProgress(opID, event)
	})

	artifacts, err := w.engine.SubmitAndAwait(ctx, req, credential, sink)
	if err != nil {
		if ctx.Err() != nil {
			log.Info().Msg("generation abandoned")
			return
		}
		w.failOperation(log, opID, err)
		return
	}

	if ctx.Err() != nil {
		log.Info().Msg("generation abandoned")
		return
	}

	mirrorURLs, mirrorKeys := w.mirrorArtifacts(ctx, log, opID, artifacts)

	if err := w.store.Complete(opID, artifacts, mirrorURLs, mirrorKeys); err != nil {
		log.Info().Err(err).Msg("discarding late result")
		if len(mirrorKeys) > 0 {
			w.mirror.Purge(context.WithoutCancel(ctx), mirrorKeys)
		}
		return
	}

	w.hub.BroadcastComplete(opID, artifacts, mirrorURLs)
	log.Info().Int("artifacts", len(artifacts)).Msg("generation completed")
}

// mirrorArtifacts is best effort: a failed upload leaves the original
// artifacts as the only result.
func (w *GenerationWorker) mirrorArtifacts(ctx context.Context, log zerolog.Logger, opID string, artifacts []model.Artifact) ([]string, []string) {
	if w.mirror == nil || !w.mirror.Enabled() {
		return nil, nil
	}

	mirrored, err := w.mirror.Mirror(ctx, opID, artifacts)
	if err != nil {
		log.Warn().Err(err).Msg("failed to mirror artifacts")
		return nil, nil
	}

	urls := make([]string, len(mirrored))
	keys := make([]string, 0, len(mirrored))
	for i, m := range mirrored {
		urls[i] = m.URL
		if m.Key != "" {
			keys = append(keys, m.Key)
		}
	}
	return urls, keys
}

func (w *GenerationWorker) failOperation(log zerolog.Logger, opID string, err error) {
	code := model.ErrorCode(err)
	if storeErr := w.store.Fail(opID, code, err.Error()); storeErr != nil {
		if !errors.Is(storeErr, service.ErrOperationFinished) && !errors.Is(storeErr, service.ErrOperationNotFound) {
			log.Error().Err(storeErr).Msg("failed to mark operation as failed")
		}
		return
	}
	w.hub.BroadcastError(opID, code, err.Error())
	log.Warn().Err(err).Str("code", code).Msg("generation failed")
}
