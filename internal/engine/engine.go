// Package engine drives asynchronous generation jobs: it submits them,
// polls them to a terminal state and normalizes their outputs.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/model"
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	Logger zerolog.Logger
	// ConcurrencyLimit caps concurrently running pipelines per request.
	ConcurrencyLimit int
	Seed             SeedFunc
	Now              func() time.Time
	Sleep            SleepFunc
}

// Engine is the caller-facing entry point
type Engine struct {
	catalog *model.Catalog
	fanout  *FanOut
	log     zerolog.Logger
}

// New wires an engine around a job client and a model catalog.
func New(client JobClient, catalog *model.Catalog, opts Options) *Engine {
	log := opts.Logger.With().Str("component", "engine").Logger()
	poller := NewPoller(client, log, opts.Now, opts.Sleep)
	return &Engine{
		catalog: catalog,
		fanout:  NewFanOut(client, poller, log, opts.Seed, opts.ConcurrencyLimit),
		log:     log,
	}
}

// Catalog returns the models this engine can drive.
func (e *Engine) Catalog() *model.Catalog {
	return e.catalog
}

// SubmitAndAwait runs req to completion. It returns exactly
// max(1, ArtifactCount) artifacts in submission order, or one classified error.
func (e *Engine) SubmitAndAwait(ctx context.Context, req model.GenerationRequest, credential string, sink ProgressSink) ([]model.Artifact, error) {
	spec, err := e.Validate(req, credential)
	if err != nil {
		return nil, err
	}

	req.Params = req.Params.WithDefaults(spec.BodyStyle)
	n := req.UnitCount()

	start := time.Now()
	artifacts, err := e.fanout.Generate(ctx, spec, req, n, credential, sink)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("model", spec.ID).
			Str("code", model.ErrorCode(err)).
			Msg("generation failed")
		return nil, err
	}

	e.log.Info().
		Str("model", spec.ID).
		Int("artifacts", len(artifacts)).
		Dur("elapsed", time.Since(start)).
		Msg("generation completed")
	return artifacts, nil
}

// Validate performs the structural checks the engine relies on and resolves
// the model spec.
func (e *Engine) Validate(req model.GenerationRequest, credential string) (model.ModelSpec, error) {
	spec, ok := e.catalog.Lookup(req.Endpoint)
	if !ok {
		return model.ModelSpec{}, &model.ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", req.Endpoint)}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return model.ModelSpec{}, &model.ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if strings.TrimSpace(credential) == "" {
		return model.ModelSpec{}, &model.ValidationError{Field: "credential", Message: "API key is required"}
	}
	if req.Params.ArtifactCount < 0 {
		return model.ModelSpec{}, &model.ValidationError{Field: "artifactCount", Message: "must not be negative"}
	}
	if len(req.Images) < spec.MinImages {
		return model.ModelSpec{}, &model.ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("%s requires at least %d input image(s)", spec.Name, spec.MinImages),
		}
	}
	if spec.Budget.MaxAttempts <= 0 {
		return model.ModelSpec{}, &model.ValidationError{Field: "model", Message: "model has no poll budget"}
	}
	return spec, nil
}
