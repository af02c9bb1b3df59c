// Command genctl runs one generation against WaveSpeed from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/wavedeck/studio/internal/client"
	"github.com/wavedeck/studio/internal/config"
	"github.com/wavedeck/studio/internal/encoder"
	"github.com/wavedeck/studio/internal/engine"
	"github.com/wavedeck/studio/internal/logger"
	"github.com/wavedeck/studio/internal/model"
)

type options struct {
	Model        string
	Prompt       string
	Images       []string
	Count        int
	Duration     int
	Guidance     float64
	Width        int
	Height       int
	Negative     string
	Key          string
	EstimateOnly bool
}

func parseFlags(args []string, defaultKey string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("genctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.Model, "model", "m", model.ModelSeedreamEdit, "model id")
	fs.StringVarP(&opts.Prompt, "prompt", "p", "", "text prompt")
	fs.StringArrayVarP(&opts.Images, "image", "i", nil, "input image file (repeatable)")
	fs.IntVarP(&opts.Count, "count", "n", 1, "number of independent artifacts")
	fs.IntVar(&opts.Duration, "duration", 0, "video duration in seconds")
	fs.Float64Var(&opts.Guidance, "guidance", 0, "guidance scale")
	fs.IntVar(&opts.Width, "width", 0, "output width")
	fs.IntVar(&opts.Height, "height", 0, "output height")
	fs.StringVar(&opts.Negative, "negative", "", "negative prompt")
	fs.StringVar(&opts.Key, "key", "", "WaveSpeed API key (default $WAVESPEED_API_KEY)")
	fs.BoolVar(&opts.EstimateOnly, "estimate-only", false, "print the projected cost and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.Prompt == "" && fs.NArg() > 0 {
		opts.Prompt = strings.Join(fs.Args(), " ")
	}
	if opts.Key == "" {
		opts.Key = defaultKey
	}
	if opts.Count < 1 {
		return nil, fmt.Errorf("--count must be at least 1")
	}
	return opts, nil
}

// buildRequest encodes the input files and assembles the request.
func buildRequest(opts *options) (model.GenerationRequest, error) {
	images := make([]model.InputImage, 0, len(opts.Images))
	for _, path := range opts.Images {
		img, err := encoder.EncodeFile(path)
		if err != nil {
			return model.GenerationRequest{}, fmt.Errorf("%s: %w", path, err)
		}
		images = append(images, img)
	}

	return model.GenerationRequest{
		Endpoint: opts.Model,
		Prompt:   opts.Prompt,
		Images:   images,
		Params: model.Params{
			Duration:       opts.Duration,
			GuidanceScale:  opts.Guidance,
			Width:          opts.Width,
			Height:         opts.Height,
			NegativePrompt: opts.Negative,
			ArtifactCount:  opts.Count,
		},
	}, nil
}

// progressPrinter renders one line per progress event.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *progressPrinter) Progress(event model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	phase := phaseColor(event.Phase).Sprint(event.Phase)
	line := fmt.Sprintf("[%d/%d] %-10s %6.1fs", event.Index+1, event.Total, phase, event.Elapsed.Seconds())
	if event.JobID != "" {
		line += "  " + string(event.JobID)
	}
	if event.Cost != nil {
		line += fmt.Sprintf("  $%.2f", *event.Cost)
	}
	fmt.Fprintln(p.out, line)
}

func phaseColor(phase string) *color.Color {
	switch phase {
	case string(model.JobStatusSucceeded):
		return color.New(color.FgGreen)
	case string(model.JobStatusFailed):
		return color.New(color.FgRed)
	case string(model.JobStatusQueued), model.PhaseSubmitting, model.PhaseSubmitted:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, cfg.WaveSpeed.APIKey, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return &model.ValidationError{Message: err.Error()}
	}

	catalog := model.NewCatalog(cfg.Models...)
	spec, ok := catalog.Lookup(opts.Model)
	if !ok {
		return &model.ValidationError{Field: "model", Message: fmt.Sprintf("unknown model %q", opts.Model)}
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	estimate := engine.Estimate(spec.Pricing, req.Params.WithDefaults(spec.BodyStyle))
	fmt.Fprintf(stdout, "%s %s x%d, estimated $%.2f\n", color.New(color.Bold).Sprint(spec.Name), spec.ID, req.UnitCount(), estimate)
	if opts.EstimateOnly {
		return nil
	}

	waveSpeed := client.NewWaveSpeedClient(client.Options{
		BaseURL:        cfg.WaveSpeed.BaseURL,
		RequestTimeout: cfg.WaveSpeed.RequestTimeout,
		Logger:         logger.New("development", cfg.Server.LogLevel),
	})
	eng := engine.New(waveSpeed, catalog, engine.Options{ConcurrencyLimit: cfg.Polling.MaxConcurrentJobs})

	artifacts, err := eng.SubmitAndAwait(ctx, req, opts.Key, &progressPrinter{out: stderr})
	if err != nil {
		return err
	}

	for i, a := range artifacts {
		if a.IsInline() {
			fmt.Fprintf(stdout, "%d: inline %s (%d bytes)\n", i+1, inlineMIME(a), len(a))
			continue
		}
		fmt.Fprintf(stdout, "%d: %s\n", i+1, a)
	}
	return nil
}

func inlineMIME(a model.Artifact) string {
	mime, _, err := encoder.SplitDataURI(a.String())
	if err != nil {
		return "data"
	}
	return mime
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		color.New(color.FgRed).Fprintf(os.Stderr, "error [%s]: %v\n", model.ErrorCode(err), err)
		stop()
		os.Exit(1)
	}
}
