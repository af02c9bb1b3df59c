package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/model"
)

const (
	DefaultBaseURL        = "https://api.wavespeed.ai"
	defaultRequestTimeout = 60 * time.Second
	maxLoggedBody         = 512
)

// Options configures a WaveSpeedClient. Zero values fall back to defaults.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// WaveSpeedClient submits generation jobs and reads their status
type WaveSpeedClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

// submitEnvelope is the response of a submission call
type submitEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// statusEnvelope is the response of a status call
type statusEnvelope struct {
	Message string `json:"message"`
	Data    *struct {
		ID         string            `json:"id"`
		Status     string            `json:"status"`
		Outputs    []json.RawMessage `json:"outputs"`
		FailReason string            `json:"fail_reason"`
	} `json:"data"`
	Extra *struct {
		Cost *float64 `json:"cost"`
	} `json:"extra"`
	Cost *float64 `json:"cost"`
}

// NewWaveSpeedClient creates a new WaveSpeed API client
func NewWaveSpeedClient(opts Options) *WaveSpeedClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &WaveSpeedClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		log:        opts.Logger.With().Str("component", "wavespeed").Logger(),
	}
}

// Submit posts one generation job and returns its handle. Non-2xx answers
// and transport failures are SubmissionErrors; a 2xx body without data.id
// is a ProtocolError.
func (c *WaveSpeedClient) Submit(ctx context.Context, spec model.ModelSpec, req model.GenerationRequest, credential string) (model.JobHandle, error) {
	body, err := BuildSubmitBody(spec, req)
	if err != nil {
		return "", err
	}

	status, respBody, err := c.post(ctx, "/api/v3/"+strings.Trim(spec.Path, "/"), body, credential)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &model.SubmissionError{Body: err.Error(), Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &model.SubmissionError{StatusCode: status, Body: string(respBody)}
	}

	var env submitEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return "", &model.ProtocolError{Op: "submit", Reason: "undecodable response: " + err.Error()}
	}
	if strings.TrimSpace(env.Data.ID) == "" {
		return "", &model.ProtocolError{Op: "submit", Reason: "response is missing data.id"}
	}

	return model.JobHandle(env.Data.ID), nil
}

// FetchStatus reads the current state of a job. Every error it returns is
// treated as transient by the poller.
func (c *WaveSpeedClient) FetchStatus(ctx context.Context, handle model.JobHandle, credential string) (model.StatusSnapshot, error) {
	endpoint := fmt.Sprintf("/api/v3/predictions/%s/result", url.PathEscape(string(handle)))

	status, respBody, err := c.get(ctx, endpoint, credential)
	if err != nil {
		return model.StatusSnapshot{}, err
	}
	if status < 200 || status >= 300 {
		return model.StatusSnapshot{}, fmt.Errorf("wavespeed API error (status %d): %s", status, truncate(respBody))
	}

	var env statusEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return model.StatusSnapshot{}, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if env.Data == nil {
		return model.StatusSnapshot{}, fmt.Errorf("status response is missing data")
	}

	snap := model.StatusSnapshot{
		RawStatus: env.Data.Status,
		Status:    model.NormalizeStatus(env.Data.Status),
	}
	for _, raw := range env.Data.Outputs {
		snap.Outputs = append(snap.Outputs, model.ParseRawArtifact(raw, ""))
	}

	switch {
	case env.Extra != nil && env.Extra.Cost != nil:
		snap.ReportedCost = env.Extra.Cost
	case env.Cost != nil:
		snap.ReportedCost = env.Cost
	}

	if snap.Status == model.JobStatusFailed {
		snap.FailReason = firstNonEmpty(env.Data.FailReason, env.Message, "Unknown server error")
	}

	return snap, nil
}

// IsConfigured returns true if a default credential is available
func (c *WaveSpeedClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Credential returns override when set, the configured key otherwise.
func (c *WaveSpeedClient) Credential(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	return c.apiKey
}

// BuildSubmitBody renders the JSON body expected by the model's endpoint.
func BuildSubmitBody(spec model.ModelSpec, req model.GenerationRequest) (map[string]any, error) {
	p := req.Params
	body := map[string]any{"prompt": req.Prompt}

	switch spec.BodyStyle {
	case model.BodyStyleImageEdit:
		images := make([]string, 0, len(req.Images))
		for _, img := range req.Images {
			images = append(images, img.DataURI())
		}
		body["images"] = images
		if p.Width > 0 && p.Height > 0 {
			body["size"] = fmt.Sprintf("%d*%d", p.Width, p.Height)
		}
		body["enable_sync_mode"] = false
		body["enable_base64_output"] = false
		if p.Seed != nil {
			body["seed"] = *p.Seed
		}
	case model.BodyStyleImageToVideo:
		if len(req.Images) == 0 {
			return nil, &model.ValidationError{Field: "images", Message: "an input image is required"}
		}
		body["image"] = req.Images[0].DataURI()
		body["negative_prompt"] = p.NegativePrompt
		if p.Duration > 0 {
			body["duration"] = p.Duration
		}
		body["guidance_scale"] = p.GuidanceScale
	default:
		return nil, &model.ValidationError{Field: "model", Message: fmt.Sprintf("unsupported body style %q", spec.BodyStyle)}
	}

	return body, nil
}

// post sends a POST request with JSON body
func (c *WaveSpeedClient) post(ctx context.Context, endpoint string, body any, credential string) (int, []byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, credential)
}

// get sends a GET request
func (c *WaveSpeedClient) get(ctx context.Context, endpoint string, credential string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, credential)
}

// doRequest executes an HTTP request and returns the status and raw body
func (c *WaveSpeedClient) doRequest(req *http.Request, credential string) (int, []byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Credential(credential))

	c.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("→ request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("request failed")
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("failed to read response")
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("body", truncate(respBody)).
		Msg("← response")

	return resp.StatusCode, respBody, nil
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
