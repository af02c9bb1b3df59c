package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wavedeck/studio/internal/logger"
	"github.com/wavedeck/studio/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *WaveSpeedClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWaveSpeedClient(Options{BaseURL: srv.URL, APIKey: "sk-default", Logger: logger.Discard()})
}

func seedreamSpec() model.ModelSpec {
	spec, _ := model.NewCatalog(model.DefaultModels()...).Lookup(model.ModelSeedreamEdit)
	return spec
}

func klingSpec() model.ModelSpec {
	spec, _ := model.NewCatalog(model.DefaultModels()...).Lookup(model.ModelKlingI2V)
	return spec
}

func TestSubmitImageEdit(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"code":200,"data":{"id":"job-123","status":"created"}}`))
	})

	req := model.GenerationRequest{
		Endpoint: model.ModelSeedreamEdit,
		Prompt:   "a cat",
		Images:   []model.InputImage{{Data: []byte{1, 2, 3}, MIMEType: "image/png"}},
		Params:   model.Params{Width: 1024, Height: 768},
	}.WithSeed(42)

	handle, err := c.Submit(context.Background(), seedreamSpec(), req, "sk-user")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "job-123" {
		t.Errorf("handle = %q", handle)
	}
	if gotAuth != "Bearer sk-user" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotPath != "/api/v3/bytedance/seedream-v4.5/edit" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["size"] != "1024*768" {
		t.Errorf("size = %v", gotBody["size"])
	}
	if gotBody["enable_sync_mode"] != false || gotBody["enable_base64_output"] != false {
		t.Errorf("sync/base64 flags = %v/%v", gotBody["enable_sync_mode"], gotBody["enable_base64_output"])
	}
	if gotBody["seed"] != float64(42) {
		t.Errorf("seed = %v", gotBody["seed"])
	}
	images, _ := gotBody["images"].([]any)
	if len(images) != 1 || images[0] != "data:image/png;base64,AQID" {
		t.Errorf("images = %v", gotBody["images"])
	}
}

func TestSubmitUsesDefaultCredential(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{"id":"x"}}`))
	})
	req := model.GenerationRequest{
		Prompt: "pan left",
		Images: []model.InputImage{{Data: []byte{1}, MIMEType: "image/jpeg"}},
		Params: model.Params{Duration: 5, GuidanceScale: 0.5},
	}
	if _, err := c.Submit(context.Background(), klingSpec(), req, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotAuth != "Bearer sk-default" {
		t.Errorf("auth = %q", gotAuth)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"rejected", http.StatusUnauthorized, `{"message":"invalid key"}`, model.CodeSubmissionFailed},
		{"missing id", http.StatusOK, `{"data":{}}`, model.CodeProtocolError},
		{"not json", http.StatusOK, `<html>`, model.CodeProtocolError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			req := model.GenerationRequest{Prompt: "p", Images: []model.InputImage{{Data: []byte{1}, MIMEType: "image/png"}}}
			_, err := c.Submit(context.Background(), seedreamSpec(), req, "k")
			if got := model.ErrorCode(err); got != tt.wantCode {
				t.Fatalf("code = %q (%v), want %q", got, err, tt.wantCode)
			}
		})
	}
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	c := NewWaveSpeedClient(Options{BaseURL: baseURL, APIKey: "sk-default", Logger: logger.Discard()})
	_, err := c.Submit(context.Background(), seedreamSpec(), model.GenerationRequest{Prompt: "p"}, "k")

	var subErr *model.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if subErr.StatusCode != 0 || subErr.Err == nil {
		t.Errorf("got %+v", subErr)
	}
	if model.ErrorCode(err) != model.CodeSubmissionFailed {
		t.Errorf("code = %q", model.ErrorCode(err))
	}
}

func TestSubmitCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Submit(ctx, seedreamSpec(), model.GenerationRequest{Prompt: "p"}, "k")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSubmissionErrorCarriesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`bad prompt`))
	})
	req := model.GenerationRequest{Prompt: "p"}
	_, err := c.Submit(context.Background(), seedreamSpec(), req, "k")

	var subErr *model.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want SubmissionError", err)
	}
	if subErr.StatusCode != http.StatusBadRequest || subErr.Body != "bad prompt" {
		t.Errorf("got %d %q", subErr.StatusCode, subErr.Body)
	}
}

func TestBuildSubmitBodyVideoRequiresImage(t *testing.T) {
	_, err := BuildSubmitBody(klingSpec(), model.GenerationRequest{Prompt: "p"})
	if model.ErrorCode(err) != model.CodeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestFetchStatus(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  model.JobStatus
		wantOutputs int
		wantReason  string
		wantCost    *float64
	}{
		{
			name:       "created is processing",
			body:       `{"data":{"status":"created","outputs":[]}}`,
			wantStatus: model.JobStatusProcessing,
		},
		{
			name:        "completed with extra cost",
			body:        `{"data":{"status":"completed","outputs":["https://cdn/x.png",{"url":"https://cdn/y.png"}]},"extra":{"cost":0.21},"cost":9}`,
			wantStatus:  model.JobStatusSucceeded,
			wantOutputs: 2,
			wantCost:    ptr(0.21),
		},
		{
			name:       "top level cost fallback",
			body:       `{"data":{"status":"processing"},"cost":0.04}`,
			wantStatus: model.JobStatusProcessing,
			wantCost:   ptr(0.04),
		},
		{
			name:       "failed with reason",
			body:       `{"data":{"status":"failed","fail_reason":"nsfw"},"message":"m"}`,
			wantStatus: model.JobStatusFailed,
			wantReason: "nsfw",
		},
		{
			name:       "failed falls back to message",
			body:       `{"data":{"status":"failed"},"message":"quota exceeded"}`,
			wantStatus: model.JobStatusFailed,
			wantReason: "quota exceeded",
		},
		{
			name:       "failed without details",
			body:       `{"data":{"status":"failed"}}`,
			wantStatus: model.JobStatusFailed,
			wantReason: "Unknown server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				_, _ = w.Write([]byte(tt.body))
			})
			snap, err := c.FetchStatus(context.Background(), "job-9", "k")
			if err != nil {
				t.Fatalf("FetchStatus: %v", err)
			}
			if gotPath != "/api/v3/predictions/job-9/result" {
				t.Errorf("path = %q", gotPath)
			}
			if snap.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", snap.Status, tt.wantStatus)
			}
			if len(snap.Outputs) != tt.wantOutputs {
				t.Errorf("outputs = %d, want %d", len(snap.Outputs), tt.wantOutputs)
			}
			if snap.FailReason != tt.wantReason {
				t.Errorf("reason = %q, want %q", snap.FailReason, tt.wantReason)
			}
			switch {
			case tt.wantCost == nil && snap.ReportedCost != nil:
				t.Errorf("cost = %v, want nil", *snap.ReportedCost)
			case tt.wantCost != nil && (snap.ReportedCost == nil || *snap.ReportedCost != *tt.wantCost):
				t.Errorf("cost = %v, want %v", snap.ReportedCost, *tt.wantCost)
			}
		})
	}
}

func TestFetchStatusErrors(t *testing.T) {
	for name, h := range map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"no data": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":"hi"}`))
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			if _, err := c.FetchStatus(context.Background(), "j", "k"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIsConfigured(t *testing.T) {
	if NewWaveSpeedClient(Options{}).IsConfigured() {
		t.Error("client without key should not be configured")
	}
	if !NewWaveSpeedClient(Options{APIKey: "k"}).IsConfigured() {
		t.Error("client with key should be configured")
	}
}

func ptr(f float64) *float64 { return &f }
