package client

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wavedeck/studio/internal/logger"
	"github.com/wavedeck/studio/internal/model"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	publicURL string
	failKey   string
}

func newMemoryStore(publicURL string) *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}, publicURL: publicURL}
}

func (s *memoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == s.failKey {
		return "", errors.New("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return s.publicURL + "/" + key, nil
}

func (s *memoryStore) Remove(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *memoryStore) IsConfigured() bool { return true }

func TestMirrorUploadsInlineArtifacts(t *testing.T) {
	store := newMemoryStore("https://cdn.example")
	m := NewArtifactMirror(store, logger.Discard())

	artifacts := []model.Artifact{
		"https://remote.example/a.png",
		model.Artifact(model.InputImage{Data: pngBytes, MIMEType: "image/png"}.DataURI()),
	}
	got, err := m.Mirror(context.Background(), "op-1", artifacts)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].URL != "https://remote.example/a.png" || got[0].Key != "" {
		t.Errorf("remote artifact changed: %+v", got[0])
	}
	if got[1].Key != "op-1/1.png" {
		t.Errorf("key = %q", got[1].Key)
	}
	if got[1].URL != "https://cdn.example/op-1/1.png" {
		t.Errorf("url = %q", got[1].URL)
	}
	if store.types["op-1/1.png"] != "image/png" {
		t.Errorf("content type = %q", store.types["op-1/1.png"])
	}

	m.Purge(context.Background(), []string{got[0].Key, got[1].Key})
	if len(store.objects) != 0 {
		t.Errorf("objects left after purge: %d", len(store.objects))
	}
}

func TestMirrorUploadFailure(t *testing.T) {
	store := newMemoryStore("https://cdn.example")
	store.failKey = "op-3/0.png"
	m := NewArtifactMirror(store, logger.Discard())
	_, err := m.Mirror(context.Background(), "op-3", []model.Artifact{
		model.Artifact(model.InputImage{Data: pngBytes, MIMEType: "image/png"}.DataURI()),
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestMirrorFailureRemovesEarlierUploads(t *testing.T) {
	store := newMemoryStore("https://cdn.example")
	store.failKey = "op/1.png"
	m := NewArtifactMirror(store, logger.Discard())
	inline := model.Artifact(model.InputImage{Data: pngBytes, MIMEType: "image/png"}.DataURI())

	got, err := m.Mirror(context.Background(), "op", []model.Artifact{inline, inline})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Errorf("partial result returned: %+v", got)
	}
	if len(store.objects) != 0 {
		t.Errorf("objects left after failed mirror: %v", store.objects)
	}
}

func TestDisabledMirrorPassesThrough(t *testing.T) {
	m := NewArtifactMirror(nil, logger.Discard())
	if m.Enabled() {
		t.Fatal("mirror without store should be disabled")
	}
	got, err := m.Mirror(context.Background(), "op", []model.Artifact{"data:image/png;base64,AAAA"})
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if got[0].URL != "data:image/png;base64,AAAA" || got[0].Key != "" {
		t.Errorf("got %+v", got[0])
	}
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
