package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/internal/encoder"
	"github.com/wavedeck/studio/internal/model"
)

// MirroredArtifact is where one artifact can be fetched after mirroring.
type MirroredArtifact struct {
	Key string
	URL string
}

// ArtifactMirror copies inline artifacts into object storage so callers
// get a short URL instead of a multi-megabyte data URI.
type ArtifactMirror struct {
	store ObjectStore
	log   zerolog.Logger
}

// NewArtifactMirror returns a mirror; a nil or unconfigured store disables it.
func NewArtifactMirror(store ObjectStore, log zerolog.Logger) *ArtifactMirror {
	return &ArtifactMirror{store: store, log: log.With().Str("component", "mirror").Logger()}
}

// Enabled reports whether uploads will happen.
func (m *ArtifactMirror) Enabled() bool {
	return m != nil && m.store != nil && m.store.IsConfigured()
}

// Mirror uploads every data-URI artifact under {opID}/{index}.{ext} in the
// store. Remote URLs are returned as-is with an empty key. The result is index
// aligned with artifacts. On error, objects uploaded by this call are deleted.
func (m *ArtifactMirror) Mirror(ctx context.Context, opID string, artifacts []model.Artifact) ([]MirroredArtifact, error) {
	out := make([]MirroredArtifact, len(artifacts))
	var uploaded []string
	for i, a := range artifacts {
		if !a.IsInline() || !m.Enabled() {
			out[i] = MirroredArtifact{URL: a.String()}
			continue
		}

		mirrored, err := m.upload(ctx, opID, i, a)
		if err != nil {
			m.Purge(context.WithoutCancel(ctx), uploaded)
			return nil, fmt.Errorf("artifact %d: %w", i, err)
		}
		uploaded = append(uploaded, mirrored.Key)

		m.log.Info().Str("operation_id", opID).Int("index", i).Str("key", mirrored.Key).Msg("artifact mirrored")
		out[i] = mirrored
	}
	return out, nil
}

func (m *ArtifactMirror) upload(ctx context.Context, opID string, index int, a model.Artifact) (MirroredArtifact, error) {
	mime, payload, err := encoder.SplitDataURI(a.String())
	if err != nil {
		return MirroredArtifact{}, err
	}
	key := fmt.Sprintf("%s/%d%s", opID, index, encoder.ExtensionFor(mime, payload))

	url, err := m.store.Put(ctx, key, payload, mime)
	if err != nil {
		return MirroredArtifact{}, err
	}
	return MirroredArtifact{Key: key, URL: url}, nil
}

// Purge deletes previously mirrored objects; failures are logged only.
func (m *ArtifactMirror) Purge(ctx context.Context, keys []string) {
	if !m.Enabled() || len(keys) == 0 {
		return
	}
	if err := m.store.Remove(ctx, keys); err != nil {
		m.log.Warn().Err(err).Strs("keys", keys).Msg("failed to purge mirrored artifacts")
	}
}
