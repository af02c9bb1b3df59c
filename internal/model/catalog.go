package model

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// Pricing is a linear cost model. Exactly one rate is normally set.
type Pricing struct {
	PerSecond   float64 `json:"perSecond,omitempty" mapstructure:"per_second"`
	PerArtifact float64 `json:"perArtifact,omitempty" mapstructure:"per_artifact"`
}

// PollBudget bounds how long a single job is awaited.
type PollBudget struct {
	MaxAttempts int           `json:"maxAttempts"`
	Interval    time.Duration `json:"interval"`
}

// ModelSpec describes one remote model the engine can drive.
type ModelSpec struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Kind      MediaKind  `json:"kind"`
	BodyStyle BodyStyle  `json:"bodyStyle"`
	Pricing   Pricing    `json:"pricing"`
	Budget    PollBudget `json:"budget"`
	// OutputMIME wraps bare base64 outputs.
	OutputMIME string `json:"outputMime"`
	// MinImages is the number of input images the model requires.
	MinImages int `json:"minImages"`
}

// Built-in model identifiers
const (
	ModelSeedreamEdit = "seedream-v4.5-edit"
	ModelKlingI2V     = "kling-v2.5-turbo-std-i2v"
)

// DefaultModels returns the built-in catalog entries.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{
			ID:         ModelSeedreamEdit,
			Name:       "Seedream",
			Path:       "bytedance/seedream-v4.5/edit",
			Kind:       MediaKindImage,
			BodyStyle:  BodyStyleImageEdit,
			Pricing:    Pricing{PerArtifact: 0.04},
			Budget:     PollBudget{MaxAttempts: 90, Interval: 2 * time.Second},
			OutputMIME: "image/png",
			MinImages:  1,
		},
		{
			ID:         ModelKlingI2V,
			Name:       "Kling",
			Path:       "kwaivgi/kling-v2.5-turbo-std/image-to-video",
			Kind:       MediaKindVideo,
			BodyStyle:  BodyStyleImageToVideo,
			Pricing:    Pricing{PerSecond: 0.042},
			Budget:     PollBudget{MaxAttempts: 150, Interval: 2 * time.Second},
			OutputMIME: "video/mp4",
			MinImages:  1,
		},
	}
}

// Catalog indexes model specs by id.
type Catalog struct {
	models map[string]ModelSpec
}

// NewCatalog builds a catalog; later entries override earlier ones with the same id.
func NewCatalog(specs ...ModelSpec) *Catalog {
	c := &Catalog{models: make(map[string]ModelSpec, len(specs))}
	for _, s := range specs {
		c.models[s.ID] = s
	}
	return c
}

// Lookup returns the spec for a model id.
func (c *Catalog) Lookup(id string) (ModelSpec, bool) {
	spec, ok := c.models[id]
	return spec, ok
}

// List returns all specs ordered by id.
func (c *Catalog) List() []ModelSpec {
	out := lo.Values(c.models)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
