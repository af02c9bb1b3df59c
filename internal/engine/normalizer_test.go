package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wavedeck/studio/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		hint string
		want model.Artifact
	}{
		{"url", `"https://cdn.example/a.png"`, "", "https://cdn.example/a.png"},
		{"data uri", `"data:image/webp;base64,AAAA"`, "image/png", "data:image/webp;base64,AAAA"},
		{"bare base64 default hint", `"AAAA"`, "", "data:image/png;base64,AAAA"},
		{"bare base64 video hint", `"AAAA"`, "video/mp4", "data:video/mp4;base64,AAAA"},
		{"object with url", `{"url":"https://cdn.example/b.mp4","width":1}`, "", "https://cdn.example/b.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(model.ParseRawArtifact(json.RawMessage(tt.raw), tt.hint))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeRejectsUnknownShapes(t *testing.T) {
	for _, raw := range []string{`42`, `null`, `["https://a"]`, `{"href":"https://a"}`, `"not a uri at all"`, `{"url":"ftp nope"}`} {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(model.ParseRawArtifact(json.RawMessage(raw), ""))
			var shapeErr *model.UnrecognizedArtifactShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("err = %v, want UnrecognizedArtifactShapeError", err)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"https://cdn.example/a.png",
		"data:image/png;base64,AAAA",
		"AAAA",
	}
	for _, in := range inputs {
		first, err := Normalize(model.RawArtifactFromString(in, "image/png"))
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		second, err := Normalize(model.RawArtifactFromString(first.String(), "image/png"))
		if err != nil {
			t.Fatalf("Normalize(%q): %v", first, err)
		}
		if first != second {
			t.Errorf("not idempotent: %q -> %q", first, second)
		}
	}
}
