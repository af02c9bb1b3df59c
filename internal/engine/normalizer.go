package engine

import (
	"fmt"

	"github.com/wavedeck/studio/internal/model"
)

const defaultOutputMIME = "image/png"

// Normalize maps one raw output onto a dereferenceable artifact.
// URLs and data URIs pass through, bare base64 is wrapped into a data URI
// using the raw artifact's MIME hint, objects are projected to their url.
func Normalize(raw model.RawArtifact) (model.Artifact, error) {
	switch raw.Kind {
	case model.RawArtifactURL, model.RawArtifactDataURI:
		return model.Artifact(raw.Value), nil
	case model.RawArtifactObject:
		// The projected url may itself be any of the string shapes.
		inner := model.RawArtifactFromString(raw.Value, raw.MIMEHint)
		if inner.Kind == model.RawArtifactUnknown {
			return "", &model.UnrecognizedArtifactShapeError{Raw: string(raw.Raw)}
		}
		return Normalize(inner)
	case model.RawArtifactBase64:
		mime := raw.MIMEHint
		if mime == "" {
			mime = defaultOutputMIME
		}
		return model.Artifact(fmt.Sprintf("data:%s;base64,%s", mime, raw.Value)), nil
	default:
		shape := string(raw.Raw)
		if shape == "" {
			shape = raw.Value
		}
		return "", &model.UnrecognizedArtifactShapeError{Raw: shape}
	}
}
