package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// RawArtifactKind tags the shape of an output reported by the remote service.
type RawArtifactKind int

const (
	RawArtifactUnknown RawArtifactKind = iota
	RawArtifactURL
	RawArtifactDataURI
	RawArtifactBase64
	RawArtifactObject
)

func (k RawArtifactKind) String() string {
	switch k {
	case RawArtifactURL:
		return "url"
	case RawArtifactDataURI:
		return "data-uri"
	case RawArtifactBase64:
		return "base64"
	case RawArtifactObject:
		return "object"
	default:
		return "unknown"
	}
}

// RawArtifact is one element of a status response's outputs list.
type RawArtifact struct {
	Kind RawArtifactKind
	// Value is the URL, data URI, bare base64 payload, or the object's url field.
	Value string
	// MIMEHint is used to wrap bare base64 payloads.
	MIMEHint string
	Raw      json.RawMessage
}

// Artifact is a dereferenceable URI (http(s) URL or data URI).
type Artifact string

func (a Artifact) String() string { return string(a) }

// IsInline reports whether the artifact carries its bytes as a data URI.
func (a Artifact) IsInline() bool {
	return strings.HasPrefix(string(a), "data:")
}

// ParseRawArtifact classifies one output element.
func ParseRawArtifact(raw json.RawMessage, mimeHint string) RawArtifact {
	out := RawArtifact{Kind: RawArtifactUnknown, MIMEHint: mimeHint, Raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return out
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return out
		}
		return classifyString(s, mimeHint, raw)
	case '{':
		var obj struct {
			URL *string `json:"url"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil || obj.URL == nil {
			return out
		}
		if strings.TrimSpace(*obj.URL) == "" {
			return out
		}
		out.Kind = RawArtifactObject
		out.Value = strings.TrimSpace(*obj.URL)
		return out
	}
	return out
}

// RawArtifactFromString classifies a plain string artifact.
func RawArtifactFromString(s, mimeHint string) RawArtifact {
	return classifyString(s, mimeHint, nil)
}

func classifyString(s, mimeHint string, raw json.RawMessage) RawArtifact {
	s = strings.TrimSpace(s)
	out := RawArtifact{Kind: RawArtifactUnknown, Value: s, MIMEHint: mimeHint, Raw: raw}
	switch {
	case s == "":
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		out.Kind = RawArtifactURL
	case strings.HasPrefix(s, "data:"):
		out.Kind = RawArtifactDataURI
	case looksLikeBase64(s):
		out.Kind = RawArtifactBase64
	}
	return out
}

func looksLikeBase64(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
