// Package encoder turns local image bytes into inline data URIs accepted by
// the remote generation API.
package encoder

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wavedeck/studio/internal/model"
)

// MaxImageSize bounds a single encoded input
const MaxImageSize = 20 * 1024 * 1024

// Encode validates data as an image and returns it ready for submission.
// An empty declaredMIME triggers content sniffing.
func Encode(data []byte, declaredMIME string) (model.InputImage, error) {
	if len(data) == 0 {
		return model.InputImage{}, &model.ValidationError{Field: "image", Message: "empty file"}
	}
	if len(data) > MaxImageSize {
		return model.InputImage{}, &model.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("file exceeds %d bytes", MaxImageSize),
		}
	}

	mime := baseMIME(declaredMIME)
	if mime == "" || mime == "application/octet-stream" {
		mime = baseMIME(mimetype.Detect(data).String())
	}
	if !strings.HasPrefix(mime, "image/") {
		return model.InputImage{}, &model.ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("unsupported content type %q", mime),
		}
	}

	return model.InputImage{Data: data, MIMEType: mime}, nil
}

// EncodeReader reads all of r and encodes it; name is kept for display.
func EncodeReader(r io.Reader, name string) (model.InputImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return model.InputImage{}, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := Encode(data, "")
	if err != nil {
		return model.InputImage{}, err
	}
	img.Name = name
	return img, nil
}

// EncodeFile encodes the image at path.
func EncodeFile(path string) (model.InputImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.InputImage{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return EncodeReader(f, filepath.Base(path))
}

// DecodeDataURI parses a base64 data URI back into an InputImage and
// re-validates its content.
func DecodeDataURI(uri string) (model.InputImage, error) {
	mime, payload, err := SplitDataURI(uri)
	if err != nil {
		return model.InputImage{}, err
	}
	return Encode(payload, mime)
}

// SplitDataURI returns the declared MIME type and the decoded payload of a
// base64 data URI.
func SplitDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, &model.ValidationError{Field: "dataUri", Message: "missing data: prefix"}
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, &model.ValidationError{Field: "dataUri", Message: "only base64 data URIs are supported"}
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, &model.ValidationError{Field: "dataUri", Message: "invalid base64 payload"}
	}
	return strings.TrimSuffix(header, ";base64"), payload, nil
}

// ExtensionFor returns the file extension (with dot) for data, preferring the
// declared MIME type when it is known.
func ExtensionFor(declaredMIME string, data []byte) string {
	if m := mimetype.Lookup(baseMIME(declaredMIME)); m != nil {
		return m.Extension()
	}
	return mimetype.Detect(data).Extension()
}

func baseMIME(m string) string {
	m, _, _ = strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(m))
}
