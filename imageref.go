package imagestudio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidImageRef is returned when an image reference is not a base64 data URL.
var ErrInvalidImageRef = errors.New("invalid image reference")

// EncodeImageRef formats image bytes as a data URL, the reference format
// returned by Manager.GenerateImage.
func EncodeImageRef(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeImageRef parses a data URL produced by EncodeImageRef.
func DecodeImageRef(ref string) (data []byte, mimeType string, err error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: prefix", ErrInvalidImageRef)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload", ErrInvalidImageRef)
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", fmt.Errorf("%w: not base64 encoded", ErrInvalidImageRef)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImageRef, err)
	}
	return data, mimeType, nil
}
