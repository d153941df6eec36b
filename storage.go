package imagestudio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists generated images.
// Implementations can wrap existing storage clients (GCS, S3, etc.).
type Storage interface {
	// SaveFile saves image data under path and returns where it can be found.
	// The contentType is typically the image's MIME type (e.g., "image/png").
	SaveFile(ctx context.Context, data []byte, path string, contentType string) (string, error)
}

// StorageResult contains information about a saved image.
type StorageResult struct {
	// URL is where the image can be accessed
	URL string

	// Path is the storage path/key where the image was saved
	Path string

	// Size is the number of bytes saved
	Size int
}

// SaveImageRef decodes an image reference and saves it as {basePath}.{ext}.
func SaveImageRef(ctx context.Context, storage Storage, ref string, basePath string) (*StorageResult, error) {
	if storage == nil {
		return nil, ErrStorageNotConfigured
	}

	data, mimeType, err := DecodeImageRef(ref)
	if err != nil {
		return nil, err
	}

	path := basePath + "." + extensionFromMIME(mimeType)
	url, err := storage.SaveFile(ctx, data, path, mimeType)
	if err != nil {
		return nil, err
	}

	return &StorageResult{
		URL:  url,
		Path: path,
		Size: len(data),
	}, nil
}

// FileStorage saves images below a local directory.
type FileStorage struct {
	Dir string
}

// NewFileStorage returns a FileStorage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{Dir: dir}
}

// SaveFile writes data to Dir/path, creating parent directories as needed.
// The returned URL is the absolute file path.
func (s *FileStorage) SaveFile(_ context.Context, data []byte, path string, _ string) (string, error) {
	full := filepath.Join(s.Dir, filepath.Clean("/"+path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", full, err)
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		return full, nil
	}
	return abs, nil
}

// GetMIMEType guesses an image MIME type from a file extension.
func GetMIMEType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

// extensionFromMIME returns a file extension for common image MIME types.
func extensionFromMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
