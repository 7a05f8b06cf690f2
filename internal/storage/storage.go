// Package storage keeps uploaded profile pictures on the local filesystem
// or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Open for a missing key.
	ErrNotFound = errors.New("storage: object not found")
	// ErrUnsupportedType rejects uploads that are not images.
	ErrUnsupportedType = errors.New("storage: unsupported file type")
)

// Store is an object store keyed by slash separated paths.
type Store interface {
	// Put stores r under key. size is -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open returns the object; the caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ProfileKey returns a fresh key for a user's picture, keeping the upload's
// extension. Only image extensions are accepted.
func ProfileKey(userID, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := imageTypes[ext]; !ok {
		return "", ErrUnsupportedType
	}
	return path.Join("profiles", userID, uuid.NewString()+ext), nil
}

// ContentType guesses the MIME type from the key's extension.
func ContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if t, ok := imageTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
