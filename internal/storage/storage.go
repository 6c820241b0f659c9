package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// mediaCacheControl is applied to every uploaded object. Image keys
// are minted per upload and never reused, so clients may cache them
// indefinitely.
const mediaCacheControl = "public, max-age=31536000, immutable"

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// ImageStore wraps an ObjectStorage backend with the key scheme used
// for profile images and their thumbnails.
type ImageStore struct {
	backend ObjectStorage
}

// NewImageStore constructs an ImageStore over the provided backend.
func NewImageStore(backend ObjectStorage) *ImageStore {
	return &ImageStore{backend: backend}
}

// NewImageKey mints a fresh object key for an uploaded image,
// preserving the original file extension.
func NewImageKey(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("images/%s.%s", strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
}

// ThumbnailKey returns the object key of a named thumbnail of the
// image at key.
func ThumbnailKey(key, alias string) string {
	base := strings.TrimSuffix(path.Base(key), path.Ext(key))
	return fmt.Sprintf("thumbs/%s/%s.jpg", base, alias)
}

// EnsureBucket ensures the configured bucket exists.
func (s *ImageStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *ImageStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *ImageStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *ImageStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *ImageStore) Bucket() string {
	return s.backend.Bucket()
}
