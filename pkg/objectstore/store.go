// Package objectstore defines a uniform adapter interface over the backends
// that can hold uploaded chunks: local filesystem, S3, and S3-compatible
// services (Cloudflare R2).
package objectstore

import (
	"context"
	"errors"
	"strconv"
)

// ErrNotFound is returned by ReadChunk when the requested key does not exist.
var ErrNotFound = errors.New("objectstore: key not found")

// Part identifies one completed part of a multipart upload, used when
// finalizing assembly on S3/R2.
type Part struct {
	PartNumber int
	ETag       string
}

// Store is the uniform interface every backend implements. Keys follow the
// layout "uploads/<upload_id>/chunk_<index>" for chunks and
// "uploads/<upload_id>/assembled" for the S3/R2 multipart completion target.
type Store interface {
	// InitializeUpload prepares per-upload state in the backend. When
	// multipart is requested and the backend supports it, it returns an
	// opaque multipart upload token that must be threaded through
	// WriteChunk and CompleteUpload. Backends that don't support
	// multipart (local) or weren't asked to use it return an empty token.
	InitializeUpload(ctx context.Context, uploadID string, multipart bool) (token string, err error)

	// WriteChunk persists one chunk's bytes and returns its storage key and,
	// for backends that produce one, its etag (required for multipart
	// completion). multipartToken is the token returned by
	// InitializeUpload, or "" if multipart isn't active.
	WriteChunk(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (key string, etag string, err error)

	// CompleteUpload finalizes multipart assembly. It is a no-op for
	// backends without multipart support (local).
	CompleteUpload(ctx context.Context, uploadID string, multipartToken string, parts []Part) error

	// ReadChunk reads the full contents of a previously written key.
	// Returns ErrNotFound if the key does not exist.
	ReadChunk(ctx context.Context, key string) ([]byte, error)

	// ListKeys lists all keys under the given prefix, used by the
	// maintenance sweep to find orphaned storage keys.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// DeleteKey removes a single key. Deleting a non-existent key is not
	// an error.
	DeleteKey(ctx context.Context, key string) error

	// SupportsMultipart reports whether this backend can perform
	// multipart assembly at all (independent of whether any given
	// upload is eligible).
	SupportsMultipart() bool
}

// ChunkKey returns the canonical storage key for a chunk.
func ChunkKey(uploadID string, index int) string {
	return "uploads/" + uploadID + "/chunk_" + strconv.Itoa(index)
}

// AssembledKey returns the canonical storage key for the multipart
// completion target.
func AssembledKey(uploadID string) string {
	return "uploads/" + uploadID + "/assembled"
}

// UploadPrefix returns the key prefix under which all of an upload's keys
// live, used for prefix listing and deletion.
func UploadPrefix(uploadID string) string {
	return "uploads/" + uploadID + "/"
}
