package metadata

import "errors"

// Sentinel errors returned by Repository implementations. Callers classify
// them into HTTP-level error kinds.
var (
	// ErrUploadNotFound indicates no Upload exists with the given id.
	ErrUploadNotFound = errors.New("metadata: upload not found")

	// ErrIdempotencyConflict indicates an Idempotency-Key was reused with a
	// different request fingerprint, or bound to a different upload.
	ErrIdempotencyConflict = errors.New("metadata: idempotency key conflict")

	// ErrUploadStateConflict indicates an operation was attempted against
	// an Upload whose status does not permit it.
	ErrUploadStateConflict = errors.New("metadata: upload state conflict")

	// ErrMissingChunks indicates complete was attempted before every chunk
	// reached UPLOADED.
	ErrMissingChunks = errors.New("metadata: missing chunks")
)
