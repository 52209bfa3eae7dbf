package metadata

import "context"

// InitResult pairs an Upload with whether an init was an idempotent replay.
// No Repository method returns it.
type InitResult struct {
	Upload   *Upload
	Replayed bool
}

// ChunkUpsert carries the fields Coordinator.UploadChunk writes after a successful
// object-store write.
type ChunkUpsert struct {
	UploadID            string
	ChunkIndex          int
	SizeBytes           int64
	ChunkChecksumSHA256 string
	StorageKey          string
	StorageETag         string
}

// StaleUpload identifies an upload selected for reaping by the maintenance
// sweep.
type StaleUpload struct {
	ID          string
	TotalChunks int
}

// Repository exposes transactional reads/writes for Upload, Chunk, and the
// three idempotency tables. Every mutating method commits before returning;
// callers never see partial writes.
type Repository interface {
	// ProbeInitIdempotency looks up an existing init binding for key. It
	// returns (nil, false, nil) when no binding exists.
	ProbeInitIdempotency(ctx context.Context, key string) (*InitIdempotency, bool, error)

	// CreateUpload inserts a new Upload in INITIATED status, optionally
	// binding an init idempotency key in the same transaction.
	CreateUpload(ctx context.Context, upload *Upload, idempotencyKey, fingerprint string) error

	// GetUpload loads an Upload by id. Returns ErrUploadNotFound if absent.
	GetUpload(ctx context.Context, id string) (*Upload, error)

	// ProbeChunkIdempotency looks up an existing chunk binding for
	// (uploadID, chunkIndex, key).
	ProbeChunkIdempotency(ctx context.Context, uploadID string, chunkIndex int, key string) (*ChunkIdempotency, bool, error)

	// GetChunk loads a single chunk row. Returns nil, nil if absent.
	GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*Chunk, error)

	// UpsertChunk inserts or updates the chunk row, flips the upload from
	// INITIATED to IN_PROGRESS if needed, and optionally persists a chunk
	// idempotency binding — all within one transaction.
	UpsertChunk(ctx context.Context, upsert ChunkUpsert, idempotencyKey, fingerprint string) error

	// MissingChunkIndexes returns the ascending indexes in [0, total_chunks)
	// that have no chunk row with status UPLOADED.
	MissingChunkIndexes(ctx context.Context, uploadID string) ([]int, error)

	// UploadedChunkCount returns count(chunks with status=UPLOADED).
	UploadedChunkCount(ctx context.Context, uploadID string) (int, error)

	// ListChunksOrdered returns every chunk of uploadID in ascending
	// chunk_index order.
	ListChunksOrdered(ctx context.Context, uploadID string) ([]Chunk, error)

	// ProbeCompleteIdempotency looks up an existing complete binding for key.
	ProbeCompleteIdempotency(ctx context.Context, key string) (*CompleteIdempotency, bool, error)

	// CompleteUpload verifies uploaded-chunk count == total_chunks within
	// the same transaction that flips status to COMPLETED, and optionally
	// persists a complete idempotency binding. Returns ErrMissingChunks if
	// the count doesn't match.
	CompleteUpload(ctx context.Context, uploadID, multipartUploadID, idempotencyKey, fingerprint string) error

	// BindCompleteIdempotency persists a complete idempotency row for an
	// already-COMPLETED upload, without altering upload status (the
	// idempotent-replay path for complete-on-COMPLETED).
	BindCompleteIdempotency(ctx context.Context, uploadID, idempotencyKey, fingerprint string) error

	// SelectStaleUploads returns uploads in INITIATED/IN_PROGRESS older
	// than the cutoff, for maintenance reaping.
	SelectStaleUploads(ctx context.Context, olderThanSeconds int64) ([]StaleUpload, error)

	// DeleteUpload removes the upload row; chunk rows cascade.
	DeleteUpload(ctx context.Context, uploadID string) error

	// DeleteExpiredIdempotencyRows deletes idempotency rows (all three
	// tables) older than the TTL, returning the total rows deleted.
	DeleteExpiredIdempotencyRows(ctx context.Context, olderThanSeconds int64) (int64, error)

	// ListAllStorageKeys returns storage_key for every chunk row, used by
	// the maintenance reference-sweep.
	ListAllStorageKeys(ctx context.Context) ([]string, error)

	// ListLiveUploadIDs returns the id of every upload not yet deleted, used
	// to recognize live assembled-object keys during the reference-sweep.
	ListLiveUploadIDs(ctx context.Context) ([]string, error)
}
