// Package metadata defines the transactional repository over uploads,
// chunks, and idempotency records, and the domain errors its implementations
// return.
package metadata

import "time"

// UploadStatus is the lifecycle state of an Upload.
type UploadStatus string

const (
	UploadStatusInitiated  UploadStatus = "INITIATED"
	UploadStatusInProgress UploadStatus = "IN_PROGRESS"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
	UploadStatusAborted    UploadStatus = "ABORTED"
)

// ChunkStatus is the lifecycle state of a Chunk.
type ChunkStatus string

const (
	ChunkStatusPending  ChunkStatus = "PENDING"
	ChunkStatusUploaded ChunkStatus = "UPLOADED"
	ChunkStatusFailed   ChunkStatus = "FAILED"
)

// Upload is a single file ingestion in progress or completed.
type Upload struct {
	ID                 string       `gorm:"primaryKey;size:36"`
	OwnerID            string       `gorm:"index;not null;size:255"`
	FileName           string       `gorm:"not null;size:1024"`
	FileSize           int64        `gorm:"not null"`
	ChunkSize          int64        `gorm:"not null"`
	TotalChunks        int          `gorm:"not null"`
	FileChecksumSHA256 string       `gorm:"size:64"`
	Status             UploadStatus `gorm:"not null;size:32;index"`
	MultipartUploadID  string       `gorm:"size:512"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Chunks []Chunk `gorm:"foreignKey:UploadID;references:ID"`
}

// TableName returns the table name for Upload.
func (Upload) TableName() string { return "uploads" }

// Chunk is one persisted chunk of an Upload.
type Chunk struct {
	ID                  uint64      `gorm:"primaryKey;autoIncrement"`
	UploadID            string      `gorm:"uniqueIndex:idx_upload_chunk;not null;size:36"`
	ChunkIndex          int         `gorm:"uniqueIndex:idx_upload_chunk;not null"`
	SizeBytes           int64       `gorm:"not null"`
	ChunkChecksumSHA256 string      `gorm:"size:64"`
	StorageKey          string      `gorm:"not null;size:1024"`
	StorageETag         string      `gorm:"size:256"`
	Status              ChunkStatus `gorm:"not null;size:32"`
	RetryCount          int         `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for Chunk.
func (Chunk) TableName() string { return "chunks" }

// IdempotencyScope distinguishes the three idempotency tables.
type IdempotencyScope string

const (
	IdempotencyScopeInit     IdempotencyScope = "init"
	IdempotencyScopeChunk    IdempotencyScope = "chunk"
	IdempotencyScopeComplete IdempotencyScope = "complete"
)

// InitIdempotency binds an Idempotency-Key used on POST /v1/uploads/init to
// the fingerprint and upload it produced.
type InitIdempotency struct {
	IdempotencyKey     string    `gorm:"primaryKey;size:255"`
	RequestFingerprint string    `gorm:"not null;size:64"`
	UploadID           string    `gorm:"not null;size:36;index"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for InitIdempotency.
func (InitIdempotency) TableName() string { return "init_idempotency" }

// ChunkIdempotency binds an Idempotency-Key on a chunk PUT, scoped to
// (upload_id, chunk_index, key).
type ChunkIdempotency struct {
	UploadID           string    `gorm:"primaryKey;size:36"`
	ChunkIndex         int       `gorm:"primaryKey"`
	IdempotencyKey     string    `gorm:"primaryKey;size:255"`
	RequestFingerprint string    `gorm:"not null;size:64"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for ChunkIdempotency.
func (ChunkIdempotency) TableName() string { return "chunk_idempotency" }

// CompleteIdempotency binds an Idempotency-Key used on POST .../complete.
type CompleteIdempotency struct {
	IdempotencyKey     string    `gorm:"primaryKey;size:255"`
	RequestFingerprint string    `gorm:"not null;size:64"`
	UploadID           string    `gorm:"not null;size:36;index"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for CompleteIdempotency.
func (CompleteIdempotency) TableName() string { return "complete_idempotency" }

// AllModels returns every model for AutoMigrate.
func AllModels() []any {
	return []any{
		&Upload{},
		&Chunk{},
		&InitIdempotency{},
		&ChunkIdempotency{},
		&CompleteIdempotency{},
	}
}
