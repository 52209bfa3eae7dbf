// Package gormstore implements metadata.Repository on top of GORM with a
// PostgreSQL dialector.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dfsingest/dfsingest/pkg/metadata"
)

// Config configures the PostgreSQL connection backing the store.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a GORM/PostgreSQL implementation of metadata.Repository.
type Store struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection per cfg and runs AutoMigrate over every
// metadata model.
func New(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(metadata.AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate metadata schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying GORM connection, useful for health checks.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) ProbeInitIdempotency(ctx context.Context, key string) (*metadata.InitIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	var rec metadata.InitIdempotency
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) CreateUpload(ctx context.Context, upload *metadata.Upload, idempotencyKey, fingerprint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(upload).Error; err != nil {
			return fmt.Errorf("create upload: %w", err)
		}
		if idempotencyKey != "" {
			rec := &metadata.InitIdempotency{
				IdempotencyKey:     idempotencyKey,
				RequestFingerprint: fingerprint,
				UploadID:           upload.ID,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("bind init idempotency: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetUpload(ctx context.Context, id string) (*metadata.Upload, error) {
	var upload metadata.Upload
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, metadata.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (s *Store) ProbeChunkIdempotency(ctx context.Context, uploadID string, chunkIndex int, key string) (*metadata.ChunkIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	var rec metadata.ChunkIdempotency
	err := s.db.WithContext(ctx).
		Where("upload_id = ? AND chunk_index = ? AND idempotency_key = ?", uploadID, chunkIndex, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*metadata.Chunk, error) {
	var chunk metadata.Chunk
	err := s.db.WithContext(ctx).
		Where("upload_id = ? AND chunk_index = ?", uploadID, chunkIndex).
		First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (s *Store) UpsertChunk(ctx context.Context, upsert metadata.ChunkUpsert, idempotencyKey, fingerprint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing metadata.Chunk
		err := tx.Where("upload_id = ? AND chunk_index = ?", upsert.UploadID, upsert.ChunkIndex).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			chunk := metadata.Chunk{
				UploadID:            upsert.UploadID,
				ChunkIndex:          upsert.ChunkIndex,
				SizeBytes:           upsert.SizeBytes,
				ChunkChecksumSHA256: upsert.ChunkChecksumSHA256,
				StorageKey:          upsert.StorageKey,
				StorageETag:         upsert.StorageETag,
				Status:              metadata.ChunkStatusUploaded,
			}
			if err := tx.Create(&chunk).Error; err != nil {
				return fmt.Errorf("create chunk: %w", err)
			}
		case err != nil:
			return err
		default:
			err := tx.Model(&existing).Updates(map[string]any{
				"size_bytes":            upsert.SizeBytes,
				"chunk_checksum_sha256": upsert.ChunkChecksumSHA256,
				"storage_key":           upsert.StorageKey,
				"storage_etag":          upsert.StorageETag,
				"status":                metadata.ChunkStatusUploaded,
			}).Error
			if err != nil {
				return fmt.Errorf("update chunk: %w", err)
			}
		}

		result := tx.Model(&metadata.Upload{}).
			Where("id = ? AND status = ?", upsert.UploadID, metadata.UploadStatusInitiated).
			Update("status", metadata.UploadStatusInProgress)
		if result.Error != nil {
			return fmt.Errorf("advance upload status: %w", result.Error)
		}

		if idempotencyKey != "" {
			rec := &metadata.ChunkIdempotency{
				UploadID:           upsert.UploadID,
				ChunkIndex:         upsert.ChunkIndex,
				IdempotencyKey:     idempotencyKey,
				RequestFingerprint: fingerprint,
			}
			if err := tx.Clauses(onConflictDoNothing()).Create(rec).Error; err != nil {
				return fmt.Errorf("bind chunk idempotency: %w", err)
			}
		}

		return nil
	})
}

func (s *Store) MissingChunkIndexes(ctx context.Context, uploadID string) ([]int, error) {
	upload, err := s.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	var uploaded []int
	if err := s.db.WithContext(ctx).Model(&metadata.Chunk{}).
		Where("upload_id = ? AND status = ?", uploadID, metadata.ChunkStatusUploaded).
		Pluck("chunk_index", &uploaded).Error; err != nil {
		return nil, err
	}

	present := make(map[int]bool, len(uploaded))
	for _, idx := range uploaded {
		present[idx] = true
	}

	missing := make([]int, 0, upload.TotalChunks-len(uploaded))
	for i := 0; i < upload.TotalChunks; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

func (s *Store) UploadedChunkCount(ctx context.Context, uploadID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&metadata.Chunk{}).
		Where("upload_id = ? AND status = ?", uploadID, metadata.ChunkStatusUploaded).
		Count(&count).Error
	return int(count), err
}

func (s *Store) ListChunksOrdered(ctx context.Context, uploadID string) ([]metadata.Chunk, error) {
	var chunks []metadata.Chunk
	err := s.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (s *Store) ProbeCompleteIdempotency(ctx context.Context, key string) (*metadata.CompleteIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	var rec metadata.CompleteIdempotency
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (s *Store) CompleteUpload(ctx context.Context, uploadID, multipartUploadID, idempotencyKey, fingerprint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var upload metadata.Upload
		if err := tx.Where("id = ?", uploadID).First(&upload).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return metadata.ErrUploadNotFound
			}
			return err
		}

		var uploadedCount int64
		if err := tx.Model(&metadata.Chunk{}).
			Where("upload_id = ? AND status = ?", uploadID, metadata.ChunkStatusUploaded).
			Count(&uploadedCount).Error; err != nil {
			return err
		}
		if int(uploadedCount) != upload.TotalChunks {
			return metadata.ErrMissingChunks
		}

		if err := tx.Model(&upload).Updates(map[string]any{
			"status": metadata.UploadStatusCompleted,
		}).Error; err != nil {
			return fmt.Errorf("flip upload to completed: %w", err)
		}

		if idempotencyKey != "" {
			rec := &metadata.CompleteIdempotency{
				IdempotencyKey:     idempotencyKey,
				RequestFingerprint: fingerprint,
				UploadID:           uploadID,
			}
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("bind complete idempotency: %w", err)
			}
		}

		return nil
	})
}

func (s *Store) BindCompleteIdempotency(ctx context.Context, uploadID, idempotencyKey, fingerprint string) error {
	if idempotencyKey == "" {
		return nil
	}
	rec := &metadata.CompleteIdempotency{
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: fingerprint,
		UploadID:           uploadID,
	}
	return s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(rec).Error
}

func (s *Store) SelectStaleUploads(ctx context.Context, olderThanSeconds int64) ([]metadata.StaleUpload, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	var uploads []metadata.Upload
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]metadata.UploadStatus{metadata.UploadStatusInitiated, metadata.UploadStatusInProgress}, cutoff).
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}

	stale := make([]metadata.StaleUpload, len(uploads))
	for i, u := range uploads {
		stale[i] = metadata.StaleUpload{ID: u.ID, TotalChunks: u.TotalChunks}
	}
	return stale, nil
}

func (s *Store) DeleteUpload(ctx context.Context, uploadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", uploadID).Delete(&metadata.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", uploadID).Delete(&metadata.Upload{}).Error
	})
}

func (s *Store) DeleteExpiredIdempotencyRows(ctx context.Context, olderThanSeconds int64) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var total int64

	for _, model := range []any{&metadata.InitIdempotency{}, &metadata.ChunkIdempotency{}, &metadata.CompleteIdempotency{}} {
		result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(model)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
	}

	return total, nil
}

func (s *Store) ListAllStorageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&metadata.Chunk{}).Pluck("storage_key", &keys).Error
	return keys, err
}

func (s *Store) ListLiveUploadIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&metadata.Upload{}).Pluck("id", &ids).Error
	return ids, err
}

var _ metadata.Repository = (*Store)(nil)
