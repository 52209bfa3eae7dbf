// Package memstore implements metadata.Repository over in-memory maps,
// guarded by a single mutex. It is intended for tests and for the in-process
// integration scenarios that exercise the ingest coordinator without a real
// database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dfsingest/dfsingest/pkg/metadata"
)

type chunkKey struct {
	uploadID string
	index    int
}

// Store is an in-memory implementation of metadata.Repository.
type Store struct {
	mu sync.Mutex

	uploads      map[string]*metadata.Upload
	chunks       map[chunkKey]*metadata.Chunk
	initIdem     map[string]*metadata.InitIdempotency
	chunkIdem    map[chunkKey]map[string]*metadata.ChunkIdempotency
	completeIdem map[string]*metadata.CompleteIdempotency
}

// New creates an empty in-memory repository.
func New() *Store {
	return &Store{
		uploads:      make(map[string]*metadata.Upload),
		chunks:       make(map[chunkKey]*metadata.Chunk),
		initIdem:     make(map[string]*metadata.InitIdempotency),
		chunkIdem:    make(map[chunkKey]map[string]*metadata.ChunkIdempotency),
		completeIdem: make(map[string]*metadata.CompleteIdempotency),
	}
}

func cloneUpload(u *metadata.Upload) *metadata.Upload {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Chunks = nil
	return &cp
}

func cloneChunk(c *metadata.Chunk) *metadata.Chunk {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (s *Store) ProbeInitIdempotency(ctx context.Context, key string) (*metadata.InitIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.initIdem[key]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *Store) CreateUpload(ctx context.Context, upload *metadata.Upload, idempotencyKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	upload.CreatedAt = now
	upload.UpdatedAt = now
	s.uploads[upload.ID] = cloneUpload(upload)

	if idempotencyKey != "" {
		s.initIdem[idempotencyKey] = &metadata.InitIdempotency{
			IdempotencyKey:     idempotencyKey,
			RequestFingerprint: fingerprint,
			UploadID:           upload.ID,
			CreatedAt:          now,
		}
	}
	return nil
}

func (s *Store) GetUpload(ctx context.Context, id string) (*metadata.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[id]
	if !ok {
		return nil, metadata.ErrUploadNotFound
	}
	return cloneUpload(u), nil
}

func (s *Store) ProbeChunkIdempotency(ctx context.Context, uploadID string, chunkIndex int, key string) (*metadata.ChunkIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.chunkIdem[chunkKey{uploadID, chunkIndex}]
	if !ok {
		return nil, false, nil
	}
	rec, ok := byKey[key]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *Store) GetChunk(ctx context.Context, uploadID string, chunkIndex int) (*metadata.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chunks[chunkKey{uploadID, chunkIndex}]
	if !ok {
		return nil, nil
	}
	return cloneChunk(c), nil
}

func (s *Store) UpsertChunk(ctx context.Context, upsert metadata.ChunkUpsert, idempotencyKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := chunkKey{upsert.UploadID, upsert.ChunkIndex}

	existing, ok := s.chunks[key]
	if !ok {
		s.chunks[key] = &metadata.Chunk{
			UploadID:            upsert.UploadID,
			ChunkIndex:          upsert.ChunkIndex,
			SizeBytes:           upsert.SizeBytes,
			ChunkChecksumSHA256: upsert.ChunkChecksumSHA256,
			StorageKey:          upsert.StorageKey,
			StorageETag:         upsert.StorageETag,
			Status:              metadata.ChunkStatusUploaded,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	} else {
		existing.SizeBytes = upsert.SizeBytes
		existing.ChunkChecksumSHA256 = upsert.ChunkChecksumSHA256
		existing.StorageKey = upsert.StorageKey
		existing.StorageETag = upsert.StorageETag
		existing.Status = metadata.ChunkStatusUploaded
		existing.UpdatedAt = now
	}

	if u, ok := s.uploads[upsert.UploadID]; ok && u.Status == metadata.UploadStatusInitiated {
		u.Status = metadata.UploadStatusInProgress
		u.UpdatedAt = now
	}

	if idempotencyKey != "" {
		byKey, ok := s.chunkIdem[key]
		if !ok {
			byKey = make(map[string]*metadata.ChunkIdempotency)
			s.chunkIdem[key] = byKey
		}
		if _, exists := byKey[idempotencyKey]; !exists {
			byKey[idempotencyKey] = &metadata.ChunkIdempotency{
				UploadID:           upsert.UploadID,
				ChunkIndex:         upsert.ChunkIndex,
				IdempotencyKey:     idempotencyKey,
				RequestFingerprint: fingerprint,
				CreatedAt:          now,
			}
		}
	}

	return nil
}

func (s *Store) MissingChunkIndexes(ctx context.Context, uploadID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[uploadID]
	if !ok {
		return nil, metadata.ErrUploadNotFound
	}

	missing := make([]int, 0, u.TotalChunks)
	for i := 0; i < u.TotalChunks; i++ {
		c, ok := s.chunks[chunkKey{uploadID, i}]
		if !ok || c.Status != metadata.ChunkStatusUploaded {
			missing = append(missing, i)
		}
	}
	return missing, nil
}

func (s *Store) UploadedChunkCount(ctx context.Context, uploadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for k, c := range s.chunks {
		if k.uploadID == uploadID && c.Status == metadata.ChunkStatusUploaded {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListChunksOrdered(ctx context.Context, uploadID string) ([]metadata.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chunks []metadata.Chunk
	for k, c := range s.chunks {
		if k.uploadID == uploadID {
			chunks = append(chunks, *c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

func (s *Store) ProbeCompleteIdempotency(ctx context.Context, key string) (*metadata.CompleteIdempotency, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.completeIdem[key]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (s *Store) CompleteUpload(ctx context.Context, uploadID, multipartUploadID, idempotencyKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.uploads[uploadID]
	if !ok {
		return metadata.ErrUploadNotFound
	}

	count := 0
	for k, c := range s.chunks {
		if k.uploadID == uploadID && c.Status == metadata.ChunkStatusUploaded {
			count++
		}
	}
	if count != u.TotalChunks {
		return metadata.ErrMissingChunks
	}

	u.Status = metadata.UploadStatusCompleted
	u.UpdatedAt = time.Now().UTC()

	if idempotencyKey != "" {
		s.completeIdem[idempotencyKey] = &metadata.CompleteIdempotency{
			IdempotencyKey:     idempotencyKey,
			RequestFingerprint: fingerprint,
			UploadID:           uploadID,
			CreatedAt:          time.Now().UTC(),
		}
	}

	return nil
}

func (s *Store) BindCompleteIdempotency(ctx context.Context, uploadID, idempotencyKey, fingerprint string) error {
	if idempotencyKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.completeIdem[idempotencyKey]; exists {
		return nil
	}
	s.completeIdem[idempotencyKey] = &metadata.CompleteIdempotency{
		IdempotencyKey:     idempotencyKey,
		RequestFingerprint: fingerprint,
		UploadID:           uploadID,
		CreatedAt:          time.Now().UTC(),
	}
	return nil
}

func (s *Store) SelectStaleUploads(ctx context.Context, olderThanSeconds int64) ([]metadata.StaleUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var stale []metadata.StaleUpload
	for _, u := range s.uploads {
		if (u.Status == metadata.UploadStatusInitiated || u.Status == metadata.UploadStatusInProgress) && u.CreatedAt.Before(cutoff) {
			stale = append(stale, metadata.StaleUpload{ID: u.ID, TotalChunks: u.TotalChunks})
		}
	}
	return stale, nil
}

func (s *Store) DeleteUpload(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.uploads, uploadID)
	for k := range s.chunks {
		if k.uploadID == uploadID {
			delete(s.chunks, k)
		}
	}
	return nil
}

func (s *Store) DeleteExpiredIdempotencyRows(ctx context.Context, olderThanSeconds int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var deleted int64

	for k, v := range s.initIdem {
		if v.CreatedAt.Before(cutoff) {
			delete(s.initIdem, k)
			deleted++
		}
	}
	for k, byKey := range s.chunkIdem {
		for ik, v := range byKey {
			if v.CreatedAt.Before(cutoff) {
				delete(byKey, ik)
				deleted++
			}
		}
		if len(byKey) == 0 {
			delete(s.chunkIdem, k)
		}
	}
	for k, v := range s.completeIdem {
		if v.CreatedAt.Before(cutoff) {
			delete(s.completeIdem, k)
			deleted++
		}
	}

	return deleted, nil
}

func (s *Store) ListAllStorageKeys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.chunks))
	for _, c := range s.chunks {
		keys = append(keys, c.StorageKey)
	}
	return keys, nil
}

func (s *Store) ListLiveUploadIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.uploads))
	for id := range s.uploads {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ metadata.Repository = (*Store)(nil)
