package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dfsingest/dfsingest/pkg/bufpool"
	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata"
)

// UploadChunk handles PUT /v1/uploads/{id}/chunks/{index}.
func (c *Coordinator) UploadChunk(w http.ResponseWriter, r *http.Request) error {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apierror.MissingCredential("authentication required")
	}

	uploadID := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return apierror.Validation("chunk index must be a non-negative integer")
	}

	upload, err := c.loadOwnedUpload(r, uploadID, principal)
	if err != nil {
		return err
	}
	if upload.Status != metadata.UploadStatusInitiated && upload.Status != metadata.UploadStatusInProgress {
		return apierror.Conflict(fmt.Sprintf("upload is in state %s", upload.Status))
	}
	if index >= upload.TotalChunks {
		return apierror.Validation("chunk index out of range")
	}

	// A known Content-Length lets us read into a pooled buffer sized
	// exactly for this chunk instead of letting io.ReadAll grow one from
	// scratch; chunked-encoded bodies (ContentLength < 0) fall back to
	// ReadAll since we don't know the size up front.
	var data []byte
	var pooled []byte
	if r.ContentLength >= 0 {
		pooled = bufpool.Get(int(r.ContentLength))
		n, err := io.ReadFull(r.Body, pooled)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			bufpool.Put(pooled)
			return apierror.Validation("failed to read request body")
		}
		data = pooled[:n]
		defer bufpool.Put(pooled)
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			return apierror.Validation("failed to read request body")
		}
	}
	if len(data) == 0 {
		return apierror.Validation("chunk body is empty")
	}
	if r.ContentLength >= 0 && int64(len(data)) != r.ContentLength {
		return apierror.Validation("chunk body length does not match Content-Length")
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if declared := r.Header.Get("X-Chunk-SHA256"); declared != "" && declared != checksum {
		return apierror.Validation("chunk checksum does not match X-Chunk-SHA256")
	}

	ctx := r.Context()
	idempotencyKey := r.Header.Get("Idempotency-Key")
	fp, err := chunkFingerprint(uploadID, index, checksum)
	if err != nil {
		return apierror.Internal("failed to compute fingerprint")
	}

	if idempotencyKey != "" {
		rec, found, err := c.repo.ProbeChunkIdempotency(ctx, uploadID, index, idempotencyKey)
		if err != nil {
			return apierror.Internal("idempotency probe failed")
		}
		if found {
			if rec.RequestFingerprint != fp {
				return apierror.Conflict("idempotency key already bound to a different chunk request")
			}
			chunk, err := c.repo.GetChunk(ctx, uploadID, index)
			if err != nil {
				return apierror.Internal("failed to load chunk")
			}
			if chunk != nil && chunk.Status == metadata.ChunkStatusUploaded {
				return writeJSON(w, http.StatusAccepted, ChunkResponse{
					UploadID:   uploadID,
					ChunkIndex: index,
					Status:     string(metadata.ChunkStatusUploaded),
				})
			}
		}
	}

	acquired, reason := c.admission.TryAcquire(uploadID)
	if !acquired {
		c.metrics.Throttled(string(reason))
		return apierror.Throttled(string(reason))
	}
	defer c.admission.Release(uploadID)

	key, etag, err := c.persistWithRetry(ctx, uploadID, index, data, upload.MultipartUploadID)
	if err != nil {
		c.metrics.ChunkUploadFailed()
		if errors.Is(err, context.DeadlineExceeded) {
			return apierror.Timeout("chunk persistence timed out")
		}
		return apierror.Upstream("failed to persist chunk")
	}

	if err := c.repo.UpsertChunk(ctx, metadata.ChunkUpsert{
		UploadID:            uploadID,
		ChunkIndex:          index,
		SizeBytes:           int64(len(data)),
		ChunkChecksumSHA256: checksum,
		StorageKey:          key,
		StorageETag:         etag,
	}, idempotencyKey, fp); err != nil {
		return apierror.Internal("failed to persist chunk metadata")
	}

	c.metrics.ChunkUploaded("success")
	return writeJSON(w, http.StatusAccepted, ChunkResponse{
		UploadID:   uploadID,
		ChunkIndex: index,
		Status:     string(metadata.ChunkStatusUploaded),
	})
}

// persistWithRetry retries a failed chunk write up to cfg.MaxRetries times,
// recording a retries_total observation for every attempt beyond the first.
func (c *Coordinator) persistWithRetry(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (string, string, error) {
	var lastErr error
	attempts := c.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.Retry()
		}

		start := time.Now()
		key, etag, err := c.persist.Persist(ctx, uploadID, index, data, multipartToken)
		c.metrics.ChunkWriteObserved(time.Since(start), int64(len(data)))
		if err == nil {
			return key, etag, nil
		}
		lastErr = err
	}
	return "", "", lastErr
}
