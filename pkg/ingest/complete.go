package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata"
	"github.com/dfsingest/dfsingest/pkg/objectstore"
)

// Complete handles POST /v1/uploads/{id}/complete.
func (c *Coordinator) Complete(w http.ResponseWriter, r *http.Request) error {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apierror.MissingCredential("authentication required")
	}

	uploadID := chi.URLParam(r, "id")
	ctx := r.Context()

	fp, err := completeFingerprint(uploadID)
	if err != nil {
		return apierror.Internal("failed to compute fingerprint")
	}

	upload, err := c.loadOwnedUpload(r, uploadID, principal)
	if err != nil {
		return err
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	switch upload.Status {
	case metadata.UploadStatusInitiated:
		return apierror.Conflict("no chunks uploaded yet")
	case metadata.UploadStatusCompleted:
		// Idempotent replay: bind the key to the already-completed upload
		// (creating the row on demand) and return the current status,
		// without re-running assembly.
		if idempotencyKey != "" {
			if err := c.repo.BindCompleteIdempotency(ctx, uploadID, idempotencyKey, fp); err != nil {
				return apierror.Internal("failed to bind idempotency key")
			}
		}
		return writeJSON(w, http.StatusOK, CompleteResponse{UploadID: uploadID, Status: string(upload.Status)})
	case metadata.UploadStatusInProgress:
		// proceed below
	default:
		return apierror.Conflict("upload is in state " + string(upload.Status))
	}

	if idempotencyKey != "" {
		rec, found, err := c.repo.ProbeCompleteIdempotency(ctx, idempotencyKey)
		if err != nil {
			return apierror.Internal("idempotency probe failed")
		}
		if found {
			if rec.RequestFingerprint != fp {
				return apierror.Conflict("idempotency key already bound to a different request")
			}
			if rec.UploadID != uploadID {
				return apierror.Conflict("idempotency key already bound to a different upload")
			}
			// Same key, same fingerprint, same upload: a concurrent replay
			// raced us here before the transaction below committed.
			// Re-load to report whatever status actually landed.
			current, err := c.repo.GetUpload(ctx, uploadID)
			if err != nil {
				return apierror.Internal("failed to reload upload")
			}
			return writeJSON(w, http.StatusOK, CompleteResponse{UploadID: uploadID, Status: string(current.Status)})
		}
	}

	uploadedCount, err := c.repo.UploadedChunkCount(ctx, uploadID)
	if err != nil {
		return apierror.Internal("failed to count uploaded chunks")
	}
	if uploadedCount != upload.TotalChunks {
		return apierror.Conflict("missing chunks")
	}

	chunks, err := c.repo.ListChunksOrdered(ctx, uploadID)
	if err != nil {
		return apierror.Internal("failed to list chunks")
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	if upload.FileChecksumSHA256 != "" {
		if err := c.verifyFullFileChecksum(ctx, chunks, upload.FileChecksumSHA256); err != nil {
			if errors.Is(err, errChecksumMismatch) {
				return apierror.Conflict("file checksum mismatch")
			}
			return apierror.Upstream("failed to verify file checksum")
		}
	}

	if upload.MultipartUploadID != "" {
		parts := make([]objectstore.Part, len(chunks))
		for i, chunk := range chunks {
			if chunk.StorageETag == "" {
				return apierror.Conflict("chunk missing etag required for multipart completion")
			}
			parts[i] = objectstore.Part{PartNumber: chunk.ChunkIndex + 1, ETag: chunk.StorageETag}
		}
		if err := c.store.CompleteUpload(ctx, uploadID, upload.MultipartUploadID, parts); err != nil {
			return apierror.Upstream("failed to complete multipart upload")
		}
	}

	if err := c.repo.CompleteUpload(ctx, uploadID, upload.MultipartUploadID, idempotencyKey, fp); err != nil {
		if errors.Is(err, metadata.ErrMissingChunks) {
			return apierror.Conflict("missing chunks")
		}
		return apierror.Internal("failed to finalize upload")
	}

	c.metrics.UploadCompleted()
	return writeJSON(w, http.StatusOK, CompleteResponse{UploadID: uploadID, Status: string(metadata.UploadStatusCompleted)})
}

var errChecksumMismatch = errors.New("file checksum mismatch")

// verifyFullFileChecksum streams every chunk in index order from the object
// store and feeds it to a single running digest, never buffering the whole
// file in memory.
func (c *Coordinator) verifyFullFileChecksum(ctx context.Context, chunks []metadata.Chunk, declared string) error {
	h := sha256.New()
	for _, chunk := range chunks {
		data, err := c.store.ReadChunk(ctx, chunk.StorageKey)
		if err != nil {
			return err
		}
		h.Write(data)
	}
	if hex.EncodeToString(h.Sum(nil)) != declared {
		return errChecksumMismatch
	}
	return nil
}
