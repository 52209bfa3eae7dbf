package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata"
)

// Init handles POST /v1/uploads/init.
func (c *Coordinator) Init(w http.ResponseWriter, r *http.Request) error {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apierror.MissingCredential("authentication required")
	}

	var req InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apierror.Validation("invalid request body")
	}
	if req.FileName == "" {
		return apierror.Validation("file_name is required")
	}
	if req.FileSize <= 0 {
		return apierror.Validation("file_size must be > 0")
	}

	chunkSize := c.chunkSize(req.ChunkSize)
	total := totalChunks(req.FileSize, chunkSize)

	fp, err := initFingerprint(req.FileName, req.FileSize, chunkSize, req.FileChecksum)
	if err != nil {
		return apierror.Internal("failed to compute fingerprint")
	}

	ctx := r.Context()
	idempotencyKey := r.Header.Get("Idempotency-Key")

	if idempotencyKey != "" {
		rec, found, err := c.repo.ProbeInitIdempotency(ctx, idempotencyKey)
		if err != nil {
			return apierror.Internal("idempotency probe failed")
		}
		if found {
			if rec.RequestFingerprint != fp {
				return apierror.Conflict("idempotency key already bound to a different request")
			}
			upload, err := c.repo.GetUpload(ctx, rec.UploadID)
			if err != nil {
				return apierror.Internal("failed to load bound upload")
			}
			if upload.OwnerID != principal.UserID {
				return apierror.Forbidden("upload belongs to another principal")
			}
			return writeJSON(w, http.StatusCreated, InitResponse{
				UploadID:    upload.ID,
				ChunkSize:   upload.ChunkSize,
				TotalChunks: upload.TotalChunks,
				Status:      string(upload.Status),
			})
		}
	}

	upload := &metadata.Upload{
		ID:                 uuid.NewString(),
		OwnerID:            principal.UserID,
		FileName:           req.FileName,
		FileSize:           req.FileSize,
		ChunkSize:          chunkSize,
		TotalChunks:        total,
		FileChecksumSHA256: req.FileChecksum,
		Status:             metadata.UploadStatusInitiated,
	}

	if c.multipartEligible(total, chunkSize) {
		token, err := c.store.InitializeUpload(ctx, upload.ID, true)
		if err != nil {
			return apierror.Upstream("failed to initialize multipart upload")
		}
		upload.MultipartUploadID = token
	}

	if err := c.repo.CreateUpload(ctx, upload, idempotencyKey, fp); err != nil {
		return apierror.Internal("failed to create upload")
	}

	return writeJSON(w, http.StatusCreated, InitResponse{
		UploadID:    upload.ID,
		ChunkSize:   upload.ChunkSize,
		TotalChunks: upload.TotalChunks,
		Status:      string(upload.Status),
	})
}
