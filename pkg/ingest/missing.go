package ingest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
)

// MissingChunks handles GET /v1/uploads/{id}/missing-chunks.
func (c *Coordinator) MissingChunks(w http.ResponseWriter, r *http.Request) error {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apierror.MissingCredential("authentication required")
	}

	uploadID := chi.URLParam(r, "id")
	if _, err := c.loadOwnedUpload(r, uploadID, principal); err != nil {
		return err
	}

	indexes, err := c.repo.MissingChunkIndexes(r.Context(), uploadID)
	if err != nil {
		return apierror.Internal("failed to list missing chunks")
	}
	if indexes == nil {
		indexes = []int{}
	}

	return writeJSON(w, http.StatusOK, MissingChunksResponse{MissingChunkIndexes: indexes})
}
