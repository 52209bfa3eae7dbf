package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// loadOwnedUpload loads an upload and enforces the owner-or-admin check
// shared by every handler that operates on an existing upload.
func (c *Coordinator) loadOwnedUpload(r *http.Request, id string, principal Principal) (*metadata.Upload, error) {
	upload, err := c.repo.GetUpload(r.Context(), id)
	if err != nil {
		if errors.Is(err, metadata.ErrUploadNotFound) {
			return nil, apierror.NotFound("upload not found")
		}
		return nil, apierror.Internal("failed to load upload")
	}
	if upload.OwnerID != principal.UserID && !principal.IsAdmin {
		return nil, apierror.Forbidden("upload belongs to another principal")
	}
	return upload, nil
}
