package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata"
)

// Download handles GET /v1/uploads/{id}/download. It streams chunks lazily,
// one at a time, and never buffers the whole file.
func (c *Coordinator) Download(w http.ResponseWriter, r *http.Request) error {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		return apierror.MissingCredential("authentication required")
	}

	uploadID := chi.URLParam(r, "id")
	upload, err := c.loadOwnedUpload(r, uploadID, principal)
	if err != nil {
		return err
	}
	if upload.Status != metadata.UploadStatusCompleted {
		return apierror.Conflict("upload is in state " + string(upload.Status))
	}

	ctx := r.Context()
	chunks, err := c.repo.ListChunksOrdered(ctx, uploadID)
	if err != nil {
		return apierror.Internal("failed to list chunks")
	}
	if len(chunks) != upload.TotalChunks {
		return apierror.Internal("inconsistent metadata")
	}

	// offsets[i] is the byte offset at which chunk i begins in the
	// reassembled file.
	offsets := make([]int64, len(chunks)+1)
	for i, chunk := range chunks {
		offsets[i+1] = offsets[i] + chunk.SizeBytes
	}
	fileSize := offsets[len(chunks)]

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
		w.WriteHeader(http.StatusOK)
		// Headers (and a 2xx status) are already on the wire: a failure
		// from here on can only be logged, never turned into a structured
		// error body without corrupting the byte stream.
		c.streamRange(ctx, w, chunks, offsets, 0, fileSize-1)
		return nil
	}

	start, end, err := parseRange(rangeHeader, fileSize)
	if err != nil {
		return apierror.RangeError(err.Error())
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	c.streamRange(ctx, w, chunks, offsets, start, end)
	return nil
}

// parseRange parses a single "bytes=<start>-<end>" range, defaulting an
// omitted start to 0 and an omitted end to fileSize-1 (so "bytes=-N" means
// bytes 0 through N), and rejecting anything malformed or out of bounds.
func parseRange(header string, fileSize int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range unit")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range")
	}

	if parts[0] != "" {
		start, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range")
		}
	}
	if parts[1] == "" {
		end = fileSize - 1
	} else {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range")
		}
	}

	if fileSize == 0 || start < 0 || end < start || start >= fileSize {
		return 0, 0, fmt.Errorf("range out of bounds")
	}
	if end >= fileSize {
		end = fileSize - 1
	}
	return start, end, nil
}

// streamRange writes bytes [start, end] (inclusive) of the reassembled
// file, reading one chunk at a time from the object store and writing only
// the slice of each chunk that intersects the requested range. A chunk
// entirely outside [start, end] is skipped without ever being read. Errors
// here can't be reported through the response body — the status line is
// already written — so streamRange stops silently; the client sees a
// truncated body and retries.
func (c *Coordinator) streamRange(ctx context.Context, w http.ResponseWriter, chunks []metadata.Chunk, offsets []int64, start, end int64) {
	for i, chunk := range chunks {
		chunkStart, chunkEnd := offsets[i], offsets[i+1]-1
		if chunkEnd < start || chunkStart > end {
			continue
		}

		data, err := c.store.ReadChunk(ctx, chunk.StorageKey)
		if err != nil {
			return
		}

		loOff := int64(0)
		if start > chunkStart {
			loOff = start - chunkStart
		}
		hiOff := int64(len(data))
		if end < chunkEnd {
			hiOff = end - chunkStart + 1
		}
		if loOff >= hiOff {
			continue
		}

		if _, err := w.Write(data[loOff:hiOff]); err != nil {
			return // client disconnected mid-stream
		}
	}
}
