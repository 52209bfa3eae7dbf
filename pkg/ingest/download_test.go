package ingest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadFullFile walks an upload through init, every chunk, and complete,
// returning its upload ID.
func uploadFullFile(t *testing.T, c *Coordinator, name string, content []byte, chunkSize int64) string {
	t.Helper()
	up := createUpload(t, c, name, int64(len(content)), chunkSize)
	for i := int64(0); i*chunkSize < int64(len(content)); i++ {
		lo := i * chunkSize
		hi := lo + chunkSize
		if hi > int64(len(content)) {
			hi = int64(len(content))
		}
		rec := uploadChunk(t, c, up.UploadID, int(i), content[lo:hi])
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := completeUpload(t, c, up.UploadID)
	require.Equal(t, http.StatusOK, rec.Code)
	return up.UploadID
}

func TestDownload(t *testing.T) {
	content := []byte("abcdefghijklmnop") // 16 bytes, chunk size 4 -> 4 chunks

	t.Run("StreamsFullFileWithoutRangeHeader", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": uploadID})
		rec := httptest.NewRecorder()
		require.NoError(t, c.Download(rec, req))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, content, rec.Body.Bytes())
	})

	t.Run("ServesPrefixRange", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": uploadID})
		req.Header.Set("Range", "bytes=6-")
		rec := httptest.NewRecorder()
		require.NoError(t, c.Download(rec, req))
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, content[6:], rec.Body.Bytes())
	})

	t.Run("ServesOpenStartRange", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": uploadID})
		req.Header.Set("Range", "bytes=-5")
		rec := httptest.NewRecorder()
		require.NoError(t, c.Download(rec, req))
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, content[0:6], rec.Body.Bytes())
	})

	t.Run("ServesMidRangeSpanningMultipleChunks", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": uploadID})
		req.Header.Set("Range", "bytes=2-9")
		rec := httptest.NewRecorder()
		require.NoError(t, c.Download(rec, req))
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, content[2:10], rec.Body.Bytes())
	})

	t.Run("RejectsOutOfBoundsRange", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": uploadID})
		req.Header.Set("Range", "bytes=1000-2000")
		rec := recordHandlerErr(t, c.Download, req)
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	})

	t.Run("RejectsDownloadBeforeCompletion", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", int64(len(content)), 4)
		uploadChunk(t, c, up.UploadID, 0, content[0:4])

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, testPrincipal, map[string]string{"id": up.UploadID})
		rec := recordHandlerErr(t, c.Download, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("RejectsUnownedUpload", func(t *testing.T) {
		c := newTestCoordinator(t)
		uploadID := uploadFullFile(t, c, "a.bin", content, 4)

		req := newRequest(t, "GET", "/v1/uploads/x/download", nil, Principal{UserID: "someone-else"}, map[string]string{"id": uploadID})
		rec := recordHandlerErr(t, c.Download, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
