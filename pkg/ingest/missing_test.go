package ingest

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingChunks(t *testing.T) {
	t.Run("ListsEveryIndexBeforeAnyUpload", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4) // 3 chunks

		req := newRequest(t, "GET", "/v1/uploads/x/missing-chunks", nil, testPrincipal, map[string]string{"id": up.UploadID})
		rec := recordHandlerErr(t, c.MissingChunks, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp MissingChunksResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []int{0, 1, 2}, resp.MissingChunkIndexes)
	})

	t.Run("ExcludesUploadedIndexes", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)
		uploadChunk(t, c, up.UploadID, 1, []byte("abcd"))

		req := newRequest(t, "GET", "/v1/uploads/x/missing-chunks", nil, testPrincipal, map[string]string{"id": up.UploadID})
		rec := recordHandlerErr(t, c.MissingChunks, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp MissingChunksResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []int{0, 2}, resp.MissingChunkIndexes)
	})

	t.Run("UnknownUploadIsNotFound", func(t *testing.T) {
		c := newTestCoordinator(t)
		req := newRequest(t, "GET", "/v1/uploads/x/missing-chunks", nil, testPrincipal, map[string]string{"id": "does-not-exist"})
		rec := recordHandlerErr(t, c.MissingChunks, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
