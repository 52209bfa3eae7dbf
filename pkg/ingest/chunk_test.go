package ingest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadChunk(t *testing.T) {
	t.Run("AcceptsChunkInRange", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		rec := uploadChunk(t, c, up.UploadID, 0, []byte("abcd"))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("RejectsIndexOutOfRange", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		rec := uploadChunk(t, c, up.UploadID, up.TotalChunks, []byte("abcd"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsEmptyBody", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		rec := uploadChunk(t, c, up.UploadID, 0, []byte{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsDeclaredChecksumMismatch", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		req := newRequest(t, "PUT", "/v1/uploads/x/chunks/0", []byte("abcd"), testPrincipal, map[string]string{
			"id":    up.UploadID,
			"index": "0",
		})
		req.ContentLength = 4
		req.Header.Set("X-Chunk-SHA256", "not-a-real-checksum")
		rec := recordHandlerErr(t, c.UploadChunk, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("IdempotentReplayOfAlreadyUploadedChunkReturnsAccepted", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		req1 := newRequest(t, "PUT", "/v1/uploads/x/chunks/0", []byte("abcd"), testPrincipal, map[string]string{
			"id":    up.UploadID,
			"index": "0",
		})
		req1.ContentLength = 4
		req1.Header.Set("Idempotency-Key", "chunk-key-1")
		rec1 := recordHandlerErr(t, c.UploadChunk, req1)
		assert.Equal(t, http.StatusAccepted, rec1.Code)

		req2 := newRequest(t, "PUT", "/v1/uploads/x/chunks/0", []byte("abcd"), testPrincipal, map[string]string{
			"id":    up.UploadID,
			"index": "0",
		})
		req2.ContentLength = 4
		req2.Header.Set("Idempotency-Key", "chunk-key-1")
		rec2 := recordHandlerErr(t, c.UploadChunk, req2)
		assert.Equal(t, http.StatusAccepted, rec2.Code)
	})

	t.Run("RejectsUnownedUpload", func(t *testing.T) {
		c := newTestCoordinator(t)
		up := createUpload(t, c, "a.bin", 10, 4)

		req := newRequest(t, "PUT", "/v1/uploads/x/chunks/0", []byte("abcd"), Principal{UserID: "someone-else"}, map[string]string{
			"id":    up.UploadID,
			"index": "0",
		})
		req.ContentLength = 4
		rec := recordHandlerErr(t, c.UploadChunk, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
