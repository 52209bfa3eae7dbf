package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dfsingest/dfsingest/pkg/ingest/apierror"
	"github.com/dfsingest/dfsingest/pkg/metadata/memstore"
	"github.com/dfsingest/dfsingest/pkg/objectstore/local"
	"github.com/dfsingest/dfsingest/pkg/worker"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	store, err := local.New(local.Config{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	repo := memstore.New()
	pool := worker.New(4, 64)
	t.Cleanup(pool.Shutdown)
	admission := worker.NewAdmission(worker.AdmissionConfig{
		TaskQueueMaxSize:               64,
		MaxGlobalInflightChunks:        64,
		MaxInflightChunksPerUpload:     64,
		MaxFairInflightChunksPerUpload: 64,
	}, pool)

	return New(Config{
		DefaultChunkSizeBytes: 4,
		MaxRetries:            1,
		MultipartMinChunkSize: 5 << 20,
	}, repo, store, admission, pool, NopMetrics{})
}

// newRequest builds an *http.Request carrying a chi URL-param context and an
// authenticated principal, the same shape the router's middleware stack
// produces before a handler runs.
func newRequest(t *testing.T, method, target string, body []byte, principal Principal, urlParams map[string]string) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rctx := chi.NewRouteContext()
	for k, v := range urlParams {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = WithPrincipal(ctx, principal)
	return req.WithContext(ctx)
}

var testPrincipal = Principal{UserID: "user-1", RateKey: "user-1"}
var adminPrincipal = Principal{UserID: "admin-1", IsAdmin: true, RateKey: "admin-1"}

// createUpload runs Init through the coordinator and returns its response,
// saving every other test from re-deriving chunk size/count by hand.
func createUpload(t *testing.T, c *Coordinator, fileName string, fileSize, chunkSize int64) InitResponse {
	t.Helper()

	body, err := json.Marshal(InitRequest{FileName: fileName, FileSize: fileSize, ChunkSize: chunkSize})
	if err != nil {
		t.Fatalf("marshal init request: %v", err)
	}
	req := newRequest(t, "POST", "/v1/uploads/init", body, testPrincipal, nil)
	rec := httptest.NewRecorder()
	if err := c.Init(rec, req); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var resp InitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal init response: %v", err)
	}
	return resp
}

// uploadChunk PUTs one chunk's bytes through the coordinator and returns the
// recorded response.
func uploadChunk(t *testing.T, c *Coordinator, uploadID string, index int, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := newRequest(t, "PUT", "/v1/uploads/x/chunks/y", data, testPrincipal, map[string]string{
		"id":    uploadID,
		"index": strconv.Itoa(index),
	})
	req.ContentLength = int64(len(data))
	return recordHandlerErr(t, c.UploadChunk, req)
}

// writeHandlerErr mimics pkg/api's Wrap enough for tests to assert on status
// codes without pulling in the full HTTP adapter.
func writeHandlerErr(rec *httptest.ResponseRecorder, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		rec.Code = apiErr.Status
		return
	}
	rec.Code = http.StatusInternalServerError
}

// recordHandlerErr runs handler and, on a non-nil error, overwrites the
// recorder's status the way pkg/api's Wrap would.
func recordHandlerErr(t *testing.T, handler func(http.ResponseWriter, *http.Request) error, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := handler(rec, req); err != nil {
		writeHandlerErr(rec, err)
	}
	return rec
}
