// Package ingest implements the upload coordinator: the init/chunk/missing/
// complete/download lifecycle, wired under pkg/api's router. Every handler
// returns an error instead of writing one itself; pkg/api's adapter
// classifies it (via apierror) and writes the structured error body.
package ingest

import (
	"time"

	"github.com/dfsingest/dfsingest/pkg/metadata"
	"github.com/dfsingest/dfsingest/pkg/objectstore"
	"github.com/dfsingest/dfsingest/pkg/queue"
	"github.com/dfsingest/dfsingest/pkg/worker"
)

// Config bounds chunk sizing, retries, and multipart eligibility.
type Config struct {
	DefaultChunkSizeBytes int64
	MaxRetries            int
	MultipartMinChunkSize int64 // 5 MiB, the S3 multipart minimum part size
	QueueTaskTimeout      time.Duration
}

// Coordinator is the collaborator every upload-lifecycle HTTP handler is a
// method of. It holds no package-level state — every dependency is
// constructed at startup and passed in here, instead of being reached
// through global mutable singletons.
type Coordinator struct {
	cfg       Config
	repo      metadata.Repository
	store     objectstore.Store
	admission *worker.Admission
	persist   chunkPersister
	metrics   Metrics
}

// New builds a Coordinator backed by the worker pool (used when no durable
// queue backend is configured).
func New(cfg Config, repo metadata.Repository, store objectstore.Store, admission *worker.Admission, pool *worker.Pool, metrics Metrics) *Coordinator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Coordinator{
		cfg:       cfg,
		repo:      repo,
		store:     store,
		admission: admission,
		persist:   newPoolPersister(pool, store),
		metrics:   metrics,
	}
}

// NewQueued builds a Coordinator backed by a durable queue + rendezvous
// store (used when a queue backend other than "memory in-process" is
// configured).
func NewQueued(cfg Config, repo metadata.Repository, store objectstore.Store, admission *worker.Admission, q queue.Queue, results *queue.ResultStore, metrics Metrics) *Coordinator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Coordinator{
		cfg:       cfg,
		repo:      repo,
		store:     store,
		admission: admission,
		persist:   newQueuePersister(q, results, cfg.QueueTaskTimeout),
		metrics:   metrics,
	}
}

func (c *Coordinator) chunkSize(requested int64) int64 {
	if requested > 0 {
		return requested
	}
	return c.cfg.DefaultChunkSizeBytes
}

func totalChunks(fileSize, chunkSize int64) int {
	if chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// multipartEligible is true only when the backend supports multipart AND
// total_chunks > 1 AND chunk_size >= 5 MiB.
func (c *Coordinator) multipartEligible(totalChunks int, chunkSize int64) bool {
	return c.store.SupportsMultipart() && totalChunks > 1 && chunkSize >= c.cfg.MultipartMinChunkSize
}
