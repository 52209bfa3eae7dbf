package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dfsingest/dfsingest/pkg/objectstore"
	"github.com/dfsingest/dfsingest/pkg/queue"
	"github.com/dfsingest/dfsingest/pkg/worker"
)

// chunkPersister writes one chunk's bytes to the object store, either by
// submitting a blocking job to the in-process worker pool or by publishing
// to a durable queue and awaiting the consumer's result at the rendezvous
// store. Both routes return the same (key, etag) shape so the coordinator
// doesn't care which is configured.
type chunkPersister interface {
	Persist(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (key, etag string, err error)
}

// poolPersister runs the object-store write on the in-process worker pool.
// Used when no durable queue backend is configured.
type poolPersister struct {
	pool  *worker.Pool
	store objectstore.Store
}

func newPoolPersister(pool *worker.Pool, store objectstore.Store) *poolPersister {
	return &poolPersister{pool: pool, store: store}
}

func (p *poolPersister) Persist(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (string, string, error) {
	resultCh := p.pool.Submit(ctx, func(ctx context.Context) (string, string, error) {
		return p.store.WriteChunk(ctx, uploadID, index, data, multipartToken)
	})

	select {
	case res := <-resultCh:
		return res.Key, res.ETag, res.Err
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

// queuePersister publishes a ChunkWriteTask to a durable queue and blocks
// on the result rendezvous store, bounded by taskTimeout — the source of
// truth for a queue-backed chunk write's deadline.
type queuePersister struct {
	q           queue.Queue
	results     *queue.ResultStore
	taskTimeout time.Duration
}

func newQueuePersister(q queue.Queue, results *queue.ResultStore, taskTimeout time.Duration) *queuePersister {
	return &queuePersister{q: q, results: results, taskTimeout: taskTimeout}
}

func (p *queuePersister) Persist(ctx context.Context, uploadID string, index int, data []byte, multipartToken string) (string, string, error) {
	taskID := fmt.Sprintf("%s/%d/%d", uploadID, index, time.Now().UnixNano())

	if err := p.q.Enqueue(ctx, queue.ChunkWriteTask{
		TaskID:         taskID,
		UploadID:       uploadID,
		ChunkIndex:     index,
		MultipartToken: multipartToken,
		Payload:        data,
	}); err != nil {
		return "", "", fmt.Errorf("enqueue chunk task: %w", err)
	}

	deadline := p.taskTimeout
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := p.results.Await(waitCtx, taskID, 0)
	if err != nil {
		return "", "", err
	}
	if !result.OK {
		return "", "", fmt.Errorf("chunk write failed: %s", result.Message)
	}
	return result.Key, result.ETag, nil
}

// QueueConsumer drains a durable queue, performs the chunk write, and
// publishes the outcome to the rendezvous store. One goroutine runs per
// configured consumer.
type QueueConsumer struct {
	q           queue.Queue
	store       objectstore.Store
	results     *queue.ResultStore
	pollTimeout time.Duration
}

// NewQueueConsumer builds a consumer bound to q, writing through store and
// publishing outcomes to results.
func NewQueueConsumer(q queue.Queue, store objectstore.Store, results *queue.ResultStore, pollTimeout time.Duration) *QueueConsumer {
	return &QueueConsumer{q: q, store: store, results: results, pollTimeout: pollTimeout}
}

// Run dequeues tasks until ctx is cancelled. On write failure it still
// publishes an error result and acks — the visibility timeout was already
// consumed, and retries are the coordinator's responsibility at HTTP level.
func (c *QueueConsumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delivery, ok, err := c.q.Dequeue(ctx, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !ok {
			continue
		}

		key, etag, err := c.store.WriteChunk(ctx, delivery.Task.UploadID, delivery.Task.ChunkIndex, delivery.Task.Payload, delivery.Task.MultipartToken)
		if err != nil {
			c.results.Publish(delivery.Task.TaskID, queue.ChunkResult{OK: false, Message: err.Error()})
		} else {
			c.results.Publish(delivery.Task.TaskID, queue.ChunkResult{OK: true, Key: key, ETag: etag})
		}

		_ = c.q.Ack(ctx, delivery)
	}
}
