// Package memqueue implements queue.Queue as a bounded in-process FIFO.
// Ack is a no-op: there is no external system to confirm delivery to.
package memqueue

import (
	"context"
	"time"

	"github.com/dfsingest/dfsingest/pkg/queue"
)

// Queue is a channel-backed FIFO implementation of queue.Queue.
type Queue struct {
	tasks chan queue.ChunkWriteTask
}

// New creates a memory queue. capacity bounds the channel buffer; Enqueue
// blocks once full, applying natural backpressure.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{tasks: make(chan queue.ChunkWriteTask, capacity)}
}

func (q *Queue) Enqueue(ctx context.Context, task queue.ChunkWriteTask) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context, pollTimeout time.Duration) (queue.Delivery, bool, error) {
	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		return queue.Delivery{Task: task}, true, nil
	case <-timer.C:
		return queue.Delivery{}, false, nil
	case <-ctx.Done():
		return queue.Delivery{}, false, ctx.Err()
	}
}

func (q *Queue) Ack(ctx context.Context, delivery queue.Delivery) error { return nil }

func (q *Queue) Backend() string { return "memory" }

var _ queue.Queue = (*Queue)(nil)
