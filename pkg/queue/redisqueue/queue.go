// Package redisqueue implements queue.Queue over a Redis list, using a
// blocking right-pop for consumers and a left-push for producers so the
// list behaves as a FIFO.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dfsingest/dfsingest/pkg/queue"
)

// Config configures the Redis-backed queue.
type Config struct {
	URL       string
	QueueName string
}

// Queue is a Redis list-backed implementation of queue.Queue.
type Queue struct {
	client    *redis.Client
	queueName string
}

// New connects to Redis per cfg.URL and returns a Queue bound to
// cfg.QueueName.
func New(cfg Config) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &Queue{client: client, queueName: cfg.QueueName}, nil
}

func (q *Queue) Enqueue(ctx context.Context, task queue.ChunkWriteTask) error {
	data, err := queue.Marshal(task)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, pollTimeout time.Duration) (queue.Delivery, bool, error) {
	result, err := q.client.BRPop(ctx, pollTimeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return queue.Delivery{}, false, nil
	}
	if err != nil {
		return queue.Delivery{}, false, fmt.Errorf("redis brpop: %w", err)
	}

	// BRPop returns [key, value].
	if len(result) != 2 {
		return queue.Delivery{}, false, fmt.Errorf("redis brpop: unexpected reply shape")
	}

	task, err := queue.Unmarshal([]byte(result[1]))
	if err != nil {
		return queue.Delivery{}, false, err
	}

	return queue.Delivery{Task: task}, true, nil
}

// Ack is a no-op: BRPop already removed the element from the list, so
// there is nothing left to confirm.
func (q *Queue) Ack(ctx context.Context, delivery queue.Delivery) error { return nil }

func (q *Queue) Backend() string { return "redis" }

// Close releases the underlying Redis client.
func (q *Queue) Close() error { return q.client.Close() }

var _ queue.Queue = (*Queue)(nil)
