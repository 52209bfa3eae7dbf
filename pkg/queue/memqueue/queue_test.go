package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfsingest/dfsingest/pkg/queue"
)

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q := New(4)
	task := queue.ChunkWriteTask{TaskID: "t-1", UploadID: "up-1", ChunkIndex: 0, Payload: []byte("x")}

	require.NoError(t, q.Enqueue(context.Background(), task))

	delivery, ok, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task, delivery.Task)
}

func TestDequeueTimesOutWhenEmpty(t *testing.T) {
	q := New(4)
	delivery, ok, err := q.Dequeue(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, queue.Delivery{}, delivery)
}

func TestEnqueueBlocksThenRespectsContextCancellation(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Enqueue(context.Background(), queue.ChunkWriteTask{TaskID: "fills-capacity"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, queue.ChunkWriteTask{TaskID: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAckIsNoOpAndBackendReportsMemory(t *testing.T) {
	q := New(1)
	assert.NoError(t, q.Ack(context.Background(), queue.Delivery{}))
	assert.Equal(t, "memory", q.Backend())
}

func TestDefaultCapacityAppliedWhenNonPositive(t *testing.T) {
	q := New(0)
	require.NotNil(t, q.tasks)
	assert.Equal(t, 1024, cap(q.tasks))
}
