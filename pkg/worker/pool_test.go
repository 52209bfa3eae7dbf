package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitRunsJobAndReturnsResult(t *testing.T) {
	p := New(2, 4)
	defer p.Shutdown()

	result := <-p.Submit(context.Background(), func(ctx context.Context) (string, string, error) {
		return "key-1", "etag-1", nil
	})
	assert.NoError(t, result.Err)
	assert.Equal(t, "key-1", result.Key)
	assert.Equal(t, "etag-1", result.ETag)
}

func TestPoolSubmitPropagatesJobError(t *testing.T) {
	p := New(1, 4)
	defer p.Shutdown()

	boom := assert.AnError
	result := <-p.Submit(context.Background(), func(ctx context.Context) (string, string, error) {
		return "", "", boom
	})
	assert.ErrorIs(t, result.Err, boom)
}

func TestPoolSubmitCancelledContextReturnsWithoutRunning(t *testing.T) {
	p := New(0, 0) // zero workers, zero queue capacity: nothing ever drains the job
	defer p.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := <-p.Submit(ctx, func(ctx context.Context) (string, string, error) {
		t.Fatal("job should never run against a cancelled submit")
		return "", "", nil
	})
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestPoolResizeChangesWorkerCount(t *testing.T) {
	p := New(2, 4)
	defer p.Shutdown()

	assert.Equal(t, 2, p.WorkerCount())
	p.Resize(5)
	assert.Equal(t, 5, p.WorkerCount())
	p.Resize(1)
	assert.Equal(t, 1, p.WorkerCount())
}

func TestPoolQueueDepthReflectsBufferedJobs(t *testing.T) {
	p := New(0, 4) // no workers: submitted jobs sit in the queue
	defer p.Shutdown()

	block := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			<-p.Submit(context.Background(), func(ctx context.Context) (string, string, error) {
				<-block
				return "", "", nil
			})
		}()
	}

	require.Eventually(t, func() bool { return p.QueueDepth() == 3 }, time.Second, time.Millisecond)
	close(block)
}
