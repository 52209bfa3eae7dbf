package autoscale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	queued, inflight, workers int
}

func (f fakeSnapshotter) Counts() (queued, inflight, workers int) {
	return f.queued, f.inflight, f.workers
}

type fakeResizer struct {
	sizes []int
}

func (f *fakeResizer) Resize(n int) {
	f.sizes = append(f.sizes, n)
}

func TestTickScalesUpWhenQueuedAndSaturated(t *testing.T) {
	snap := fakeSnapshotter{queued: 10, inflight: 4, workers: 4}
	resize := &fakeResizer{}
	a := New(Config{
		MinWorkers:               1,
		MaxWorkers:               8,
		ScaleUpQueueThreshold:    5,
		ScaleUpUtilizationThresh: 0.8,
	}, snap, resize, nil)

	a.tick()
	require.Len(t, resize.sizes, 1)
	assert.Equal(t, 5, resize.sizes[0])
}

func TestTickScalesDownWhenIdle(t *testing.T) {
	snap := fakeSnapshotter{queued: 0, inflight: 0, workers: 4}
	resize := &fakeResizer{}
	a := New(Config{
		MinWorkers:                 1,
		MaxWorkers:                 8,
		ScaleDownUtilizationThresh: 0.2,
	}, snap, resize, nil)

	a.tick()
	require.Len(t, resize.sizes, 1)
	assert.Equal(t, 3, resize.sizes[0])
}

func TestTickNeverScalesBelowMinWorkers(t *testing.T) {
	snap := fakeSnapshotter{queued: 0, inflight: 0, workers: 1}
	resize := &fakeResizer{}
	a := New(Config{
		MinWorkers:                 1,
		MaxWorkers:                 8,
		ScaleDownUtilizationThresh: 0.2,
	}, snap, resize, nil)

	a.tick()
	assert.Empty(t, resize.sizes)
}

func TestTickNeverScalesAboveMaxWorkers(t *testing.T) {
	snap := fakeSnapshotter{queued: 10, inflight: 8, workers: 8}
	resize := &fakeResizer{}
	a := New(Config{
		MinWorkers:               1,
		MaxWorkers:               8,
		ScaleUpQueueThreshold:    5,
		ScaleUpUtilizationThresh: 0.8,
	}, snap, resize, nil)

	a.tick()
	assert.Empty(t, resize.sizes)
}

func TestTickHoldsSteadyInNeutralZone(t *testing.T) {
	snap := fakeSnapshotter{queued: 2, inflight: 2, workers: 4}
	resize := &fakeResizer{}
	a := New(Config{
		MinWorkers:                 1,
		MaxWorkers:                 8,
		ScaleUpQueueThreshold:      5,
		ScaleUpUtilizationThresh:   0.8,
		ScaleDownUtilizationThresh: 0.2,
	}, snap, resize, nil)

	a.tick()
	assert.Empty(t, resize.sizes)
}

func TestRunDoesNothingWhenDisabled(t *testing.T) {
	snap := fakeSnapshotter{queued: 100, inflight: 100, workers: 1}
	resize := &fakeResizer{}
	a := New(Config{Enabled: false}, snap, resize, nil)

	// Run returns immediately when disabled, never ticking.
	a.Run(nil)
	assert.Empty(t, resize.sizes)
}
