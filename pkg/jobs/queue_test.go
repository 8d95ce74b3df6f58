package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobOnceEvenOnFailure(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("slides", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		close(done)
		return errors.New("render failed")
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "session-1", Type: "slides"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	assert.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueRejectsDuplicateInflightJobs(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	q := NewQueue("slides", func(ctx context.Context, job Job) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, QueueConfig{})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "session-1"}))
	<-started
	err := q.Enqueue(Job{ID: "session-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, q.Pending())

	close(release)
	assert.Eventually(t, func() bool { return q.Enqueue(Job{ID: "session-1"}) == nil }, time.Second, 5*time.Millisecond)
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	q := NewQueue("slides", func(ctx context.Context, job Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	assert.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "b"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "c"}), ErrQueueFull)
}

func TestQueueJobTimeoutCancelsHandler(t *testing.T) {
	got := make(chan error, 1)
	q := NewQueue("slides", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	}, QueueConfig{JobTimeout: 20 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestQueueSurvivesPanickingHandler(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("slides", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("bad font")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestQueueEnqueueRequiresRunning(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "x"}), ErrNotRunning)

	q.Start(context.Background())
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "x"}), ErrNotRunning)
}
