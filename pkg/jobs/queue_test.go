package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	attempts []int
	done     chan struct{}
	failures int
}

func newRecorder(failures int) *recorder {
	return &recorder{done: make(chan struct{}), failures: failures}
}

func (r *recorder) handle(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, job.Attempt)
	if len(r.attempts) <= r.failures {
		return errors.New("transient failure")
	}
	close(r.done)
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed in time")
	}
}

func TestQueueProcessesJob(t *testing.T) {
	rec := newRecorder(0)
	queue := NewQueue("test", rec.handle, QueueConfig{Workers: 1})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "j1", Type: "noop"}))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{0}, rec.attempts)
}

func TestQueueRetriesFailedJob(t *testing.T) {
	rec := newRecorder(2)
	queue := NewQueue("test", rec.handle, QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "j1", Type: "flaky"}))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, rec.attempts)
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	queue := NewQueue("test", func(ctx context.Context, job Job) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 10})
	queue.Start(context.Background())

	for _, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		require.NoError(t, queue.Enqueue(Job{ID: id, Type: "noop"}))
	}
	queue.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, handled, 5)
}

func TestQueueEnqueueAfterStop(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	queue.Start(context.Background())
	queue.Stop()

	err := queue.Enqueue(Job{ID: "j1"})

	assert.Error(t, err)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	queue := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})

	err := queue.Enqueue(Job{ID: "j1"})

	assert.Error(t, err)
}
