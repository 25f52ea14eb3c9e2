package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	count int32
	fail  bool
}

func (p *countingProcessor) Process(ctx context.Context, item WorkItem) error {
	atomic.AddInt32(&p.count, 1)
	if p.fail {
		return errors.New("fail")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestQueue_StartEnqueueShutdown(t *testing.T) {
	q := NewQueue(discardLogger(), 2, 1)
	p := &countingProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Start(ctx, p))

	var cleaned int32
	item := WorkItem{
		Batch:   Batch{JobID: "id1", TripID: "trip"},
		Cleanup: func() error { atomic.AddInt32(&cleaned, 1); return nil },
	}
	require.NoError(t, q.Enqueue(item))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&cleaned) == 1 }, 2*time.Second, 5*time.Millisecond,
		"cleanup should run once")
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.count), "processor called once")

	q.Shutdown(2 * time.Second)
}

func TestQueue_CleanupRunsOnFailure(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 1)
	p := &countingProcessor{fail: true}
	require.NoError(t, q.Start(context.Background(), p))

	done := make(chan struct{})
	require.NoError(t, q.Enqueue(WorkItem{Batch: Batch{JobID: "x"}, Cleanup: func() error { close(done); return nil }}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup not called after failed batch")
	}
	q.Shutdown(time.Second)
}

func TestQueue_EnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 1)
	err := q.Enqueue(WorkItem{Batch: Batch{JobID: "x"}})
	assert.ErrorIs(t, err, ErrQueueNotStarted)
}

type blockingProcessor struct {
	release chan struct{}
	started chan struct{}
}

func (p *blockingProcessor) Process(ctx context.Context, item WorkItem) error {
	p.started <- struct{}{}
	<-p.release
	return nil
}

func TestQueue_FullReturnsErrQueueFull(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 1)
	p := &blockingProcessor{release: make(chan struct{}), started: make(chan struct{}, 1)}
	require.NoError(t, q.Start(context.Background(), p))

	require.NoError(t, q.Enqueue(WorkItem{Batch: Batch{JobID: "1"}}))
	<-p.started // worker holds item 1
	require.NoError(t, q.Enqueue(WorkItem{Batch: Batch{JobID: "2"}}))
	assert.ErrorIs(t, q.Enqueue(WorkItem{Batch: Batch{JobID: "3"}}), ErrQueueFull)

	close(p.release)
	q.Shutdown(time.Second)
}
