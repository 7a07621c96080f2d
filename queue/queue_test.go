package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubstrate(t *testing.T) (*Substrate, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := New(context.Background(), Config{
		URL:    "redis://" + mr.Addr() + "/0",
		Prefix: "filot:test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestEnqueueIsIdempotent(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	ok, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok, "re-enqueueing a document already in the main list is a no-op")
}

func TestQueueLenReflectsEnqueuedCount(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	n, err := s.QueueLen(ctx, CPU)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, CPU, "doc-2")
	require.NoError(t, err)

	n, err = s.QueueLen(ctx, CPU)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.Dequeue(ctx, CPU, time.Second)
	require.NoError(t, err)

	n, err = s.QueueLen(ctx, CPU)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "dequeue moves the entry out of the main list")
}

func TestEnqueueRejectsDocumentAlreadyProcessing(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)

	docID, err := s.Dequeue(ctx, CPU, time.Second)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)

	ok, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDequeueMovesIntoProcessingSet(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)

	docID, err := s.Dequeue(ctx, CPU, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", docID)

	_, started, err := s.ProcessingStartedAt(ctx, CPU, "doc-1")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestDequeueTimesOutWithNoJob(t *testing.T) {
	s, _ := newTestSubstrate(t)
	docID, err := s.Dequeue(context.Background(), CPU, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, docID)
}

func TestMarkCompleteClearsEverything(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)
	_, err = s.Dequeue(ctx, CPU, time.Second)
	require.NoError(t, err)

	_, err = s.IncrementAttempts(ctx, "doc-1")
	require.NoError(t, err)
	require.NoError(t, s.SetCorrelationID(ctx, "doc-1", "corr-1"))
	locked, err := s.AcquireLock(ctx, "doc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, s.MarkComplete(ctx, CPU, "doc-1"))

	_, stillProcessing, err := s.ProcessingStartedAt(ctx, CPU, "doc-1")
	require.NoError(t, err)
	assert.False(t, stillProcessing)

	cid, err := s.GetCorrelationID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, cid)

	isLocked, err := s.IsLocked(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, isLocked)
}

func TestAcquireLockOnAlreadyLockedDocReturnsFalse(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "doc-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "doc-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be re-acquired by a second caller")
}

func TestIncrementAttemptsIsMonotonic(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	n1, err := s.IncrementAttempts(ctx, "doc-1")
	require.NoError(t, err)
	n2, err := s.IncrementAttempts(ctx, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, 1, n1)
	assert.Equal(t, 2, n2)
}

func TestScheduleRetryMovesBackAfterSweep(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	require.NoError(t, s.ScheduleRetry(ctx, CPU, "doc-1", time.Second))

	n, err := s.SweepDelayed(ctx, CPU)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "entry is not due yet")

	// Due times are taken from the process clock, not the Redis server's.
	time.Sleep(2 * time.Second)

	n, err = s.SweepDelayed(ctx, CPU)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docID, err := s.Dequeue(ctx, CPU, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", docID)
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	require.NoError(t, s.SetCorrelationID(ctx, "doc-1", "corr-abc"))
	cid, err := s.GetCorrelationID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "corr-abc", cid)
}

func TestPublishSubscribeResult(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := s.SubscribeResults(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.PublishResult(ctx, Result{DocumentID: "doc-1", Outcome: "completed", Score: 80})
	}()

	select {
	case r := <-results:
		assert.Equal(t, "doc-1", r.DocumentID)
		assert.Equal(t, "completed", r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published result")
	}
}

func TestCPUAndGPUQueuesAreIndependent(t *testing.T) {
	s, _ := newTestSubstrate(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, CPU, "doc-1")
	require.NoError(t, err)

	docID, err := s.Dequeue(ctx, GPU, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, docID, "a document enqueued on CPU must not be visible on GPU")
}
