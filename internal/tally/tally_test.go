package tally

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventgate/internal/queue"
)

func TestRunCountsEvents(t *testing.T) {
	q := queue.NewInMemory(8)
	c := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, queue.Emit(ctx, q, queue.TypeRegistered, queue.Event{Kind: "student"}))
	require.NoError(t, queue.Emit(ctx, q, queue.TypeCheckedIn, queue.Event{Kind: "student"}))
	require.NoError(t, queue.Emit(ctx, q, queue.TypeCheckedIn, queue.Event{Kind: "staff"}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.TypeCheckedIn, Body: []byte("not json")}))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, c) }()

	require.Eventually(t, func() bool {
		s, _ := c.Snapshot(ctx)
		return s.Get(queue.TypeCheckedIn, "staff") == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Get(queue.TypeRegistered, "student"))
	assert.Equal(t, int64(1), s.Get(queue.TypeCheckedIn, "student"))
	assert.Equal(t, int64(1), s.Get(queue.TypeCheckedIn, "staff"))
}

func TestMemorySnapshotIsCopy(t *testing.T) {
	c := NewMemory()
	require.NoError(t, c.Incr(context.Background(), queue.TypeRejected, ""))
	s, _ := c.Snapshot(context.Background())
	s["checkin.rejected:unknown"] = 99

	again, _ := c.Snapshot(context.Background())
	assert.Equal(t, int64(1), again.Get(queue.TypeRejected, ""))
}
