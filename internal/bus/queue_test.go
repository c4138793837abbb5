package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/pkg/exception"
)

func TestQueueTryPublishFull(t *testing.T) {
	q := NewQueue[int](2)

	require.NoError(t, q.TryPublish(1))
	require.NoError(t, q.TryPublish(2))
	assert.ErrorIs(t, q.TryPublish(3), exception.ErrWriterQueueFull)
	assert.Equal(t, 2, q.Len())
}

func TestQueueClosedRejects(t *testing.T) {
	q := NewQueue[int](2)
	require.NoError(t, q.TryPublish(1))
	q.Close()

	assert.ErrorIs(t, q.TryPublish(2), exception.ErrWriterClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), 2), exception.ErrWriterClosed)

	// double close is safe
	q.Close()
}

func TestQueueRunDrainsBufferedAfterClose(t *testing.T) {
	q := NewQueue[int](4)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.TryPublish(i))
	}
	q.Close()

	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(context.Background(), func(v int) { got = append(got, v) })
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not finish after close")
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestQueueCloseDuringPublishDoesNotPanic(t *testing.T) {
	q := NewQueue[int](8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := q.TryPublish(1); errors.Is(err, exception.ErrWriterClosed) {
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()
	wg.Wait()

	assert.ErrorIs(t, q.TryPublish(1), exception.ErrWriterClosed)
}

func TestQueuePublishBlocksUntilContextDone(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TryPublish(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
