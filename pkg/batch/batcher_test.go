package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	batches [][]int
}

func (c *collector) flush(_ context.Context, items []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]int(nil), items...))
	return nil
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	c := &collector{}
	b := New[int](3, time.Hour, c.flush)
	defer b.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, b.Add(i))
	}

	assert.Eventually(t, func() bool { return c.total() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	c := &collector{}
	b := New[int](100, 10*time.Millisecond, c.flush)
	defer b.Stop()

	b.Add(1)
	assert.Eventually(t, func() bool { return c.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesPending(t *testing.T) {
	c := &collector{}
	b := New[int](100, time.Hour, c.flush)

	b.Add(1)
	b.Add(2)
	b.Stop()

	assert.Equal(t, 2, c.total())
	assert.False(t, b.Add(3), "Add after Stop must be rejected")
	assert.Equal(t, 0, b.PendingCount())
	b.Stop()
}

func TestBatcher_ErrorHandler(t *testing.T) {
	boom := errors.New("boom")
	var gotErr error
	var dropped int

	b := New[int](100, time.Hour,
		func(context.Context, []int) error { return boom },
		WithErrorHandler[int](func(err error, n int) { gotErr, dropped = err, n }),
	)
	defer b.Stop()

	b.Add(1)
	b.Add(2)
	err := b.Flush(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, gotErr, boom)
	assert.Equal(t, 2, dropped)
}
