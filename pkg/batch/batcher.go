package batch

import (
	"context"
	"sync"
	"time"
)

// FlushFunc processes one batch. It is never called concurrently with itself.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Batcher collects items and flushes them when BatchSize is reached or Interval elapses.
type Batcher[T any] struct {
	batchSize int
	interval  time.Duration
	flush     FlushFunc[T]
	onError   func(err error, dropped int)

	mu      sync.Mutex
	pending []T
	stopped bool

	flushMu   sync.Mutex
	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
}

type Option[T any] func(*Batcher[T])

// WithErrorHandler receives flush errors along with the size of the failed batch.
func WithErrorHandler[T any](fn func(err error, dropped int)) Option[T] {
	return func(b *Batcher[T]) { b.onError = fn }
}

func New[T any](batchSize int, interval time.Duration, flush FlushFunc[T], opts ...Option[T]) *Batcher[T] {
	if batchSize < 1 {
		batchSize = 1
	}
	b := &Batcher[T]{
		batchSize: batchSize,
		interval:  interval,
		flush:     flush,
		pending:   make([]T, 0, batchSize),
		flushChan: make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// Add queues an item. It returns false once the batcher is stopped.
func (b *Batcher[T]) Add(item T) bool {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return false
	}
	b.pending = append(b.pending, item)
	full := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}
	return true
}

// Flush synchronously processes everything queued so far.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	items := b.pending
	b.pending = make([]T, 0, b.batchSize)
	b.mu.Unlock()

	err := b.flush(ctx, items)
	if err != nil && b.onError != nil {
		b.onError(err, len(items))
	}
	return err
}

func (b *Batcher[T]) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = b.Flush(context.Background())
		case <-b.flushChan:
			_ = b.Flush(context.Background())
		case <-b.stopChan:
			_ = b.Flush(context.Background())
			return
		}
	}
}

// Stop rejects further items, flushes what is pending and waits for the flush to finish.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopChan)
	<-b.done
}

func (b *Batcher[T]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
