// Package optimize holds allocation helpers for request hot paths.
package optimize

import (
	"bytes"
	"sync"
)

// SlicePool recycles slices of T. Slices that grew past twice the initial capacity are
// dropped instead of pooled.
type SlicePool[T any] struct {
	pool sync.Pool
	size int
}

func NewSlicePool[T any](size int) *SlicePool[T] {
	p := &SlicePool[T]{size: size}
	p.pool.New = func() interface{} {
		s := make([]T, 0, size)
		return &s
	}
	return p
}

// Get returns an empty slice.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put zeroes the elements so pooled slices do not pin what they pointed to.
func (p *SlicePool[T]) Put(s *[]T) {
	if s == nil || cap(*s) > p.size*2 {
		return
	}
	var zero T
	for i := range *s {
		(*s)[i] = zero
	}
	*s = (*s)[:0]
	p.pool.Put(s)
}

// BufferPool recycles bytes.Buffers up to maxSize bytes of capacity.
type BufferPool struct {
	pool    sync.Pool
	maxSize int
}

func NewBufferPool(initialSize, maxSize int) *BufferPool {
	p := &BufferPool{maxSize: maxSize}
	p.pool.New = func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, initialSize))
	}
	return p
}

func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *BufferPool) Put(b *bytes.Buffer) {
	if b == nil || b.Cap() > p.maxSize {
		return
	}
	b.Reset()
	p.pool.Put(b)
}
