package liquidbox

import (
	"go.uber.org/zap"
)

// blockPool recycles same-sized objects that churn every step, such as
// contacts. It lives as long as its world and grows by whole chunks when
// the free list runs dry; live objects are never reclaimed by the pool.
type blockPool[T any] struct {
	free      []*T
	chunkSize int
	allocated int
	live      int
}

const blockPoolInitialChunk = 64

func newBlockPool[T any]() *blockPool[T] {
	return &blockPool[T]{chunkSize: blockPoolInitialChunk}
}

func (p *blockPool[T]) grow() {
	chunk := make([]T, p.chunkSize)
	for i := range chunk {
		p.free = append(p.free, &chunk[i])
	}
	p.allocated += p.chunkSize
	p.chunkSize *= 2
}

// Get returns a zeroed object.
func (p *blockPool[T]) Get() *T {
	if len(p.free) == 0 {
		p.grow()
	}
	n := len(p.free) - 1
	x := p.free[n]
	p.free[n] = nil
	p.free = p.free[:n]
	p.live++
	return x
}

// Put zeroes x and returns it to the free list.
func (p *blockPool[T]) Put(x *T) {
	var zero T
	*x = zero
	p.free = append(p.free, x)
	p.live--
}

// Live reports the number of objects handed out and not yet returned.
func (p *blockPool[T]) Live() int {
	return p.live
}

// Clear drops every chunk. Only valid once no object is in use.
func (p *blockPool[T]) Clear() {
	p.free = nil
	p.allocated = 0
	p.live = 0
	p.chunkSize = blockPoolInitialChunk
}

// stackAllocator hands out step-scoped scratch slices. Allocations are
// strictly nested: each one must be released before the one beneath it,
// and nothing may survive the step that acquired it.
type stackAllocator struct {
	log     *zap.Logger
	entries []any
	cache   []any

	allocation    int
	maxAllocation int
}

// scratch is a slice borrowed from a stackAllocator.
type scratch[T any] struct {
	Items []T
	depth int
}

func newStackAllocator(log *zap.Logger) *stackAllocator {
	return &stackAllocator{log: log}
}

// stackAlloc borrows a zeroed slice of n elements from s.
func stackAlloc[T any](s *stackAllocator, n int) scratch[T] {
	var buf []T
	for i := len(s.cache) - 1; i >= 0; i-- {
		if c, ok := s.cache[i].([]T); ok && cap(c) >= n {
			buf = c[:n]
			clear(buf)
			s.cache = append(s.cache[:i], s.cache[i+1:]...)
			break
		}
	}
	if buf == nil {
		buf = make([]T, n, max(n, 16))
	}

	s.entries = append(s.entries, buf)
	s.allocation += n
	s.maxAllocation = max(s.maxAllocation, s.allocation)
	return scratch[T]{Items: buf, depth: len(s.entries)}
}

// stackFree returns the most recent allocation to s.
func stackFree[T any](s *stackAllocator, sc scratch[T]) {
	if sc.depth != len(s.entries) {
		violation(s.log, "stackFree", ErrStackOrder)
	}
	s.entries[len(s.entries)-1] = nil
	s.entries = s.entries[:len(s.entries)-1]
	s.allocation -= len(sc.Items)
	s.cache = append(s.cache, sc.Items[:0])
}

// Outstanding reports the number of unreleased allocations.
func (s *stackAllocator) Outstanding() int {
	return len(s.entries)
}

// MaxAllocation reports the high-water mark in elements.
func (s *stackAllocator) MaxAllocation() int {
	return s.maxAllocation
}

// checkEmpty enforces that a step released everything it acquired.
func (s *stackAllocator) checkEmpty(op string) {
	if len(s.entries) != 0 {
		violation(s.log, op, ErrStackNotEmpty)
	}
}
