package liquidbox

import (
	"fmt"
	"iter"
)

// Handle identifies an entity owned by a World. A handle stays valid
// until its entity is destroyed; after that it never resolves again, even
// when the slot is reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

type registrySlot[T any] struct {
	item T
	gen  uint32
	live bool
}

// registry is an arena of entities addressed by Handle. Insert and
// remove are O(1); iteration walks slots in index order and skips the
// dead ones, so removing entries while iterating is safe.
type registry[T any] struct {
	slots []registrySlot[T]
	free  []uint32
	count int
}

func (r *registry[T]) Insert(item T) Handle {
	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, registrySlot[T]{})
	}
	s := &r.slots[index]
	s.gen++
	s.item = item
	s.live = true
	r.count++
	return Handle{index: index, gen: s.gen}
}

// Remove frees h's slot. It reports false when h is stale.
func (r *registry[T]) Remove(h Handle) bool {
	if !r.Contains(h) {
		return false
	}
	s := &r.slots[h.index]
	var zero T
	s.item = zero
	s.live = false
	r.free = append(r.free, h.index)
	r.count--
	return true
}

func (r *registry[T]) Contains(h Handle) bool {
	if h.gen == 0 || int(h.index) >= len(r.slots) {
		return false
	}
	s := &r.slots[h.index]
	return s.live && s.gen == h.gen
}

func (r *registry[T]) Get(h Handle) (T, bool) {
	if !r.Contains(h) {
		var zero T
		return zero, false
	}
	return r.slots[h.index].item, true
}

func (r *registry[T]) Len() int {
	return r.count
}

// First returns the live entry with the lowest slot index.
func (r *registry[T]) First() (T, bool) {
	return r.after(-1)
}

// Next returns the first live entry after h's slot.
func (r *registry[T]) Next(h Handle) (T, bool) {
	return r.after(int(h.index))
}

func (r *registry[T]) after(index int) (T, bool) {
	for i := index + 1; i < len(r.slots); i++ {
		if r.slots[i].live {
			return r.slots[i].item, true
		}
	}
	var zero T
	return zero, false
}

// All yields live entries lazily in slot order.
func (r *registry[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < len(r.slots); i++ {
			if !r.slots[i].live {
				continue
			}
			if !yield(r.slots[i].item) {
				return
			}
		}
	}
}

func (r *registry[T]) Clear() {
	r.slots = nil
	r.free = nil
	r.count = 0
}
