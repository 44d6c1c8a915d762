package liquidbox

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func expectViolation(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("no panic, want %v", want)
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, want) {
			t.Fatalf("panic %v, want %v", r, want)
		}
		var ce *ContractError
		if !errors.As(err, &ce) {
			t.Fatalf("panic value %T is not a *ContractError", r)
		}
	}()
	fn()
}

func TestBlockPoolRecycles(t *testing.T) {
	type item struct{ a, b int }
	p := newBlockPool[item]()

	var got []*item
	for i := 0; i < blockPoolInitialChunk+1; i++ {
		x := p.Get()
		x.a = i
		got = append(got, x)
	}
	if p.Live() != blockPoolInitialChunk+1 {
		t.Fatalf("Live = %d", p.Live())
	}
	if p.allocated != 3*blockPoolInitialChunk {
		t.Errorf("allocated %d, want a doubled second chunk", p.allocated)
	}
	for _, x := range got[:10] {
		if x.a < 0 || x.a > blockPoolInitialChunk {
			t.Fatalf("live item clobbered: %+v", *x)
		}
	}

	last := got[len(got)-1]
	p.Put(last)
	if *last != (item{}) {
		t.Errorf("Put did not zero the item: %+v", *last)
	}
	if again := p.Get(); again != last {
		t.Error("Get did not reuse the freed item")
	}
	if p.Live() != blockPoolInitialChunk+1 {
		t.Errorf("Live = %d after put and get", p.Live())
	}
}

func TestStackAllocatorLIFO(t *testing.T) {
	s := newStackAllocator(zap.NewNop())

	a := stackAlloc[int](s, 10)
	b := stackAlloc[Vec2](s, 4)
	if len(a.Items) != 10 || len(b.Items) != 4 {
		t.Fatalf("sizes %d, %d", len(a.Items), len(b.Items))
	}
	a.Items[3] = 7
	if s.Outstanding() != 2 || s.MaxAllocation() != 14 {
		t.Errorf("Outstanding = %d, MaxAllocation = %d", s.Outstanding(), s.MaxAllocation())
	}
	stackFree(s, b)
	stackFree(s, a)
	s.checkEmpty("test")

	// Cached buffers come back zeroed.
	c := stackAlloc[int](s, 8)
	for i, v := range c.Items {
		if v != 0 {
			t.Fatalf("Items[%d] = %d, want zeroed reuse", i, v)
		}
	}
	stackFree(s, c)
}

func TestStackAllocatorViolations(t *testing.T) {
	s := newStackAllocator(zap.NewNop())
	a := stackAlloc[int](s, 1)
	_ = stackAlloc[int](s, 1)
	expectViolation(t, ErrStackOrder, func() { stackFree(s, a) })
	expectViolation(t, ErrStackNotEmpty, func() { s.checkEmpty("test") })
}

func TestRegistryHandles(t *testing.T) {
	var r registry[string]
	a := r.Insert("a")
	b := r.Insert("b")
	c := r.Insert("c")
	if r.Len() != 3 {
		t.Fatalf("Len = %d", r.Len())
	}

	if !r.Remove(b) {
		t.Fatal("Remove(b) failed")
	}
	if r.Remove(b) {
		t.Error("Remove accepted a stale handle")
	}
	if _, ok := r.Get(b); ok {
		t.Error("stale handle resolved")
	}

	// The slot is reused with a new generation.
	d := r.Insert("d")
	if d.index != b.index || d.gen == b.gen {
		t.Errorf("reuse: b=%v d=%v", b, d)
	}
	if _, ok := r.Get(b); ok {
		t.Error("old handle resolved to the reused slot")
	}
	if v, ok := r.Get(d); !ok || v != "d" {
		t.Errorf("Get(d) = %q, %v", v, ok)
	}

	var order []string
	for v := range r.All() {
		order = append(order, v)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "d" || order[2] != "c" {
		t.Errorf("All = %v", order)
	}

	first, _ := r.First()
	next, _ := r.Next(a)
	if first != "a" || next != "d" {
		t.Errorf("First = %q, Next(a) = %q", first, next)
	}
	if _, ok := r.Next(c); ok {
		t.Error("Next past the last entry succeeded")
	}
	if (Handle{}).IsZero() != true || a.IsZero() {
		t.Error("IsZero")
	}
}

func TestRegistryRemoveDuringIteration(t *testing.T) {
	var r registry[int]
	var handles []Handle
	for i := range 5 {
		handles = append(handles, r.Insert(i))
	}
	seen := 0
	for v := range r.All() {
		seen++
		if v+1 < len(handles) {
			r.Remove(handles[v+1])
		}
	}
	if seen != 3 || r.Len() != 3 {
		t.Errorf("seen %d, Len %d; want 3 and 3", seen, r.Len())
	}
}

func TestGrowableStack(t *testing.T) {
	s := newGrowableStack[int](2)
	for i := range 5 {
		s.Push(i)
	}
	if s.Count() != 5 {
		t.Fatalf("Count = %d", s.Count())
	}
	for want := 4; want >= 0; want-- {
		if got := s.Pop(); got != want {
			t.Fatalf("Pop = %d, want %d", got, want)
		}
	}
	if got := s.Pop(); got != 0 || s.Count() != 0 {
		t.Errorf("empty Pop = %d, Count = %d", got, s.Count())
	}
}
