package liquidbox

// growableStack is a LIFO used by tree traversals. The backing slice is
// kept between uses so repeated queries do not allocate.
type growableStack[T any] struct {
	items []T
}

func newGrowableStack[T any](capacity int) *growableStack[T] {
	return &growableStack[T]{items: make([]T, 0, capacity)}
}

// Count returns the stack's length.
func (s *growableStack[T]) Count() int {
	return len(s.items)
}

// Push adds a new element on top of the stack.
func (s *growableStack[T]) Push(value T) {
	s.items = append(s.items, value)
}

// Pop removes the top element and returns it. Popping an empty stack
// returns the zero value.
func (s *growableStack[T]) Pop() T {
	var zero T
	n := len(s.items)
	if n == 0 {
		return zero
	}
	value := s.items[n-1]
	s.items = s.items[:n-1]
	return value
}

func (s *growableStack[T]) Reset() {
	s.items = s.items[:0]
}
