package indicator

// RingBuffer keeps the most recent size values in insertion order.
type RingBuffer[T any] struct {
	values []T
	size   int
	index  int
	filled bool
}

// NewRingBuffer creates a buffer holding at most size values. size must be positive.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	return &RingBuffer[T]{
		values: make([]T, size),
		size:   size,
		index:  0,
		filled: false,
	}
}

// Add appends a value, evicting the oldest once full.
func (r *RingBuffer[T]) Add(value T) {
	r.values[r.index] = value
	r.index = (r.index + 1) % r.size

	if r.index == 0 {
		r.filled = true
	}
}

// Len returns the number of retained values.
func (r *RingBuffer[T]) Len() int {
	if r.filled {
		return r.size
	}

	return r.index
}

// Cap returns the maximum number of retained values.
func (r *RingBuffer[T]) Cap() int {
	return r.size
}

// Last returns the newest value.
func (r *RingBuffer[T]) Last() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}

	return r.values[(r.index-1+r.size)%r.size], true
}

// Values returns a copy of the retained values, oldest first.
func (r *RingBuffer[T]) Values() []T {
	length := r.Len()
	result := make([]T, 0, length)

	if length == 0 {
		return result
	}

	if r.filled {
		result = append(result, r.values[r.index:]...)
	}

	result = append(result, r.values[:r.index]...)

	return result
}
