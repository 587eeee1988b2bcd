package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the source of time for the trade loop.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// New returns a Clock backed by the system time.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// Manual is a Clock that only moves when Advance or Set is called.
// Waiters registered through After fire once the clock reaches their deadline.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		mu:      sync.Mutex{},
		now:     start,
		waiters: nil,
	}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := m.now.Add(d)

	if d <= 0 {
		ch <- m.now

		return ch
	}

	m.waiters = append(m.waiters, waiter{deadline: deadline, ch: ch})

	return ch
}

// Advance moves the clock forward by d and fires due waiters.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	m.Set(target)
}

// Set moves the clock to t and fires due waiters in deadline order.
// Moving backwards is ignored.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Before(m.now) {
		return
	}

	m.now = t

	sort.SliceStable(m.waiters, func(i, j int) bool {
		return m.waiters[i].deadline.Before(m.waiters[j].deadline)
	})

	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if w.deadline.After(t) {
			remaining = append(remaining, w)

			continue
		}

		w.ch <- t
	}

	m.waiters = remaining
}

// Waiters returns the number of pending After channels.
func (m *Manual) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.waiters)
}

var (
	_ Clock = systemClock{}
	_ Clock = (*Manual)(nil)
)
