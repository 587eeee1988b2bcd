package trading

import (
	"time"

	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// Schedule decides when the loop runs an active cycle and how long it waits
// between ticks.
type Schedule struct {
	// CycleMinutes is the wall-clock grid: a tick is due when the minute is a multiple of it.
	CycleMinutes int
	// ActiveSleep is the wait after an active cycle. It must be at least a
	// minute so a grid slot is never run twice.
	ActiveSleep time.Duration
	// IdleSleep is the wait after a tick that ran no cycle.
	IdleSleep time.Duration
}

// DefaultSchedule is the 10-minute grid with 60s/28s waits.
func DefaultSchedule() Schedule {
	return Schedule{
		CycleMinutes: 10,
		ActiveSleep:  60 * time.Second,
		IdleSleep:    28 * time.Second,
	}
}

// Validate checks the schedule is usable.
func (s Schedule) Validate() error {
	if s.CycleMinutes < 1 || s.CycleMinutes > 60 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "cycle minutes must be in [1, 60], got %d", s.CycleMinutes)
	}

	if s.ActiveSleep <= 0 || s.IdleSleep <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "sleep durations must be positive")
	}

	return nil
}

// Due reports whether now falls on the cycle grid. The grid is in UTC, the
// same basis the seed candles are filtered on.
func (s Schedule) Due(now time.Time) bool {
	return now.UTC().Minute()%s.CycleMinutes == 0
}

// Slot returns the grid-aligned minute a cycle at now is stamped with.
func (s Schedule) Slot(now time.Time) time.Time {
	return now.Truncate(time.Minute)
}

// Offset returns how many minutes now is past the last grid slot.
func (s Schedule) Offset(now time.Time) time.Duration {
	return time.Duration(now.UTC().Minute()%s.CycleMinutes) * time.Minute
}

// Sleep returns the wait after a tick.
func (s Schedule) Sleep(active bool) time.Duration {
	if active {
		return s.ActiveSleep
	}

	return s.IdleSleep
}
