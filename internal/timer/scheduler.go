// Package timer is the cooperative scheduler that drives reconnects and
// periodic work from the main loop.
//
// The scheduler never starts goroutines. The main loop asks NextDue how long
// it may block, and calls Run once that time has passed. Callbacks run
// synchronously inside Run.
package timer

import (
	"context"
	"log/slog"
	"reflect"
	"slices"
	"time"

	"github.com/roach88/synarere/internal/event"
)

// Func is a timer body. args is the payload given to Add.
type Func func(ctx context.Context, args any) error

// Callback is a schedulable function. Its pointer is its identity, which is
// what Delete matches on.
type Callback struct {
	label string
	fn    Func
}

// NewCallback wraps fn.
func NewCallback(label string, fn Func) *Callback {
	return &Callback{label: label, fn: fn}
}

// Label returns the callback's label.
func (c *Callback) Label() string {
	return c.label
}

// Timer is one scheduled callback.
type Timer struct {
	Name     string
	Callback *Callback
	Args     any
	// Period is zero for timers that fire once.
	Period  time.Duration
	Created time.Time
	Next    time.Time

	active bool
}

// Active reports whether the timer will fire again.
func (t *Timer) Active() bool {
	return t.active
}

// Scheduler holds the active timer set.
//
// It keeps the earliest timer cached so NextDue is cheap on every loop
// iteration. The cache is only rebuilt when the cached timer fires or is
// deleted.
//
// Not safe for concurrent use: all calls come from the main loop.
type Scheduler struct {
	clock  Clock
	bus    *event.Bus
	timers []*Timer

	min   *Timer
	stale bool
}

// NewScheduler creates a scheduler reading time from clock and publishing
// notifications on bus.
func NewScheduler(clock Clock, bus *event.Bus) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock, bus: bus}
}

// Add schedules cb to fire period from now. When oneShot is set the period
// only delays the first fire and the timer is then removed. A period of zero
// also fires once. Negative periods are treated as zero.
func (s *Scheduler) Add(ctx context.Context, name string, oneShot bool, cb *Callback, period time.Duration, args any) *Timer {
	if period < 0 {
		period = 0
	}
	now := s.clock.Now()
	t := &Timer{
		Name:     name,
		Callback: cb,
		Args:     args,
		Created:  now,
		Next:     now.Add(period),
		active:   true,
	}
	if !oneShot {
		t.Period = period
	}

	s.timers = append(s.timers, t)
	if !s.stale && (s.min == nil || t.Next.Before(s.min.Next)) {
		s.min = t
	}

	slog.Debug("timer added", "timer", name, "callback", cb.label, "period", t.Period, "next", t.Next)
	s.bus.Dispatch(ctx, event.AddTimer, t)
	return t
}

// Delete removes every active timer whose callback is cb and whose payload
// equals args. It returns the number of timers removed. OnTimerDelete is
// dispatched only when something was removed.
func (s *Scheduler) Delete(ctx context.Context, cb *Callback, args any) int {
	removed := 0
	for _, t := range s.timers {
		if !t.active || t.Callback != cb || !argsEqual(t.Args, args) {
			continue
		}
		t.active = false
		removed++
		if t == s.min {
			s.stale = true
		}
	}
	if removed == 0 {
		return 0
	}

	s.prune()
	s.bus.Dispatch(ctx, event.TimerDelete, cb, args)
	return removed
}

// NextDue returns the earliest next-fire time over all active timers. The
// boolean is false when no timer is pending.
func (s *Scheduler) NextDue() (time.Time, bool) {
	if s.stale {
		s.rescan()
	}
	if s.min == nil {
		return time.Time{}, false
	}
	return s.min.Next, true
}

// Run fires every timer that is due, earliest first, and returns how many
// fired. Periodic timers are rescheduled to now + period; the rest are
// removed. Timers added by a callback are not considered until the next Run,
// and timers deleted by a callback are skipped.
func (s *Scheduler) Run(ctx context.Context) int {
	now := s.clock.Now()

	var due []*Timer
	for _, t := range s.timers {
		if t.active && !t.Next.After(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return 0
	}
	slices.SortStableFunc(due, func(a, b *Timer) int {
		return a.Next.Compare(b.Next)
	})

	fired := 0
	for _, t := range due {
		if !t.active {
			continue
		}

		err := event.Call(func() error { return t.Callback.fn(ctx, t.Args) })
		if err != nil {
			s.bus.Report(event.Failure{Source: "timer", Name: t.Name, Label: t.Callback.label, Err: err})
		}
		fired++
		s.bus.Dispatch(ctx, event.TimerCallFunction, t)

		// The callback may have deleted its own timer.
		if !t.active {
			continue
		}
		if t.Period > 0 {
			t.Next = now.Add(t.Period)
		} else {
			t.active = false
		}
	}

	s.stale = true
	s.prune()
	return fired
}

// Len returns the number of active timers.
func (s *Scheduler) Len() int {
	n := 0
	for _, t := range s.timers {
		if t.active {
			n++
		}
	}
	return n
}

// Timers returns the active timers in insertion order.
func (s *Scheduler) Timers() []*Timer {
	out := make([]*Timer, 0, len(s.timers))
	for _, t := range s.timers {
		if t.active {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) rescan() {
	s.min = nil
	for _, t := range s.timers {
		if t.active && (s.min == nil || t.Next.Before(s.min.Next)) {
			s.min = t
		}
	}
	s.stale = false
}

func (s *Scheduler) prune() {
	s.timers = slices.DeleteFunc(s.timers, func(t *Timer) bool {
		return !t.active
	})
}

// argsEqual compares payloads without panicking on uncomparable values,
// which never match.
func argsEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}
