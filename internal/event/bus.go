package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Func is a listener body. args are whatever the publisher passed.
type Func func(ctx context.Context, args ...any) error

// Listener is an attachable callback. Its pointer is its identity.
type Listener struct {
	label string
	fn    Func
}

// NewListener wraps fn. label appears in logs and failure reports.
func NewListener(label string, fn Func) *Listener {
	return &Listener{label: label, fn: fn}
}

// Label returns the listener's label.
func (l *Listener) Label() string {
	return l.label
}

// Bus maps notification names to ordered listener lists.
//
// Mutation and dispatch are expected to happen on the main loop goroutine;
// the lock only protects readers on other goroutines (metrics, tests).
type Bus struct {
	mu      sync.RWMutex
	records map[string][]*Listener
	report  Reporter
}

// Option configures a Bus.
type Option func(*Bus)

// WithReporter routes listener failures to r instead of the default logger.
func WithReporter(r Reporter) Option {
	return func(b *Bus) {
		b.report = r
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		records: make(map[string][]*Listener),
		report:  LogFailure,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LogFailure is the default Reporter.
func LogFailure(f Failure) {
	slog.Error("handler failed",
		"source", f.Source,
		"name", f.Name,
		"handler", f.Label,
		"error", f.Err,
	)
}

// Attach appends l to name's listeners. Attaching a listener that is already
// present leaves the list unchanged. It always reports true.
func (b *Bus) Attach(name string, l *Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.Contains(b.records[name], l) {
		return true
	}
	b.records[name] = append(b.records[name], l)
	slog.Debug("attached event", "event", name, "listener", l.label)
	return true
}

// Detach removes l from name's listeners. It reports false if l was not
// attached.
func (b *Bus) Detach(name string, l *Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.records[name]
	i := slices.Index(list, l)
	if i < 0 {
		return false
	}
	list = slices.Delete(slices.Clone(list), i, i+1)
	if len(list) == 0 {
		delete(b.records, name)
	} else {
		b.records[name] = list
	}
	slog.Debug("detached event", "event", name, "listener", l.label)
	return true
}

// Listeners returns a copy of name's listeners in registration order.
func (b *Bus) Listeners(name string) []*Listener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.records[name])
}

// Dispatch invokes every listener attached to name, in order. Dispatching a
// name nobody listens to does nothing. Listeners attached or detached during
// the dispatch take effect from the next dispatch.
func (b *Bus) Dispatch(ctx context.Context, name string, args ...any) {
	for _, l := range b.Listeners(name) {
		err := Call(func() error { return l.fn(ctx, args...) })
		if err != nil {
			b.report(Failure{Source: "event", Name: name, Label: l.label, Err: err})
		}
	}
}

// Report hands f to the bus's reporter. Other components use it so that
// all handler failures leave through the same path.
func (b *Bus) Report(f Failure) {
	b.report(f)
}
