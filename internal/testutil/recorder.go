package testutil

import (
	"context"
	"sync"

	"github.com/roach88/synarere/internal/event"
)

// Notification is one recorded bus dispatch.
type Notification struct {
	Name string
	Args []any
}

// Recorder attaches to bus notifications and keeps them in dispatch order.
type Recorder struct {
	mu    sync.Mutex
	seen  []Notification
	hooks map[string]*event.Listener
}

// NewRecorder attaches a recorder to each of names on bus.
func NewRecorder(bus *event.Bus, names ...string) *Recorder {
	r := &Recorder{hooks: make(map[string]*event.Listener)}
	for _, name := range names {
		l := event.NewListener("recorder", func(ctx context.Context, args ...any) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.seen = append(r.seen, Notification{Name: name, Args: args})
			return nil
		})
		r.hooks[name] = l
		bus.Attach(name, l)
	}
	return r
}

// All returns every notification recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.seen))
	copy(out, r.seen)
	return out
}

// Named returns the recorded notifications with the given name.
func (r *Recorder) Named(name string) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.seen {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

// Names returns the names of all recorded notifications in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	for i, n := range r.seen {
		out[i] = n.Name
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = nil
}
