// Package journal keeps a log of protocol traffic in the database.
//
// Every parsed inbound line and every completely written outbound line is
// appended with the network and connection attempt it belongs to. PASS
// lines are stored with the password masked. Lines are buffered and written
// in one transaction each second, when the buffer fills, and on unload.
//
// Settings:
//
//	retain: how long entries are kept, as a Go duration (default "168h");
//	        "0" keeps everything
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/store"
	"github.com/roach88/synarere/internal/timer"
)

// Name is the catalog name.
const Name = "journal"

const (
	// DefaultRetain is how long entries are kept when retain is not set.
	DefaultRetain = 7 * 24 * time.Hour

	// PruneTimer removes expired entries.
	PruneTimer = "journal.prune"

	// FlushTimer writes buffered entries.
	FlushTimer = "journal.flush"

	// FlushBatch is the buffer size that forces a write before the timer.
	FlushBatch = 256

	pruneEvery = time.Hour
	flushEvery = time.Second
)

// ErrBadSource is returned when a traffic notification does not carry a
// session.
var ErrBadSource = errors.New("notification has no session")

// source is the part of a session the journal reads.
type source interface {
	Network() string
	ID() string
}

// New returns the unit. It needs a database.
func New() module.Spec {
	return newSpec(timer.SystemClock{})
}

type unit struct {
	clock  timer.Clock
	db     *store.Store
	retain time.Duration

	mu      sync.Mutex
	pending []store.Entry

	inbound  *event.Listener
	outbound *event.Listener
	prune    *timer.Callback
	flush    *timer.Callback
}

func newSpec(clock timer.Clock) module.Spec {
	u := &unit{clock: clock}
	u.inbound = event.NewListener("journal.inbound", u.recorder(store.Inbound))
	u.outbound = event.NewListener("journal.outbound", u.recorder(store.Outbound))
	u.prune = timer.NewCallback(PruneTimer, u.expire)
	u.flush = timer.NewCallback(FlushTimer, func(ctx context.Context, _ any) error {
		return u.write(ctx)
	})

	return module.Spec{
		Name: Name,
		Init: func(ctx context.Context, h module.Host) error {
			u.db = h.Store()
			if u.db == nil {
				return module.ErrNoStore
			}
			retain, err := parseRetain(h.Settings(Name)["retain"])
			if err != nil {
				return err
			}
			u.retain = retain

			h.Bus().Attach(event.Parse, u.inbound)
			h.Bus().Attach(event.SocketWrite, u.outbound)
			h.Timers().Add(ctx, FlushTimer, false, u.flush, flushEvery, nil)
			if u.retain > 0 {
				h.Timers().Add(ctx, PruneTimer, false, u.prune, pruneEvery, nil)
			}
			return nil
		},
		Fini: func(ctx context.Context, h module.Host) error {
			h.Bus().Detach(event.Parse, u.inbound)
			h.Bus().Detach(event.SocketWrite, u.outbound)
			h.Timers().Delete(ctx, u.flush, nil)
			h.Timers().Delete(ctx, u.prune, nil)
			return u.write(ctx)
		},
	}
}

func parseRetain(v string) (time.Duration, error) {
	if v == "" {
		return DefaultRetain, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("retain: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retain: negative duration %s", v)
	}
	return d, nil
}

// recorder returns a listener body for OnParse or OnSocketWrite, whose
// arguments are the session and the line.
func (u *unit) recorder(dir store.Direction) event.Func {
	return func(ctx context.Context, args ...any) error {
		if len(args) < 2 {
			return ErrBadSource
		}
		src, ok := args[0].(source)
		if !ok {
			return ErrBadSource
		}
		line, _ := args[1].(string)

		u.mu.Lock()
		u.pending = append(u.pending, store.Entry{
			Network:   src.Network(),
			Attempt:   src.ID(),
			Direction: dir,
			Line:      mask(line),
			At:        u.clock.Now(),
		})
		full := len(u.pending) >= FlushBatch
		u.mu.Unlock()

		if full {
			return u.write(ctx)
		}
		return nil
	}
}

// write stores the buffered entries. A batch that fails is dropped.
func (u *unit) write(ctx context.Context) error {
	u.mu.Lock()
	batch := u.pending
	u.pending = nil
	u.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := u.db.AppendEntries(ctx, batch); err != nil {
		slog.Warn("journal batch dropped", "entries", len(batch), "error", err)
		return err
	}
	return nil
}

// mask hides the argument of a PASS line.
func mask(line string) string {
	if len(line) > 5 && strings.EqualFold(line[:5], "PASS ") {
		return line[:5] + "****"
	}
	return line
}

func (u *unit) expire(ctx context.Context, _ any) error {
	if err := u.write(ctx); err != nil {
		return err
	}
	_, err := u.db.PruneEntries(ctx, u.clock.Now().Add(-u.retain))
	return err
}
