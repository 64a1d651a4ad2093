package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/synarere/internal/event"
)

// ErrNoExecutor is reported when an asynchronous namespace has no executor.
var ErrNoExecutor = errors.New("asynchronous dispatch without executor")

// Task is one handler invocation submitted to an Executor.
type Task func(ctx context.Context) error

// Executor runs tasks off the main loop. worker.Pool satisfies it.
type Executor interface {
	Submit(task Task) error
}

// Poster delivers closures to the main loop.
type Poster interface {
	Post(fn func()) bool
}

// record is the dispatch record of one command name.
type record struct {
	first *Handler
	funcs []*Handler
	last  *Handler
}

func (r *record) empty() bool {
	return r.first == nil && r.last == nil && len(r.funcs) == 0
}

// chain returns the handlers in dispatch order.
func (r *record) chain() []*Handler {
	out := make([]*Handler, 0, len(r.funcs)+2)
	if r.first != nil {
		out = append(out, r.first)
	}
	out = append(out, r.funcs...)
	if r.last != nil {
		out = append(out, r.last)
	}
	return out
}

// Router holds the five namespace tables.
type Router struct {
	mu     sync.RWMutex
	tables [numNamespaces]map[string]*record
	async  [numNamespaces]bool

	bus  *event.Bus
	exec Executor
	post Poster
}

// Option configures a Router.
type Option func(*Router)

// WithExecutor enables asynchronous dispatch. exec runs the handlers and
// post carries their sends and failures back to the main loop.
func WithExecutor(exec Executor, post Poster) Option {
	return func(r *Router) {
		r.exec = exec
		r.post = post
	}
}

// NewRouter creates a router publishing registration notifications on bus.
func NewRouter(bus *event.Bus, opts ...Option) *Router {
	r := &Router{bus: bus}
	for i := range r.tables {
		r.tables[i] = make(map[string]*record)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetAsync selects asynchronous dispatch for a namespace.
func (r *Router) SetAsync(ns Namespace, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.async[ns] = on
}

// Async reports whether a namespace dispatches asynchronously.
func (r *Router) Async(ns Namespace) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.async[ns]
}

// Add appends h to name's ordered handlers. Adding a handler that is
// already present changes nothing; Add reports true either way.
func (r *Router) Add(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	name = strings.ToUpper(name)

	r.mu.Lock()
	rec := r.recordFor(ns, name)
	if slices.Contains(rec.funcs, h) {
		r.mu.Unlock()
		return true
	}
	rec.funcs = append(rec.funcs, h)
	r.mu.Unlock()

	slog.Debug("command added", "namespace", ns, "command", name, "handler", h.label)
	r.bus.Dispatch(ctx, event.CommandAdd, name, h, ns)
	return true
}

// AddFirst sets name's first handler. It fails if one is already set.
func (r *Router) AddFirst(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	return r.setSlot(ctx, ns, name, h, true)
}

// AddLast sets name's last handler. It fails if one is already set.
func (r *Router) AddLast(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	return r.setSlot(ctx, ns, name, h, false)
}

func (r *Router) setSlot(ctx context.Context, ns Namespace, name string, h *Handler, first bool) bool {
	name = strings.ToUpper(name)

	r.mu.Lock()
	rec := r.recordFor(ns, name)
	slot := &rec.last
	if first {
		slot = &rec.first
	}
	if *slot != nil {
		r.mu.Unlock()
		slog.Debug("command slot occupied", "namespace", ns, "command", name, "first", first, "handler", h.label)
		return false
	}
	*slot = h
	r.mu.Unlock()

	notification := event.CommandAddLast
	if first {
		notification = event.CommandAddFirst
	}
	slog.Debug("command slot set", "namespace", ns, "command", name, "first", first, "handler", h.label)
	r.bus.Dispatch(ctx, notification, name, h, ns)
	return true
}

// Delete removes h from name's ordered handlers. It reports false if h was
// not registered there.
func (r *Router) Delete(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	name = strings.ToUpper(name)

	r.mu.Lock()
	rec, ok := r.tables[ns][name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	i := slices.Index(rec.funcs, h)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	rec.funcs = slices.Delete(slices.Clone(rec.funcs), i, i+1)
	r.pruneLocked(ns, name, rec)
	r.mu.Unlock()

	slog.Debug("command deleted", "namespace", ns, "command", name, "handler", h.label)
	r.bus.Dispatch(ctx, event.CommandDelete, name, h, ns)
	return true
}

// DeleteFirst clears name's first handler if it is h.
func (r *Router) DeleteFirst(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	return r.clearSlot(ctx, ns, name, h, true)
}

// DeleteLast clears name's last handler if it is h.
func (r *Router) DeleteLast(ctx context.Context, ns Namespace, name string, h *Handler) bool {
	return r.clearSlot(ctx, ns, name, h, false)
}

func (r *Router) clearSlot(ctx context.Context, ns Namespace, name string, h *Handler, first bool) bool {
	name = strings.ToUpper(name)

	r.mu.Lock()
	rec, ok := r.tables[ns][name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	slot := &rec.last
	if first {
		slot = &rec.first
	}
	if *slot != h {
		r.mu.Unlock()
		return false
	}
	*slot = nil
	r.pruneLocked(ns, name, rec)
	r.mu.Unlock()

	notification := event.CommandDeleteLast
	if first {
		notification = event.CommandDeleteFirst
	}
	r.bus.Dispatch(ctx, notification, name, h, ns)
	return true
}

// Has reports whether name has at least one handler in ns.
func (r *Router) Has(ns Namespace, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[ns][strings.ToUpper(name)]
	return ok
}

// Handlers returns name's handlers in dispatch order.
func (r *Router) Handlers(ns Namespace, name string) []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tables[ns][strings.ToUpper(name)]
	if !ok {
		return nil
	}
	return rec.chain()
}

// Dispatch runs name's handler chain in ns and returns how many handlers
// were invoked or submitted.
func (r *Router) Dispatch(ctx context.Context, ns Namespace, name string, req *Request) int {
	name = strings.ToUpper(name)

	r.mu.RLock()
	rec, ok := r.tables[ns][name]
	var chain []*Handler
	if ok {
		chain = rec.chain()
	}
	async := r.async[ns]
	r.mu.RUnlock()

	if len(chain) == 0 {
		return 0
	}
	slog.Debug("dispatching command", "namespace", ns, "command", name, "handlers", len(chain), "async", async)

	for _, h := range chain {
		if async {
			r.submit(ctx, ns, name, h, req)
			continue
		}
		err := event.Call(func() error { return h.fn(ctx, req) })
		if err != nil {
			r.fail(ctx, ns, name, h, err)
		}
	}
	return len(chain)
}

// submit hands one invocation to the executor. The handler gets its own
// copy of the request with a deferred Conn and OnLoop posting to the loop.
func (r *Router) submit(ctx context.Context, ns Namespace, name string, h *Handler, req *Request) {
	if r.exec == nil || r.post == nil {
		r.fail(ctx, ns, name, h, ErrNoExecutor)
		return
	}

	deferred := *req
	deferred.post, deferred.loop = r.post, ctx
	if req.Conn != nil {
		deferred.Conn = Defer(req.Conn, r.post)
	}

	err := r.exec.Submit(func(taskCtx context.Context) error {
		err := event.Call(func() error { return h.fn(taskCtx, &deferred) })
		if err != nil {
			r.post.Post(func() { r.fail(ctx, ns, name, h, err) })
		}
		return err
	})
	if err != nil {
		r.fail(ctx, ns, name, h, fmt.Errorf("submit: %w", err))
	}
}

func (r *Router) fail(ctx context.Context, ns Namespace, name string, h *Handler, err error) {
	r.bus.Report(event.Failure{Source: "command", Name: ns.String() + ":" + name, Label: h.label, Err: err})
	r.bus.Dispatch(ctx, event.HandlerError, name, h, ns, err)
}

func (r *Router) recordFor(ns Namespace, name string) *record {
	rec, ok := r.tables[ns][name]
	if !ok {
		rec = &record{}
		r.tables[ns][name] = rec
	}
	return rec
}

// pruneLocked drops a record that no longer holds any handler, so that an
// empty record and an absent one look the same to Has and Route.
func (r *Router) pruneLocked(ns Namespace, name string, rec *record) {
	if rec.empty() {
		delete(r.tables[ns], name)
	}
}
