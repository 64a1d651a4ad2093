package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"time"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/config"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/metric"
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/session"
	"github.com/roach88/synarere/internal/store"
	"github.com/roach88/synarere/internal/timer"
	"github.com/roach88/synarere/internal/worker"
)

const (
	// DefaultPollInterval caps how long one loop iteration blocks.
	DefaultPollInterval = time.Second

	// DefaultDrainTimeout bounds how long Shutdown waits for queued QUITs
	// to be written and for the worker pool to finish.
	DefaultDrainTimeout = 2 * time.Second

	// DefaultDialTimeout bounds one connection attempt.
	DefaultDialTimeout = 30 * time.Second

	// KeepaliveTimer is the periodic idle check.
	KeepaliveTimer = "engine.keepalive"

	// flushInterval is the wait used while sessions still have queued
	// output.
	flushInterval = 10 * time.Millisecond

	readBufferSize = 4096
)

// Engine is the single-writer event loop that owns every session.
//
// CRITICAL: All mutations happen in the goroutine that calls Start, Run and
// Shutdown. Dial results, received bytes and closures from worker
// goroutines reach the loop through the event queue.
//
// Thread-safety model:
//   - Post(), Call(), Stop(): safe from any goroutine
//   - everything else: loop goroutine only
type Engine struct {
	cfg     *config.Config
	version string

	bus     *event.Bus
	router  *command.Router
	timers  *timer.Scheduler
	clock   timer.Clock
	metrics *metric.Metrics
	modules *module.Registry
	catalog module.Catalog
	pool    *worker.Pool[command.Task]
	db      *store.Store
	dialer  session.Dialer
	ids     session.IDGenerator
	queue   *eventQueue

	base   context.Context
	cancel context.CancelFunc

	sessions  []*session.Session
	keepalive *timer.Callback
	pingEvery time.Duration
	started   bool

	pollInterval time.Duration
	drainTimeout time.Duration
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the time source for timers and keepalive.
func WithClock(c timer.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDialer replaces the TCP dialer.
func WithDialer(d session.Dialer) Option {
	return func(e *Engine) { e.dialer = d }
}

// WithIDs sets the connection attempt id generator.
func WithIDs(g session.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithStore gives modules a database.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.db = s }
}

// WithCatalog sets the modules available to load.
func WithCatalog(c module.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithMetrics shares a metrics registry, e.g. with the metrics server.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithVersion sets the version string modules report.
func WithVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

// WithPollInterval changes DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// WithDrainTimeout changes DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(e *Engine) { e.drainTimeout = d }
}

// New creates an engine for cfg. Nothing is loaded or dialed until Start.
func New(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:          cfg,
		version:      "dev",
		clock:        timer.SystemClock{},
		dialer:       session.NetDialer{Timeout: DefaultDialTimeout},
		ids:          session.UUIDv7Generator{},
		queue:        newEventQueue(),
		pollInterval: DefaultPollInterval,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metric.New()
	}

	e.base, e.cancel = context.WithCancel(context.Background())
	e.bus = event.NewBus(event.WithReporter(e.reportFailure))
	e.pool = worker.NewPool(cfg.Options.Workers, cfg.Options.QueueSize, runTask,
		worker.WithRegisterer[command.Task](e.metrics.Registerer(), "worker"))
	e.router = command.NewRouter(e.bus, command.WithExecutor(e.pool, e))
	e.timers = timer.NewScheduler(e.clock, e.bus)
	e.modules = module.NewRegistry(e, e.catalog)
	e.keepalive = timer.NewCallback(KeepaliveTimer, e.checkIdle)
	e.applyAsync(cfg)
	return e
}

func runTask(ctx context.Context, task command.Task) error {
	return task(ctx)
}

// applyAsync sets the router's per-namespace threading from the options.
func (e *Engine) applyAsync(cfg *config.Config) {
	for _, ns := range command.Namespaces {
		e.router.SetAsync(ns, cfg.Options.Async(ns))
	}
}

// reportFailure is the bus's failure sink.
func (e *Engine) reportFailure(f event.Failure) {
	event.LogFailure(f)
	e.metrics.HandlerFailures.WithLabelValues(f.Source).Inc()
}

// Start starts the worker pool, loads the configured modules, arms the
// keepalive timer and dials every configured network. Module load failures
// are logged; they do not stop the bot.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return errors.New("engine already started")
	}
	if err := e.pool.Start(e.base); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	e.started = true

	if err := e.modules.LoadAll(ctx, e.cfg.ModuleNames()); err != nil {
		slog.Warn("some modules failed to load", "error", err)
	}

	if every := e.cfg.Options.PingEvery(); every > 0 {
		e.pingEvery = every
		e.timers.Add(ctx, KeepaliveTimer, false, e.keepalive, every, nil)
	}

	e.ConnectAll(ctx)
	return nil
}

// Run starts the event loop. It blocks until ctx is cancelled, Stop is
// called, or session I/O fails fatally, in which case the error is a
// *FatalError.
//
// Each iteration drains the event queue, runs due timers and flushes
// writable sessions, then blocks until the next timer is due (at most the
// poll interval) or another event arrives.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "networks", len(e.sessions), "modules", len(e.modules.Loaded()))

	for {
		if err := e.Step(ctx); err != nil {
			return err
		}
		if e.queue.Closed() && e.queue.Len() == 0 {
			slog.Info("engine stopping: queue closed")
			return nil
		}

		wait := time.NewTimer(e.wait())
		select {
		case <-ctx.Done():
			wait.Stop()
			slog.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-e.queue.Wait():
		case <-wait.C:
		}
		wait.Stop()
	}
}

// Step performs one loop iteration without blocking.
func (e *Engine) Step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = e.fatal(r)
		}
	}()

	for {
		ev, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		e.process(ctx, ev)
	}

	if n := e.timers.Run(ctx); n > 0 {
		e.metrics.TimerFirings.Add(float64(n))
	}
	e.flush(ctx)
	return nil
}

// wait returns how long the loop may block.
func (e *Engine) wait() time.Duration {
	if len(e.sessions) == 0 {
		return e.pollInterval
	}
	for _, s := range e.sessions {
		if s.Writable() {
			return flushInterval
		}
	}
	next, ok := e.timers.NextDue()
	if !ok {
		return e.pollInterval
	}
	return min(max(next.Sub(e.clock.Now()), 0), e.pollInterval)
}

// process routes an event to the appropriate handler.
func (e *Engine) process(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventTypePosted:
		if ev.Func == nil {
			return
		}
		err := event.Call(func() error {
			ev.Func(ctx)
			return nil
		})
		if err != nil {
			e.bus.Report(event.Failure{Source: "engine", Name: "posted", Err: err})
		}

	case EventTypeRead:
		if e.live(ev) {
			ev.Session.HandleRead(ctx, ev.Data)
		}

	case EventTypeClose:
		if e.live(ev) {
			e.closeSession(ctx, ev.Session, ev.Err)
		}

	case EventTypeConnected:
		if !e.dialing(ev) {
			_ = ev.Transport.Close()
			return
		}
		ev.Session.HandleConnected(ctx, ev.Transport)
		e.startPump(ev.Session, ev.Transport)

	case EventTypeConnectFailed:
		if e.dialing(ev) && !ev.Session.HandleConnectFailed(ctx, ev.Err) {
			e.drop(ev.Session)
		}

	default:
		slog.Warn("unknown event type", "type", ev.Type)
	}
}

// live reports whether ev belongs to the session's current connection.
func (e *Engine) live(ev Event) bool {
	s := ev.Session
	if s == nil || ev.Attempt != s.ID() {
		return false
	}
	st := s.State()
	return st == session.Connected || st == session.Registered
}

// dialing reports whether ev answers the session's pending dial.
func (e *Engine) dialing(ev Event) bool {
	s := ev.Session
	return s != nil && ev.Attempt == s.ID() && s.State() == session.Connecting && e.active(s)
}

func (e *Engine) active(s *session.Session) bool {
	return slices.Contains(e.sessions, s)
}

// Connect adds n to the active set and dials it. A network that already
// has an active session keeps it; that session is returned.
func (e *Engine) Connect(ctx context.Context, n *session.Network) *session.Session {
	if s := e.session(n); s != nil {
		slog.Debug("network already has a session", "network", n.ID, "state", s.State())
		return s
	}

	s := session.New(n, session.Deps{
		Bus:       e.bus,
		Router:    e.router,
		Timers:    e.timers,
		Clock:     e.clock,
		Metrics:   e.metrics,
		IDs:       e.ids,
		Reconnect: e.dial,
		Context:   e.base,
	})
	e.sessions = append(e.sessions, s)
	e.metrics.Sessions.Set(float64(len(e.sessions)))

	e.bus.Dispatch(ctx, event.NewServer, s)
	e.dial(ctx, s)
	return s
}

// session returns the active session driving n, matched by descriptor or
// by network id, or nil.
func (e *Engine) session(n *session.Network) *session.Session {
	i := slices.IndexFunc(e.sessions, func(s *session.Session) bool {
		return s.Descriptor() == n || s.Network() == n.ID
	})
	if i < 0 {
		return nil
	}
	return e.sessions[i]
}

// ConnectAll connects to every configured network.
func (e *Engine) ConnectAll(ctx context.Context) {
	for _, n := range e.cfg.Networks {
		e.Connect(ctx, n.Descriptor())
	}
}

// dial starts a connection attempt. The result arrives as an event.
func (e *Engine) dial(ctx context.Context, s *session.Session) {
	s.BeginConnect(ctx)
	attempt := s.ID()
	n := s.Descriptor()

	go func() {
		t, err := e.dialer.Dial(e.base, n)
		ev := Event{Type: EventTypeConnected, Session: s, Attempt: attempt, Transport: t}
		if err != nil {
			ev = Event{Type: EventTypeConnectFailed, Session: s, Attempt: attempt, Err: err}
		}
		if !e.queue.Enqueue(ev) && t != nil {
			_ = t.Close()
		}
	}()
}

// startPump reads t until it fails, handing every chunk to the loop.
func (e *Engine) startPump(s *session.Session, t session.Transport) {
	attempt := s.ID()
	go func() {
		buf := make([]byte, readBufferSize)
		for {
			n, err := t.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				if !e.queue.Enqueue(Event{Type: EventTypeRead, Session: s, Attempt: attempt, Data: data}) {
					return
				}
			}
			if err != nil {
				e.queue.Enqueue(Event{Type: EventTypeClose, Session: s, Attempt: attempt, Err: err})
				return
			}
		}
	}()
}

// flush writes queued output of every session. A broken transport closes
// its session.
func (e *Engine) flush(ctx context.Context) {
	for _, s := range slices.Clone(e.sessions) {
		if !s.Writable() {
			continue
		}
		if err := s.Flush(ctx); err != nil {
			slog.Warn("write failed", "network", s.Network(), "error", err)
			e.closeSession(ctx, s, err)
		}
	}
}

func (e *Engine) closeSession(ctx context.Context, s *session.Session, cause error) {
	if !s.HandleClose(ctx, cause) {
		e.drop(s)
	}
}

// drop removes s from the active set.
func (e *Engine) drop(s *session.Session) {
	i := slices.Index(e.sessions, s)
	if i < 0 {
		return
	}
	e.sessions = slices.Delete(e.sessions, i, i+1)
	e.metrics.Sessions.Set(float64(len(e.sessions)))
	slog.Info("network removed", "network", s.Network())
}

// checkIdle pings registered sessions that went quiet for a keepalive
// period and closes those that stayed quiet for two.
func (e *Engine) checkIdle(ctx context.Context, _ any) error {
	now := e.clock.Now()
	for _, s := range slices.Clone(e.sessions) {
		if s.State() != session.Registered {
			continue
		}
		idle := s.Idle(now)
		switch {
		case idle >= 2*e.pingEvery:
			slog.Warn("ping timeout", "network", s.Network(), "idle", idle)
			e.closeSession(ctx, s, ErrPingTimeout)
		case idle >= e.pingEvery && !s.Pinged():
			s.Ping(s.Descriptor().Address)
		}
	}
	return nil
}

// QuitAll sends QUIT on every connected session. Sessions that are not
// connected stop retrying and leave the active set.
func (e *Engine) QuitAll(ctx context.Context, reason string) {
	for _, s := range slices.Clone(e.sessions) {
		switch s.State() {
		case session.Connected, session.Registered:
			s.Quit(reason)
		default:
			s.CancelReconnect(ctx)
			e.drop(s)
		}
	}
}

// Shutdown quits every network, waits briefly for the QUITs to be written,
// closes the remaining connections, unloads all modules and stops the
// worker pool. Run must have returned.
func (e *Engine) Shutdown(ctx context.Context, reason string) error {
	slog.Info("shutting down", "reason", reason)
	e.QuitAll(ctx, reason)

	deadline := time.Now().Add(e.drainTimeout)
	for e.pendingOutput() && time.Now().Before(deadline) {
		e.drain(ctx)
		if e.pendingOutput() {
			time.Sleep(flushInterval)
		}
	}

	for _, s := range slices.Clone(e.sessions) {
		s.HandleClose(ctx, ErrShutdown)
		s.CancelReconnect(ctx)
		e.drop(s)
	}
	e.queue.Close()

	err := e.modules.UnloadAll(ctx)
	if stopErr := e.pool.Stop(e.drainTimeout); stopErr != nil {
		err = errors.Join(err, fmt.Errorf("stop worker pool: %w", stopErr))
	}
	e.cancel()
	return err
}

func (e *Engine) pendingOutput() bool {
	return slices.ContainsFunc(e.sessions, (*session.Session).Writable)
}

// drain flushes like the loop does, but a broken or panicking transport
// only closes its own session.
func (e *Engine) drain(ctx context.Context) {
	for _, s := range slices.Clone(e.sessions) {
		if !s.Writable() {
			continue
		}
		if err := event.Call(func() error { return s.Flush(ctx) }); err != nil {
			slog.Warn("write failed during shutdown", "network", s.Network(), "error", err)
			e.closeSession(ctx, s, err)
		}
	}
}

// Stop makes Run return once queued events are handled.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Post runs fn on the loop. It returns false once the engine has stopped.
func (e *Engine) Post(fn func()) bool {
	return e.Call(func(context.Context) { fn() })
}

// Call runs fn on the loop with the loop's context.
func (e *Engine) Call(fn func(ctx context.Context)) bool {
	return e.queue.Enqueue(Event{Type: EventTypePosted, Func: fn})
}

// Apply makes cfg the active configuration. Networks and modules already
// running are left alone; threading flags and module settings take effect.
func (e *Engine) Apply(cfg *config.Config) {
	e.cfg = cfg
	e.applyAsync(cfg)
}

// Rehash reloads f and applies the result.
func (e *Engine) Rehash(ctx context.Context, f *config.File, fromSignal bool) error {
	cfg, err := f.Rehash(ctx, fromSignal)
	if err != nil {
		return err
	}
	e.Apply(cfg)
	return nil
}

// fatal writes the diagnostic for an unrecovered I/O panic.
func (e *Engine) fatal(r any) error {
	fe := &FatalError{Value: r, Stack: debug.Stack(), TBFile: e.cfg.Options.TBFile}
	slog.Error("internal I/O failure", "panic", r, "tbfile", fe.TBFile)

	if fe.TBFile != "" {
		report := fmt.Sprintf("synarere %s\n%s\npanic: %v\n\n%s",
			e.version, e.clock.Now().UTC().Format(time.RFC3339), r, fe.Stack)
		if err := os.WriteFile(fe.TBFile, []byte(report), 0o600); err != nil {
			fe.WriteErr = err
			slog.Error("unable to write traceback", "tbfile", fe.TBFile, "error", err)
		}
	}
	return fe
}

// Bus returns the event bus.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Router returns the command router.
func (e *Engine) Router() *command.Router { return e.router }

// Timers returns the timer scheduler.
func (e *Engine) Timers() *timer.Scheduler { return e.timers }

// Store returns the database, or nil.
func (e *Engine) Store() *store.Store { return e.db }

// Version returns the bot's version string.
func (e *Engine) Version() string { return e.version }

// Settings returns the configured settings of a module.
func (e *Engine) Settings(unit string) map[string]string { return e.cfg.Settings(unit) }

// Config returns the active configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Metrics returns the metrics registry.
func (e *Engine) Metrics() *metric.Metrics { return e.metrics }

// Modules returns the module registry.
func (e *Engine) Modules() *module.Registry { return e.modules }

// Pool returns a snapshot of the worker pool counters.
func (e *Engine) Pool() worker.Stats { return e.pool.Stats() }

// Sessions returns the active set in connect order.
func (e *Engine) Sessions() []*session.Session { return slices.Clone(e.sessions) }
