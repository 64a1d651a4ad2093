package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/config"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/session"
	tu "github.com/roach88/synarere/internal/testutil"
)

const baseConfig = `
options:
  tbfile: %TB%
  ping_interval: 60
logger:
  level: debug
modules:
  - name: probe
    settings:
      greeting: hi
networks:
  - id: test
    address: irc.test
    nick: bot
    chans: ["#synarere"]
`

// fakeDialer hands out in-memory transports and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	fail  error
	wrap  func(*tu.Transport) session.Transport
	dials []*tu.Transport
}

func (d *fakeDialer) Dial(_ context.Context, n *session.Network) (session.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	t := tu.NewTransport()
	d.dials = append(d.dials, t)
	if d.wrap != nil {
		return d.wrap(t), nil
	}
	return t, nil
}

func (d *fakeDialer) setFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) last() *tu.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.dials) == 0 {
		return nil
	}
	return d.dials[len(d.dials)-1]
}

// panicTransport blows up on the first write.
type panicTransport struct {
	*tu.Transport
}

func (panicTransport) Write([]byte) (int, error) {
	panic("boom")
}

// probe is a catalog entry that counts its lifecycle calls.
type probe struct {
	inits, finis int
}

func (p *probe) catalog() module.Catalog {
	return module.Catalog{
		"probe": func() module.Spec {
			return module.Spec{
				Init: func(context.Context, module.Host) error { p.inits++; return nil },
				Fini: func(context.Context, module.Host) error { p.finis++; return nil },
			}
		},
	}
}

type fixture struct {
	engine *Engine
	dialer *fakeDialer
	clock  *tu.FakeClock
	probe  *probe
	tbfile string
}

func newFixture(t *testing.T, edit func(string) string) *fixture {
	t.Helper()
	tb := filepath.Join(t.TempDir(), "synarere.tb")
	doc := strings.ReplaceAll(baseConfig, "%TB%", tb)
	if edit != nil {
		doc = edit(doc)
	}
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	f := &fixture{
		dialer: &fakeDialer{},
		clock:  tu.NewFakeClock(),
		probe:  &probe{},
		tbfile: tb,
	}
	f.engine = New(cfg,
		WithClock(f.clock),
		WithDialer(f.dialer),
		WithIDs(tu.NewSequentialIDs("attempt")),
		WithCatalog(f.probe.catalog()),
		WithVersion("1.2"),
		WithDrainTimeout(500*time.Millisecond),
	)
	return f
}

// stepUntil runs loop iterations until cond holds.
func (f *fixture) stepUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, f.engine.Step(context.Background()))
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) wrote(line string) func() bool {
	return func() bool {
		t := f.dialer.last()
		return t != nil && slices.Contains(t.Lines(), line)
	}
}

// register starts the engine and completes registration on the first
// network.
func (f *fixture) register(t *testing.T) *session.Session {
	t.Helper()
	require.NoError(t, f.engine.Start(context.Background()))
	f.stepUntil(t, f.wrote("USER bot 2 3 :synarere"))

	f.dialer.last().Deliver(":irc.test 001 bot :Welcome\r\n")
	f.stepUntil(t, f.wrote("JOIN #synarere"))

	s := f.engine.Sessions()[0]
	require.Equal(t, session.Registered, s.State())
	return s
}

func TestEngine_New(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return strings.Replace(doc, "ping_interval: 60", "ping_interval: 60\n  chan_cmd_thread: true", 1)
	})
	e := f.engine

	assert.True(t, e.Router().Async(command.Channel))
	assert.False(t, e.Router().Async(command.Raw))
	assert.Equal(t, "1.2", e.Version())
	assert.Equal(t, map[string]string{"greeting": "hi"}, e.Settings("probe"))
	assert.Nil(t, e.Store())
	assert.Empty(t, e.Sessions())
}

func TestEngine_StartRegistersAndJoins(t *testing.T) {
	f := newFixture(t, nil)
	rec := tu.NewRecorder(f.engine.Bus(), event.NewServer, event.PreConnect, event.Connect, event.Registered, event.LoadAllModules)

	s := f.register(t)

	assert.Equal(t, 1, f.probe.inits)
	assert.Equal(t, []string{"probe"}, f.engine.Modules().Loaded())
	assert.Equal(t, []string{"NICK bot", "USER bot 2 3 :synarere", "JOIN #synarere"}, f.dialer.last().Lines())
	assert.Equal(t, "attempt-1", s.ID())
	assert.Equal(t,
		[]string{event.LoadAllModules, event.NewServer, event.PreConnect, event.Connect, event.Registered},
		rec.Names())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.Metrics().Sessions))

	// The keepalive timer is the only timer armed.
	require.Len(t, f.engine.Timers().Timers(), 1)
	assert.Equal(t, KeepaliveTimer, f.engine.Timers().Timers()[0].Name)
}

func TestEngine_AnswersPing(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	f.dialer.last().Deliver("PING :irc.test\r\n")
	f.stepUntil(t, f.wrote("PONG :irc.test"))
}

func TestEngine_StartTwice(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.Start(context.Background()))
	assert.Error(t, f.engine.Start(context.Background()))
}

func TestEngine_ConnectKeepsExistingSession(t *testing.T) {
	ctx := context.Background()

	t.Run("registered", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := tu.NewRecorder(f.engine.Bus(), event.NewServer, event.PreConnect)
		s := f.register(t)

		assert.Same(t, s, f.engine.Connect(ctx, s.Descriptor()))
		assert.Same(t, s, f.engine.Connect(ctx, f.engine.Config().Networks[0].Descriptor()))

		assert.Len(t, f.engine.Sessions(), 1)
		assert.Equal(t, 1, f.dialer.count())
		assert.Equal(t, session.Registered, s.State())
		assert.Equal(t, []string{event.NewServer, event.PreConnect}, rec.Names())
		assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.Metrics().Sessions))
	})

	t.Run("still connecting", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.engine.Start(ctx))
		require.Len(t, f.engine.Sessions(), 1)
		s := f.engine.Sessions()[0]

		assert.Same(t, s, f.engine.Connect(ctx, s.Descriptor()))
		f.stepUntil(t, f.wrote("USER bot 2 3 :synarere"))

		assert.Len(t, f.engine.Sessions(), 1)
		assert.Equal(t, 1, f.dialer.count())
	})
}

func TestEngine_ConnectFailureWithoutRecontime(t *testing.T) {
	f := newFixture(t, nil)
	f.dialer.setFail(errors.New("connection refused"))
	rec := tu.NewRecorder(f.engine.Bus(), event.ConnectFailed)

	require.NoError(t, f.engine.Start(context.Background()))
	f.stepUntil(t, func() bool { return len(rec.Named(event.ConnectFailed)) == 1 })

	assert.Empty(t, f.engine.Sessions(), "a network without recontime is dropped")
	assert.Equal(t, 0.0, promtest.ToFloat64(f.engine.Metrics().Sessions))
}

func TestEngine_ConnectFailureRetries(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return doc + "    recontime: 5\n"
	})
	f.dialer.setFail(errors.New("connection refused"))
	rec := tu.NewRecorder(f.engine.Bus(), event.ConnectFailed, event.PostReconnect)

	require.NoError(t, f.engine.Start(context.Background()))
	f.stepUntil(t, func() bool { return len(rec.Named(event.PostReconnect)) == 1 })
	require.Len(t, f.engine.Sessions(), 1)

	f.dialer.setFail(nil)
	f.clock.Advance(5 * time.Second)
	f.stepUntil(t, f.wrote("NICK bot"))

	s := f.engine.Sessions()[0]
	assert.Equal(t, "attempt-2", s.ID())
	assert.Equal(t, session.Connected, s.State())
}

func TestEngine_RemoteCloseReconnects(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return doc + "    recontime: 5\n"
	})
	f.register(t)
	first := f.dialer.last()

	require.NoError(t, first.Close())
	f.stepUntil(t, func() bool { return f.engine.Sessions()[0].ReconnectPending() })
	assert.Equal(t, session.Disconnected, f.engine.Sessions()[0].State())

	f.clock.Advance(5 * time.Second)
	f.stepUntil(t, func() bool { return f.dialer.count() == 2 && slices.Contains(f.dialer.last().Lines(), "NICK bot") })
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.Metrics().Reconnects.WithLabelValues("test")))
}

func TestEngine_QuitAllSuppressesReconnect(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return doc + "    recontime: 5\n"
	})
	f.register(t)

	f.engine.QuitAll(context.Background(), "bye")
	f.stepUntil(t, f.wrote("QUIT :bye"))

	require.NoError(t, f.dialer.last().Close())
	f.stepUntil(t, func() bool { return len(f.engine.Sessions()) == 0 })

	assert.Equal(t, 1, f.dialer.count())
	assert.Len(t, f.engine.Timers().Timers(), 1, "only the keepalive timer remains")
}

func TestEngine_KeepalivePingsThenTimesOut(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	f.clock.Advance(60 * time.Second)
	f.stepUntil(t, f.wrote("PING :irc.test"))
	assert.True(t, f.engine.Sessions()[0].Pinged())

	f.clock.Advance(60 * time.Second)
	f.stepUntil(t, func() bool { return len(f.engine.Sessions()) == 0 })
	assert.True(t, f.dialer.last().Closed())
}

func TestEngine_KeepaliveInputResetsIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)

	f.clock.Advance(59 * time.Second)
	f.dialer.last().Deliver(":irc.test NOTICE bot :still here\r\n")
	f.stepUntil(t, func() bool { return f.engine.Sessions()[0].Idle(f.clock.Now()) == 0 })

	f.clock.Advance(time.Second)
	require.NoError(t, f.engine.Step(context.Background()))
	assert.False(t, f.engine.Sessions()[0].Pinged())
	assert.NotContains(t, f.dialer.last().Lines(), "PING :irc.test")
}

func TestEngine_AsyncChannelCommand(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return strings.Replace(doc, "ping_interval: 60", "ping_interval: 60\n  chan_cmd_thread: true", 1)
	})
	f.engine.Router().Add(context.Background(), command.Channel, "GREET",
		command.NewHandler("greet", func(_ context.Context, req *command.Request) error {
			req.Conn.Privmsg(req.ReplyTo(), "hello "+req.Text)
			return nil
		}))
	f.register(t)

	f.dialer.last().Deliver(":alice!a@example.org PRIVMSG #synarere :!greet world\r\n")
	f.stepUntil(t, f.wrote("PRIVMSG #synarere :hello world"))
	assert.Eventually(t, func() bool { return f.engine.Pool().Processed == 1 }, time.Second, time.Millisecond)
}

func TestEngine_HandlerFailureCounted(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.Bus().Attach("OnTest", event.NewListener("broken", func(context.Context, ...any) error {
		return errors.New("broken")
	}))

	f.engine.Bus().Dispatch(context.Background(), "OnTest")
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.Metrics().HandlerFailures.WithLabelValues("event")))
}

func TestEngine_PostRunsOnLoop(t *testing.T) {
	f := newFixture(t, nil)

	ran := false
	require.True(t, f.engine.Post(func() { ran = true }))
	require.True(t, f.engine.Call(func(context.Context) { panic("isolated") }))
	require.NoError(t, f.engine.Step(context.Background()))

	assert.True(t, ran)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.engine.Metrics().HandlerFailures.WithLabelValues("engine")))
}

func TestEngine_FatalWritesTraceback(t *testing.T) {
	f := newFixture(t, nil)
	f.dialer.wrap = func(t *tu.Transport) session.Transport { return panicTransport{t} }
	require.NoError(t, f.engine.Start(context.Background()))

	var err error
	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		err = f.engine.Step(context.Background())
		time.Sleep(time.Millisecond)
	}
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "boom", fe.Value)
	assert.Equal(t, f.tbfile, fe.TBFile)
	assert.NoError(t, fe.WriteErr)

	data, readErr := os.ReadFile(f.tbfile)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "synarere 1.2")
	assert.Contains(t, string(data), "panic: boom")
	assert.Contains(t, fe.Error(), f.tbfile)
}

func TestEngine_Shutdown(t *testing.T) {
	f := newFixture(t, func(doc string) string {
		return doc + "    recontime: 5\n"
	})
	f.register(t)
	rec := tu.NewRecorder(f.engine.Bus(), event.UnloadAllModules, event.ConnectionClose)

	require.NoError(t, f.engine.Shutdown(context.Background(), "exiting"))

	tr := f.dialer.last()
	assert.Contains(t, tr.Lines(), "QUIT :exiting")
	assert.True(t, tr.Closed())
	assert.Empty(t, f.engine.Sessions())
	assert.Equal(t, 1, f.probe.finis)
	assert.Empty(t, f.engine.Modules().Loaded())
	assert.Equal(t, []string{event.ConnectionClose, event.UnloadAllModules}, rec.Names())
	assert.Len(t, f.engine.Timers().Timers(), 1, "no reconnect was scheduled")
	assert.False(t, f.engine.Post(func() {}), "the queue is closed")
}

func TestEngine_RunStops(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.engine.Run(ctx) }()

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return")
		}
	})

	t.Run("stopped", func(t *testing.T) {
		f := newFixture(t, nil)
		ran := make(chan struct{})
		f.engine.Post(func() { close(ran) })
		f.engine.Stop()

		err := f.engine.Run(context.Background())
		assert.NoError(t, err)
		select {
		case <-ran:
		default:
			t.Fatal("queued work was not run before stopping")
		}
	})
}

func TestEngine_Rehash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synarere.yaml")
	doc := strings.ReplaceAll(baseConfig, "%TB%", "synarere.tb")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	f := newFixture(t, nil)
	file, err := config.Open(path, f.engine.Bus())
	require.NoError(t, err)
	rec := tu.NewRecorder(f.engine.Bus(), event.Rehash)

	updated := strings.Replace(doc, "greeting: hi", "greeting: hello", 1)
	updated = strings.Replace(updated, "ping_interval: 60", "ping_interval: 60\n  priv_cmd_thread: true", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.NoError(t, f.engine.Rehash(context.Background(), file, true))
	assert.Equal(t, "hello", f.engine.Settings("probe")["greeting"])
	assert.True(t, f.engine.Router().Async(command.Private))
	assert.Len(t, rec.Named(event.Rehash), 1)

	require.NoError(t, os.WriteFile(path, []byte("networks: []\n"), 0o600))
	require.Error(t, f.engine.Rehash(context.Background(), file, false))
	assert.Equal(t, "hello", f.engine.Settings("probe")["greeting"], "a rejected file changes nothing")
}
