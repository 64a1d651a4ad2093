package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/metric"
	tu "github.com/roach88/synarere/internal/testutil"
	"github.com/roach88/synarere/internal/timer"
)

type fixture struct {
	session    *Session
	bus        *event.Bus
	router     *command.Router
	timers     *timer.Scheduler
	clock      *tu.FakeClock
	metrics    *metric.Metrics
	transport  *tu.Transport
	rec        *tu.Recorder
	reconnects int
}

var recorded = []string{
	event.PreConnect, event.Connect, event.ConnectFailed, event.ConnectionClose,
	event.PostReconnect, event.Registered, event.Parse, event.SocketWrite,
	event.IncompleteSocketWrite, event.Ping, event.Privmsg, event.JoinChannel,
	event.JoinChannelWithKey, event.Quit, event.QuitWithReason, event.NickChange,
	event.Push,
}

func testNetwork() *Network {
	return &Network{
		ID:        "testnet",
		Address:   "irc.example.net",
		Port:      6667,
		Nick:      "bot",
		Ident:     "synarere",
		Gecos:     "synarere bot",
		Channels:  []string{"#synarere", "#secret key"},
		Recontime: 30 * time.Second,
		Trigger:   "!",
	}
}

func setupSession(t *testing.T, n *Network) *fixture {
	t.Helper()
	f := &fixture{
		clock:     tu.NewFakeClock(),
		bus:       event.NewBus(),
		metrics:   metric.New(),
		transport: tu.NewTransport(),
	}
	f.router = command.NewRouter(f.bus)
	f.timers = timer.NewScheduler(f.clock, f.bus)
	f.rec = tu.NewRecorder(f.bus, recorded...)
	f.session = New(n, Deps{
		Bus:     f.bus,
		Router:  f.router,
		Timers:  f.timers,
		Clock:   f.clock,
		Metrics: f.metrics,
		IDs:     tu.NewSequentialIDs("attempt"),
		Reconnect: func(ctx context.Context, s *Session) {
			f.reconnects++
		},
	})
	return f
}

// connect runs an attempt through to a connected transport and flushes the
// registration lines.
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.session.BeginConnect(ctx)
	f.session.HandleConnected(ctx, f.transport)
	require.NoError(t, f.session.Flush(ctx))
}

func (f *fixture) read(chunk string) {
	f.session.HandleRead(context.Background(), []byte(chunk))
}

func TestSession_Transcript(t *testing.T) {
	n := testNetwork()
	n.Pass = "hunter2"
	f := setupSession(t, n)
	ctx := context.Background()

	f.router.Add(ctx, command.Channel, "GREET", command.NewHandler("greet", func(ctx context.Context, req *command.Request) error {
		req.Conn.Privmsg(req.ReplyTo(), "hello "+req.Text)
		return nil
	}))

	f.connect(t)
	f.read("PING :irc.test\r\n:irc.test 001 bot :Welcome to the network\r\n")
	f.read(":alice!alice@example.org PRIVMSG #synarere :!greet world\r\n")
	f.session.Quit("bye")
	require.NoError(t, f.session.Flush(ctx))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	transcript := strings.ReplaceAll(f.transport.Written(), "\r\n", "\n")
	g.Assert(t, "transcript", []byte(transcript))

	assert.Equal(t, Registered, f.session.State())
	assert.True(t, n.Connected)
	assert.Equal(t, "attempt-1", f.session.ID())
}

func TestSession_RegistrationWithoutPass(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)

	assert.Equal(t, []string{"NICK bot", "USER synarere 2 3 :synarere bot"}, f.transport.Lines())
	assert.Equal(t, Connected, f.session.State())
	assert.Equal(t, []string{
		event.PreConnect,
		event.Connect,
		event.SocketWrite,
		event.SocketWrite,
	}, f.rec.Names())
}

func TestSession_PingIsAnswered(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	f.rec.Reset()

	f.read("PING :abc123\r\n")
	require.NoError(t, f.session.Flush(context.Background()))

	lines := f.transport.Lines()
	assert.Equal(t, "PONG :abc123", lines[len(lines)-1])
	ping := f.rec.Named(event.Ping)
	require.Len(t, ping, 1)
	assert.Equal(t, "abc123", ping[0].Args[1])
}

func TestSession_ReadsAcrossChunks(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	f.rec.Reset()

	f.read("PIN")
	f.read("G :a\r")
	assert.Empty(t, f.rec.Named(event.Parse))
	f.read("\n")

	parsed := f.rec.Named(event.Parse)
	require.Len(t, parsed, 1)
	assert.Equal(t, "PING :a", parsed[0].Args[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LinesReceived.WithLabelValues("testnet")))
}

func TestSession_UnparsableLinesAreCounted(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)

	f.read(":onlyorigin\r\n@@@ bad\r\nPING :ok\r\n")
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ParseFailures.WithLabelValues("testnet")))
	assert.Len(t, f.rec.Named(event.Ping), 1)
}

func TestSession_OversizedInputIsDiscarded(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)

	f.read(strings.Repeat("x", 70*1024))
	f.read("PING :after\r\n")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FramerOverflows.WithLabelValues("testnet")))
	parsed := f.rec.Named(event.Parse)
	require.Len(t, parsed, 1)
	assert.Equal(t, "PING :after", parsed[0].Args[1])
}

func TestSession_WelcomeJoinsChannels(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	f.rec.Reset()

	f.read(":irc.test 001 bot_ :Welcome\r\n")

	assert.Equal(t, Registered, f.session.State())
	assert.Equal(t, "bot_", f.session.Nick())
	assert.Equal(t, []string{
		event.Parse,
		event.Registered,
		event.JoinChannel,
		event.JoinChannelWithKey,
	}, f.rec.Names())
	assert.Equal(t, []any{f.session, "#secret", "key"}, f.rec.Named(event.JoinChannelWithKey)[0].Args)
}

func TestSession_NicknameInUseBeforeRegistration(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	ctx := context.Background()

	f.read(":irc.test 433 * bot :Nickname is already in use\r\n")
	require.NoError(t, f.session.Flush(ctx))
	assert.Equal(t, "bot_", f.session.Nick())

	f.read(":irc.test 001 bot_ :Welcome\r\n")
	f.read(":irc.test 433 bot_ other :Nickname is already in use\r\n")
	require.NoError(t, f.session.Flush(ctx))
	assert.Equal(t, "bot_", f.session.Nick())

	lines := f.transport.Lines()
	assert.Equal(t, "NICK bot_", lines[2])
	assert.NotContains(t, lines, "NICK bot__")
}

func TestSession_TracksOwnNickChanges(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)

	f.read(":alice!a@h NICK :alice2\r\n")
	assert.Equal(t, "bot", f.session.Nick())

	f.read(":BOT!synarere@h NICK :newbot\r\n")
	assert.Equal(t, "newbot", f.session.Nick())
	changes := f.rec.Named(event.NickChange)
	require.Len(t, changes, 1)
	assert.Equal(t, []any{f.session, "bot", "newbot"}, changes[0].Args)
}

func TestSession_PartialWriteResumes(t *testing.T) {
	f := setupSession(t, testNetwork())
	ctx := context.Background()
	f.session.BeginConnect(ctx)
	f.session.HandleConnected(ctx, f.transport)
	f.rec.Reset()

	f.transport.SetLimit(5)
	done, err := f.session.HandleWrite(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, f.session.Pending(), "head stays queued")

	incomplete := f.rec.Named(event.IncompleteSocketWrite)
	require.Len(t, incomplete, 1)
	assert.Equal(t, []any{f.session, 5, len("NICK bot\r\n")}, incomplete[0].Args)

	f.transport.SetLimit(0)
	require.NoError(t, f.session.Flush(ctx))
	assert.Equal(t, "NICK bot\r\nUSER synarere 2 3 :synarere bot\r\n", f.transport.Written())

	writes := f.rec.Named(event.SocketWrite)
	require.Len(t, writes, 2)
	assert.Equal(t, "NICK bot", writes[0].Args[1])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PartialWrites.WithLabelValues("testnet")))
}

func TestSession_FlushStopsAtPartialWrite(t *testing.T) {
	f := setupSession(t, testNetwork())
	ctx := context.Background()
	f.session.BeginConnect(ctx)
	f.session.HandleConnected(ctx, f.transport)

	f.transport.SetLimit(3)
	require.NoError(t, f.session.Flush(ctx))
	assert.Equal(t, "NIC", f.transport.Written())
	assert.Equal(t, 1, f.transport.Writes())
}

func TestSession_WriteErrorIsReturned(t *testing.T) {
	f := setupSession(t, testNetwork())
	ctx := context.Background()
	f.session.BeginConnect(ctx)
	f.session.HandleConnected(ctx, f.transport)

	broken := errors.New("connection reset")
	f.transport.FailWrites(broken)
	err := f.session.Flush(ctx)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 2, f.session.Pending())
}

func TestSession_OutboundLinesAreSanitized(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	ctx := context.Background()

	f.session.Push("PRIVMSG #a :one\r\nQUIT")
	f.session.Privmsg("#a", "“quoted” and so on…")
	require.NoError(t, f.session.Flush(ctx))

	lines := f.transport.Lines()
	assert.Equal(t, []string{
		"PRIVMSG #a :one",
		`PRIVMSG #a :"quoted" and so on...`,
	}, lines[len(lines)-2:])
}

func TestSession_CloseSchedulesReconnect(t *testing.T) {
	n := testNetwork()
	f := setupSession(t, n)
	f.connect(t)
	ctx := context.Background()

	f.session.Privmsg("#a", "unsent")
	assert.True(t, f.session.HandleClose(ctx, errors.New("eof")))

	assert.Equal(t, Disconnected, f.session.State())
	assert.False(t, n.Connected)
	assert.True(t, f.transport.Closed())
	assert.Zero(t, f.session.Pending(), "unsent lines are dropped")
	assert.True(t, f.session.ReconnectPending())
	assert.Len(t, f.rec.Named(event.ConnectionClose), 1)
	assert.Len(t, f.rec.Named(event.PostReconnect), 1)

	assert.True(t, f.session.HandleClose(ctx, nil), "second close is a no-op")
	assert.Len(t, f.rec.Named(event.ConnectionClose), 1)
	assert.Equal(t, 1, f.timers.Len())

	f.clock.Advance(29 * time.Second)
	f.timers.Run(ctx)
	assert.Zero(t, f.reconnects)

	f.clock.Advance(time.Second)
	f.timers.Run(ctx)
	assert.Equal(t, 1, f.reconnects)
	assert.False(t, f.session.ReconnectPending())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Reconnects.WithLabelValues("testnet")))
}

func TestSession_CloseWithoutRecontimeDrops(t *testing.T) {
	n := testNetwork()
	n.Recontime = 0
	f := setupSession(t, n)
	f.connect(t)

	assert.False(t, f.session.HandleClose(context.Background(), nil))
	assert.Zero(t, f.timers.Len())
	assert.Empty(t, f.rec.Named(event.PostReconnect))
}

func TestSession_QuitSuppressesReconnect(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)
	ctx := context.Background()

	f.session.Quit("")
	assert.True(t, f.session.Quitting())
	require.NoError(t, f.session.Flush(ctx))
	assert.False(t, f.session.HandleClose(ctx, nil))
	assert.Zero(t, f.timers.Len())

	f.session.BeginConnect(ctx)
	assert.False(t, f.session.Quitting(), "a new attempt clears the quit")
}

func TestSession_ConnectFailedSchedulesRetry(t *testing.T) {
	f := setupSession(t, testNetwork())
	ctx := context.Background()
	f.session.BeginConnect(ctx)

	dialErr := errors.New("connection refused")
	assert.True(t, f.session.HandleConnectFailed(ctx, dialErr))
	failed := f.rec.Named(event.ConnectFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, dialErr, failed[0].Args[1])

	assert.True(t, f.session.CancelReconnect(ctx))
	assert.False(t, f.session.ReconnectPending())
	assert.Zero(t, f.timers.Len())
}

func TestSession_KeepaliveBookkeeping(t *testing.T) {
	f := setupSession(t, testNetwork())
	f.connect(t)

	f.clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, f.session.Idle(f.clock.Now()))

	f.session.Ping("keepalive")
	assert.True(t, f.session.Pinged())

	f.read(":irc.test PONG irc.test :keepalive\r\n")
	assert.False(t, f.session.Pinged())
	assert.Zero(t, f.session.Idle(f.clock.Now()))
}

func TestSplitChannel(t *testing.T) {
	tests := []struct {
		entry, name, key string
	}{
		{"#chan", "#chan", ""},
		{"#chan key", "#chan", "key"},
		{"  #chan   key  ", "#chan", "key"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, key := SplitChannel(tt.entry)
		assert.Equal(t, tt.name, name, tt.entry)
		assert.Equal(t, tt.key, key, tt.entry)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "registered", Registered.String())
	assert.Equal(t, "unknown", State(9).String())
}
