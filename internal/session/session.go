package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/irc"
	"github.com/roach88/synarere/internal/metric"
	"github.com/roach88/synarere/internal/timer"
)

// DefaultWriteTimeout bounds a single write. A write that hits it counts as
// a partial write and is resumed on the next flush.
const DefaultWriteTimeout = 100 * time.Millisecond

// ReconnectTimer is the name of the one-shot timer that retries a closed
// session.
const ReconnectTimer = "session.reconnect"

// Deps are the collaborators a session needs. Bus, Router and Timers are
// required.
type Deps struct {
	Bus     *event.Bus
	Router  *command.Router
	Timers  *timer.Scheduler
	Clock   timer.Clock
	Metrics *metric.Metrics
	IDs     IDGenerator

	// Reconnect is called by the reconnect timer. The engine uses it to
	// dial again.
	Reconnect func(ctx context.Context, s *Session)

	// Context is passed to listeners notified from send operations, which
	// have no context of their own.
	Context context.Context

	WriteTimeout time.Duration
}

// outbound is one queued line. wire shrinks as partial writes succeed.
type outbound struct {
	line string
	wire []byte
}

// Session is one connection to a Network.
type Session struct {
	network *Network
	deps    Deps

	id        string
	state     State
	nick      string
	transport Transport
	framer    irc.Framer
	queue     []outbound
	quitting  bool

	lastRecv time.Time
	pinged   bool

	reconnect *timer.Callback
	pending   *timer.Timer
}

// New creates a disconnected session for n.
func New(n *Network, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = timer.SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metric.New()
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.WriteTimeout == 0 {
		deps.WriteTimeout = DefaultWriteTimeout
	}

	s := &Session{
		network: n,
		deps:    deps,
		nick:    n.Nick,
	}
	s.reconnect = timer.NewCallback(ReconnectTimer, s.fireReconnect)
	return s
}

// ID returns the current connection attempt's id. It is empty before the
// first attempt.
func (s *Session) ID() string { return s.id }

// Descriptor returns the network this session drives.
func (s *Session) Descriptor() *Network { return s.network }

// State returns the connection state.
func (s *Session) State() State { return s.state }

// Network returns the network id.
func (s *Session) Network() string { return s.network.ID }

// Nick returns the nickname the server knows us by.
func (s *Session) Nick() string { return s.nick }

// Trigger returns the channel command prefix.
func (s *Session) Trigger() string { return s.network.Trigger }

// Pending returns the number of queued lines.
func (s *Session) Pending() int { return len(s.queue) }

// Writable reports whether Flush has anything to do.
func (s *Session) Writable() bool { return s.transport != nil && len(s.queue) > 0 }

// Quitting reports whether a QUIT has been queued on this connection.
func (s *Session) Quitting() bool { return s.quitting }

// ReconnectPending reports whether a reconnect timer is armed.
func (s *Session) ReconnectPending() bool {
	return s.pending != nil && s.pending.Active()
}

// LastRecv returns when input was last received.
func (s *Session) LastRecv() time.Time { return s.lastRecv }

// Pinged reports whether a keepalive PING is outstanding.
func (s *Session) Pinged() bool { return s.pinged }

// Ping sends a keepalive PING and marks it outstanding until input arrives.
func (s *Session) Ping(token string) {
	s.enqueue(irc.Ping(token))
	s.pinged = true
}

// Privmsg queues a PRIVMSG.
func (s *Session) Privmsg(target, text string) {
	s.enqueue(irc.Privmsg(target, text))
	s.deps.Bus.Dispatch(s.deps.Context, event.Privmsg, s, target, text)
}

// Notice queues a NOTICE.
func (s *Session) Notice(target, text string) {
	s.enqueue(irc.Notice(target, text))
	s.deps.Bus.Dispatch(s.deps.Context, event.Notice, s, target, text)
}

// Join queues a JOIN, with key when not empty.
func (s *Session) Join(channel, key string) {
	s.enqueue(irc.Join(channel, key))
	if key == "" {
		s.deps.Bus.Dispatch(s.deps.Context, event.JoinChannel, s, channel)
		return
	}
	s.deps.Bus.Dispatch(s.deps.Context, event.JoinChannelWithKey, s, channel, key)
}

// Part queues a PART, with reason when not empty.
func (s *Session) Part(channel, reason string) {
	s.enqueue(irc.Part(channel, reason))
	if reason == "" {
		s.deps.Bus.Dispatch(s.deps.Context, event.PartChannel, s, channel)
		return
	}
	s.deps.Bus.Dispatch(s.deps.Context, event.PartChannelWithReason, s, channel, reason)
}

// Quit queues a QUIT. The session will not reconnect after the server
// closes the connection.
func (s *Session) Quit(reason string) {
	s.quitting = true
	s.enqueue(irc.Quit(reason))
	if reason == "" {
		s.deps.Bus.Dispatch(s.deps.Context, event.Quit, s)
		return
	}
	s.deps.Bus.Dispatch(s.deps.Context, event.QuitWithReason, s, reason)
}

// Push queues a raw line.
func (s *Session) Push(line string) {
	s.enqueue(line)
	s.deps.Bus.Dispatch(s.deps.Context, event.Push, s, line)
}

// enqueue appends line to the send queue. Anything after an embedded line
// break is dropped so one call always produces exactly one line.
func (s *Session) enqueue(line string) {
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		slog.Warn("truncated outbound line at line break", "network", s.network.ID, "line", line)
		line = line[:i]
	}
	wire := []byte(irc.Clean(line) + "\r\n")
	s.queue = append(s.queue, outbound{line: line, wire: wire})
}
