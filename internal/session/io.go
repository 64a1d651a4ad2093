package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/irc"
)

// ErrNoReconnect is returned by the reconnect timer when no Reconnect hook
// was configured.
var ErrNoReconnect = errors.New("session has no reconnect hook")

// BeginConnect starts a new connection attempt.
func (s *Session) BeginConnect(ctx context.Context) {
	s.id = s.deps.IDs.Generate()
	s.state = Connecting
	s.quitting = false
	s.pending = nil
	slog.Info("connecting", "network", s.network.ID, "addr", s.network.HostPort(), "attempt", s.id)
	s.deps.Bus.Dispatch(ctx, event.PreConnect, s)
}

// HandleConnected takes ownership of t and queues registration.
func (s *Session) HandleConnected(ctx context.Context, t Transport) {
	s.transport = t
	s.state = Connected
	s.network.Connected = true
	s.nick = s.network.Nick
	s.queue = nil
	s.framer.Reset()
	s.lastRecv = s.deps.Clock.Now()
	s.pinged = false

	slog.Info("connection established", "network", s.network.ID, "attempt", s.id)
	s.deps.Bus.Dispatch(ctx, event.Connect, s)

	if s.network.Pass != "" {
		s.enqueue(irc.Pass(s.network.Pass))
	}
	s.enqueue(irc.Nick(s.network.Nick))
	s.enqueue(irc.User(s.network.Ident, s.network.Gecos))
}

// HandleConnectFailed records a failed dial. It reports whether a retry
// was scheduled.
func (s *Session) HandleConnectFailed(ctx context.Context, err error) bool {
	s.state = Disconnected
	s.network.Connected = false
	slog.Error("unable to connect", "network", s.network.ID, "addr", s.network.HostPort(), "error", err)
	s.deps.Bus.Dispatch(ctx, event.ConnectFailed, s, err)
	return s.scheduleReconnect(ctx)
}

// HandleRead feeds received bytes through the framer and handles every
// complete line.
func (s *Session) HandleRead(ctx context.Context, chunk []byte) {
	s.lastRecv = s.deps.Clock.Now()
	s.pinged = false

	overflows := s.framer.Overflows()
	for line := range s.framer.Feed(chunk) {
		s.handleLine(ctx, line)
	}
	if n := s.framer.Overflows() - overflows; n > 0 {
		s.deps.Metrics.FramerOverflows.WithLabelValues(s.network.ID).Add(float64(n))
		slog.Warn("discarded unterminated input", "network", s.network.ID, "count", n)
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	s.deps.Metrics.LinesReceived.WithLabelValues(s.network.ID).Inc()
	slog.Debug("recv", "network", s.network.ID, "line", line)
	s.deps.Bus.Dispatch(ctx, event.Parse, s, line)

	msg, err := irc.Parse(line)
	if err != nil {
		s.deps.Metrics.ParseFailures.WithLabelValues(s.network.ID).Inc()
		slog.Debug("unparsable line", "network", s.network.ID, "error", err)
		return
	}

	s.deps.Router.Route(ctx, s, msg)
	s.builtin(ctx, msg)
}

// builtin handles the commands the core answers by itself.
func (s *Session) builtin(ctx context.Context, msg *irc.Message) {
	switch msg.Command {
	case "PING":
		token := msg.Trailing
		if !msg.HasTrailing {
			token = msg.Target
		}
		s.deps.Bus.Dispatch(ctx, event.Ping, s, token)
		s.enqueue(irc.Pong(token))

	case irc.ReplyWelcome:
		s.state = Registered
		if msg.Target != "" {
			s.nick = msg.Target
		}
		slog.Info("registered", "network", s.network.ID, "nick", s.nick)
		s.deps.Bus.Dispatch(ctx, event.Registered, s)
		for _, entry := range s.network.Channels {
			if name, key := SplitChannel(entry); name != "" {
				s.Join(name, key)
			}
		}

	case irc.ErrNicknameInUse:
		if s.state == Registered {
			return
		}
		old := s.nick
		s.nick = old + "_"
		slog.Warn("nickname in use", "network", s.network.ID, "nick", old, "retry", s.nick)
		s.enqueue(irc.Nick(s.nick))

	case "NICK":
		origin, ok := irc.ParsePrefix(msg.Origin)
		if !ok || !irc.EqualNick(origin.Nick, s.nick) {
			return
		}
		nick := msg.Trailing
		if !msg.HasTrailing {
			nick = msg.Target
		}
		if nick == "" {
			return
		}
		old := s.nick
		s.nick = nick
		s.deps.Bus.Dispatch(ctx, event.NickChange, s, old, nick)
	}
}

// HandleWrite writes the head of the queue once. It reports whether the
// head line was completed. A non-nil error means the transport is broken
// and the session should be closed.
func (s *Session) HandleWrite(ctx context.Context) (bool, error) {
	if !s.Writable() {
		return false, nil
	}
	head := s.queue[0]

	if s.deps.WriteTimeout > 0 {
		// Deadlines are enforced by the OS, so they use wall time.
		_ = s.transport.SetWriteDeadline(time.Now().Add(s.deps.WriteTimeout))
	}
	n, err := s.transport.Write(head.wire)

	if n >= len(head.wire) {
		s.queue[0] = outbound{}
		s.queue = s.queue[1:]
		s.deps.Metrics.LinesSent.WithLabelValues(s.network.ID).Inc()
		slog.Debug("sent", "network", s.network.ID, "line", head.line)
		s.deps.Bus.Dispatch(ctx, event.SocketWrite, s, head.line)
		return true, nil
	}
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return false, fmt.Errorf("write to %s: %w", s.network.ID, err)
	}

	total := len(head.wire)
	if n > 0 {
		s.queue[0].wire = head.wire[n:]
	}
	s.deps.Metrics.PartialWrites.WithLabelValues(s.network.ID).Inc()
	slog.Warn("incomplete write", "network", s.network.ID, "written", n, "remaining", total-n)
	s.deps.Bus.Dispatch(ctx, event.IncompleteSocketWrite, s, n, total)
	return false, nil
}

// Flush writes queued lines until the queue is empty or a write is partial.
func (s *Session) Flush(ctx context.Context) error {
	for s.Writable() {
		done, err := s.HandleWrite(ctx)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
	}
	return nil
}

// HandleClose tears down the transport and applies the reconnect policy.
// It reports whether a reconnect was scheduled; if not, the session should
// be dropped. Closing an already closed session changes nothing.
func (s *Session) HandleClose(ctx context.Context, cause error) bool {
	if s.transport == nil && s.state == Disconnected {
		return s.ReconnectPending()
	}

	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
	if dropped := len(s.queue); dropped > 0 {
		slog.Debug("discarding unsent lines", "network", s.network.ID, "count", dropped)
	}
	s.queue = nil
	s.framer.Reset()
	s.state = Disconnected
	s.network.Connected = false

	slog.Info("connection lost", "network", s.network.ID, "attempt", s.id, "cause", cause)
	s.deps.Bus.Dispatch(ctx, event.ConnectionClose, s)

	if s.quitting {
		return false
	}
	return s.scheduleReconnect(ctx)
}

func (s *Session) scheduleReconnect(ctx context.Context) bool {
	delay := s.network.Recontime
	if delay <= 0 {
		return false
	}
	if s.ReconnectPending() {
		return true
	}

	slog.Info("reconnecting", "network", s.network.ID, "in", delay)
	s.pending = s.deps.Timers.Add(ctx, ReconnectTimer, true, s.reconnect, delay, s)
	s.deps.Metrics.Reconnects.WithLabelValues(s.network.ID).Inc()
	s.deps.Bus.Dispatch(ctx, event.PostReconnect, s)
	return true
}

func (s *Session) fireReconnect(ctx context.Context, _ any) error {
	s.pending = nil
	if s.deps.Reconnect == nil {
		return ErrNoReconnect
	}
	s.deps.Reconnect(ctx, s)
	return nil
}

// Idle returns how long the session has gone without input.
func (s *Session) Idle(now time.Time) time.Duration {
	return now.Sub(s.lastRecv)
}

// CancelReconnect disarms a pending reconnect timer. It reports whether one
// was armed.
func (s *Session) CancelReconnect(ctx context.Context) bool {
	s.pending = nil
	return s.deps.Timers.Delete(ctx, s.reconnect, s) > 0
}
