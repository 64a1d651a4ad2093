// Package list runs a channel listing on request.
//
// "!list" in a channel sends LIST to the server, collects the 322 replies
// until 323 and answers with the channel count and the most populated
// channels. The numeric handlers are only attached while a listing is in
// progress.
//
// Settings:
//
//	top: how many channels the answer names (default 5)
package list

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/module"
)

// Name is the catalog name.
const Name = "list"

const (
	// ReplyList is one channel of a LIST reply.
	ReplyList    = "322"
	// ReplyListEnd ends a LIST reply.
	ReplyListEnd = "323"

	defaultTop = 5
)

// Channel is one listed channel.
type Channel struct {
	Name  string
	Users int
	Topic string
}

var entryPattern = regexp.MustCompile(`^(.+) (\d+) :(.*)`)

// parseEntry reads the "#chan users :topic" part of a 322 reply.
func parseEntry(s string) (Channel, bool) {
	m := entryPattern.FindStringSubmatch(s)
	if m == nil {
		return Channel{}, false
	}
	users, err := strconv.Atoi(m[2])
	if err != nil {
		return Channel{}, false
	}
	return Channel{Name: m[1], Users: users, Topic: m[3]}, true
}

type listing struct {
	replyTo  string
	channels []Channel
}

type unit struct {
	router *command.Router
	top    int

	mu      sync.Mutex
	pending map[string]*listing

	request *command.Handler
	entry   *command.Handler
	end     *command.Handler
}

// New returns the unit.
func New() module.Spec {
	u := &unit{pending: make(map[string]*listing)}
	u.request = command.NewHandler("list.request", u.onRequest)
	u.entry = command.NewHandler("list.entry", u.onEntry)
	u.end = command.NewHandler("list.end", u.onEnd)

	return module.Spec{
		Name: Name,
		Init: func(ctx context.Context, h module.Host) error {
			u.router = h.Router()
			u.top = defaultTop
			if v := h.Settings(Name)["top"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					return fmt.Errorf("top: want a positive number, got %q", v)
				}
				u.top = n
			}
			u.router.Add(ctx, command.Channel, "LIST", u.request)
			return nil
		},
		Fini: func(ctx context.Context, h module.Host) error {
			u.router.Delete(ctx, command.Channel, "LIST", u.request)
			u.router.Delete(ctx, command.Raw, ReplyList, u.entry)
			u.router.Delete(ctx, command.Raw, ReplyListEnd, u.end)
			u.mu.Lock()
			clear(u.pending)
			u.mu.Unlock()
			return nil
		},
	}
}

func (u *unit) onRequest(ctx context.Context, req *command.Request) error {
	network := req.Conn.Network()

	u.mu.Lock()
	_, busy := u.pending[network]
	if !busy {
		u.pending[network] = &listing{replyTo: req.ReplyTo()}
	}
	u.mu.Unlock()

	if busy {
		req.Conn.Privmsg(req.ReplyTo(), "A listing is already in progress.")
		return nil
	}

	req.OnLoop(ctx, func(ctx context.Context) {
		u.router.Add(ctx, command.Raw, ReplyList, u.entry)
		u.router.Add(ctx, command.Raw, ReplyListEnd, u.end)
	})
	req.Conn.Push("LIST")
	return nil
}

func (u *unit) onEntry(_ context.Context, req *command.Request) error {
	if len(req.Params) < 2 {
		return nil
	}
	ch, ok := parseEntry(req.Params[1])
	if !ok {
		slog.Debug("unparsable LIST entry", "network", req.Conn.Network(), "entry", req.Params[1])
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if l := u.pending[req.Conn.Network()]; l != nil {
		l.channels = append(l.channels, ch)
	}
	return nil
}

func (u *unit) onEnd(ctx context.Context, req *command.Request) error {
	network := req.Conn.Network()

	u.mu.Lock()
	l := u.pending[network]
	delete(u.pending, network)
	u.mu.Unlock()

	req.OnLoop(ctx, u.detachIfIdle)
	if l == nil {
		return nil
	}

	slog.Info("channel listing complete", "network", network, "channels", len(l.channels))
	req.Conn.Privmsg(l.replyTo, summarize(l.channels, u.top))
	return nil
}

// detachIfIdle removes the numeric handlers once no network is listing.
func (u *unit) detachIfIdle(ctx context.Context) {
	u.mu.Lock()
	idle := len(u.pending) == 0
	u.mu.Unlock()
	if idle {
		u.router.Delete(ctx, command.Raw, ReplyList, u.entry)
		u.router.Delete(ctx, command.Raw, ReplyListEnd, u.end)
	}
}

// summarize names the top most populated channels.
func summarize(channels []Channel, top int) string {
	if len(channels) == 0 {
		return "No channels listed."
	}
	sorted := slices.SortedStableFunc(slices.Values(channels), func(a, b Channel) int {
		return cmp.Or(cmp.Compare(b.Users, a.Users), cmp.Compare(a.Name, b.Name))
	})
	if len(sorted) > top {
		sorted = sorted[:top]
	}
	names := make([]string, len(sorted))
	for i, ch := range sorted {
		names[i] = fmt.Sprintf("%s (%d)", ch.Name, ch.Users)
	}
	noun := "channels"
	if len(channels) == 1 {
		noun = "channel"
	}
	return fmt.Sprintf("%d %s; largest: %s", len(channels), noun, strings.Join(names, ", "))
}
