package command

import (
	"context"

	"github.com/roach88/synarere/internal/irc"
)

// Namespace selects one of the routing tables.
type Namespace int

const (
	Raw Namespace = iota
	Channel
	Addressed
	Private
	CTCP

	numNamespaces
)

// Namespaces lists every namespace in routing order.
var Namespaces = []Namespace{Raw, Channel, Addressed, Private, CTCP}

// String returns the short name used in configuration and logs.
func (n Namespace) String() string {
	switch n {
	case Raw:
		return "irc"
	case Channel:
		return "chan"
	case Addressed:
		return "chanme"
	case Private:
		return "priv"
	case CTCP:
		return "ctcp"
	default:
		return "unknown"
	}
}

// Conn is the view of a session that handlers get.
//
// Every send appends one line to the session's outbound queue and returns
// immediately.
type Conn interface {
	// Network returns the configured network id.
	Network() string
	// Nick returns the bot's current nickname on this network.
	Nick() string
	// Trigger returns the channel command prefix.
	Trigger() string

	Privmsg(target, text string)
	Notice(target, text string)
	Join(channel, key string)
	Part(channel, reason string)
	Quit(reason string)
	Push(line string)
}

// Request carries one routed message to a handler.
type Request struct {
	Conn    Conn
	Message *irc.Message

	// Params is the raw parameter vector (target, trailing). Set for Raw.
	Params []string

	// Origin is the sender. Set for Channel, Addressed, Private and CTCP.
	Origin irc.Prefix
	// Target is the channel or nickname the message was sent to.
	Target string
	// Text is what follows the command word.
	Text string

	// Set on requests handed to a worker.
	post Poster
	loop context.Context
}

// OnLoop runs fn on the main loop. A request handled inline runs it at
// once; a request handled on a worker posts it, after any sends the handler
// already made. Handlers of threaded namespaces must change routing tables,
// timers and bus listeners only from fn. It reports false if fn could not
// be queued.
func (r *Request) OnLoop(ctx context.Context, fn func(ctx context.Context)) bool {
	if r.post == nil {
		fn(ctx)
		return true
	}
	loop := r.loop
	return r.post.Post(func() { fn(loop) })
}

// ReplyTo returns where a reply should go: the channel for channel
// commands, the sender for private ones.
func (r *Request) ReplyTo() string {
	if irc.IsChannel(r.Target) {
		return r.Target
	}
	return r.Origin.Nick
}

// HandlerFunc is a handler body.
type HandlerFunc func(ctx context.Context, req *Request) error

// Handler is a registrable handler. Its pointer is its identity.
type Handler struct {
	label string
	fn    HandlerFunc
}

// NewHandler wraps fn. label appears in logs and failure reports.
func NewHandler(label string, fn HandlerFunc) *Handler {
	return &Handler{label: label, fn: fn}
}

// Label returns the handler's label.
func (h *Handler) Label() string {
	return h.label
}
