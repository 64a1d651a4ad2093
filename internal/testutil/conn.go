package testutil

import (
	"sync"

	"github.com/roach88/synarere/internal/irc"
)

// Conn is an in-memory handler connection that records every line sent.
type Conn struct {
	ID      string
	Name    string
	Prefix  string
	mu      sync.Mutex
	written []string
}

// NewConn returns a Conn for network id with the given nick and trigger.
func NewConn(id, nick, trigger string) *Conn {
	return &Conn{ID: id, Name: nick, Prefix: trigger}
}

func (c *Conn) Network() string { return c.ID }
func (c *Conn) Nick() string    { return c.Name }
func (c *Conn) Trigger() string { return c.Prefix }

func (c *Conn) Privmsg(target, text string) { c.Push(irc.Privmsg(target, text)) }
func (c *Conn) Notice(target, text string)  { c.Push(irc.Notice(target, text)) }
func (c *Conn) Join(channel, key string)    { c.Push(irc.Join(channel, key)) }
func (c *Conn) Part(channel, reason string) { c.Push(irc.Part(channel, reason)) }
func (c *Conn) Quit(reason string)          { c.Push(irc.Quit(reason)) }

func (c *Conn) Push(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, line)
}

// Lines returns every line sent so far.
func (c *Conn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	copy(out, c.written)
	return out
}
