// Package seen remembers the last thing each nickname said in a channel and
// answers "!seen <nick>" and "bot: seen <nick>".
package seen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/irc"
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/store"
	"github.com/roach88/synarere/internal/timer"
)

// Name is the catalog name.
const Name = "seen"

// New returns the unit. It needs a database.
func New() module.Spec {
	return newSpec(timer.SystemClock{})
}

type unit struct {
	clock  timer.Clock
	db     *store.Store
	record *command.Handler
	query  *command.Handler
}

func newSpec(clock timer.Clock) module.Spec {
	u := &unit{clock: clock}
	u.record = command.NewHandler("seen.record", u.onPrivmsg)
	u.query = command.NewHandler("seen.query", u.onQuery)

	return module.Spec{
		Name: Name,
		Init: func(ctx context.Context, h module.Host) error {
			u.db = h.Store()
			if u.db == nil {
				return module.ErrNoStore
			}
			r := h.Router()
			r.Add(ctx, command.Raw, "PRIVMSG", u.record)
			r.Add(ctx, command.Channel, "SEEN", u.query)
			r.Add(ctx, command.Addressed, "SEEN", u.query)
			return nil
		},
		Fini: func(ctx context.Context, h module.Host) error {
			r := h.Router()
			r.Delete(ctx, command.Raw, "PRIVMSG", u.record)
			r.Delete(ctx, command.Channel, "SEEN", u.query)
			r.Delete(ctx, command.Addressed, "SEEN", u.query)
			return nil
		},
	}
}

// onPrivmsg records channel speakers.
func (u *unit) onPrivmsg(ctx context.Context, req *command.Request) error {
	msg := req.Message
	if !irc.IsChannel(msg.Target) {
		return nil
	}
	origin, ok := irc.ParsePrefix(msg.Origin)
	if !ok {
		return nil
	}
	err := u.db.RecordSighting(ctx, store.Sighting{
		Network: req.Conn.Network(),
		Key:     irc.FoldNick(origin.Nick),
		Nick:    origin.Nick,
		Channel: msg.Target,
		Message: msg.Trailing,
		At:      u.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", origin.Nick, err)
	}
	return nil
}

func (u *unit) onQuery(ctx context.Context, req *command.Request) error {
	to := req.ReplyTo()
	nick, _, _ := strings.Cut(req.Text, " ")
	if nick == "" {
		req.Conn.Privmsg(to, "usage: seen <nick>")
		return nil
	}
	if irc.EqualNick(nick, req.Origin.Nick) {
		req.Conn.Privmsg(to, req.Origin.Nick+": that's you.")
		return nil
	}
	if irc.EqualNick(nick, req.Conn.Nick()) {
		req.Conn.Privmsg(to, req.Origin.Nick+": I'm right here.")
		return nil
	}

	sg, found, err := u.db.LastSighting(ctx, req.Conn.Network(), irc.FoldNick(nick))
	if err != nil {
		return fmt.Errorf("look up %s: %w", nick, err)
	}
	if !found {
		req.Conn.Privmsg(to, fmt.Sprintf("I have not seen %s.", nick))
		return nil
	}

	ago := max(u.clock.Now().Sub(sg.At), 0).Round(time.Second)
	req.Conn.Privmsg(to, fmt.Sprintf("%s was last seen in %s %s ago saying: %s", sg.Nick, sg.Channel, ago, sg.Message))
	return nil
}
