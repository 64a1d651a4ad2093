package command

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/roach88/synarere/internal/irc"
)

// Route dispatches msg to the Raw namespace under its command and then, for
// PRIVMSG from a user, to the chat namespace the text selects:
//
//   - in a channel, a first word naming the bot ("bot:", "bot,", "bot")
//     routes the second word to Addressed;
//   - in a channel, a first word starting with the trigger routes that word
//     without the trigger to Channel;
//   - in private, \x01-delimited text routes its first word to CTCP;
//   - otherwise in private, the first word routes to Private. If no handler
//     knows it, the word minus its first character is tried once, so "!help"
//     in private reaches HELP.
//
// Command words are matched case-insensitively. Text is the remaining words
// joined by single spaces.
func (r *Router) Route(ctx context.Context, conn Conn, msg *irc.Message) {
	r.Dispatch(ctx, Raw, msg.Command, &Request{
		Conn:    conn,
		Message: msg,
		Params:  msg.Params(),
	})

	if msg.Command != "PRIVMSG" || msg.Target == "" {
		return
	}
	origin, ok := irc.ParsePrefix(msg.Origin)
	if !ok {
		return
	}

	req := &Request{
		Conn:    conn,
		Message: msg,
		Origin:  origin,
		Target:  msg.Target,
	}
	if irc.IsChannel(msg.Target) {
		r.routeChannel(ctx, conn, req, msg.Trailing)
		return
	}
	r.routePrivate(ctx, req, msg.Trailing)
}

func (r *Router) routeChannel(ctx context.Context, conn Conn, req *Request, text string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}

	if addressesNick(words[0], conn.Nick()) {
		if len(words) < 2 {
			return
		}
		req.Text = strings.Join(words[2:], " ")
		r.Dispatch(ctx, Addressed, words[1], req)
		return
	}

	trigger := conn.Trigger()
	if !strings.HasPrefix(words[0], trigger) {
		return
	}
	name := strings.TrimPrefix(words[0], trigger)
	if name == "" {
		return
	}
	req.Text = strings.Join(words[1:], " ")
	r.Dispatch(ctx, Channel, name, req)
}

func (r *Router) routePrivate(ctx context.Context, req *Request, text string) {
	if strings.HasPrefix(text, irc.CTCPDelim) {
		words := strings.Fields(strings.Trim(text, irc.CTCPDelim))
		if len(words) == 0 {
			return
		}
		req.Text = strings.Join(words[1:], " ")
		r.Dispatch(ctx, CTCP, words[0], req)
		return
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}
	name := words[0]
	if !r.Has(Private, name) {
		_, size := utf8.DecodeRuneInString(name)
		name = name[size:]
		if name == "" {
			return
		}
		if !r.Has(Private, name) {
			return
		}
	}
	req.Text = strings.Join(words[1:], " ")
	r.Dispatch(ctx, Private, name, req)
}

// addressesNick reports whether word is nick, optionally followed by ':' or
// ','.
func addressesNick(word, nick string) bool {
	if nick == "" {
		return false
	}
	word = strings.TrimRight(word, ":,")
	return irc.EqualNick(word, nick)
}
