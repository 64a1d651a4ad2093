package irc

import "strings"

// Message is a parsed protocol line.
//
// Origin, Target and Trailing are optional. Origin and Target are absent when
// empty; Trailing may legitimately be empty, so its presence is tracked by
// HasTrailing.
type Message struct {
	Origin      string
	Command     string
	Target      string
	Trailing    string
	HasTrailing bool

	// Raw is the line the message was parsed from. Empty for built messages.
	Raw string
}

// NewMessage builds a message with a trailing part.
func NewMessage(command, target, trailing string) *Message {
	return &Message{Command: command, Target: target, Trailing: trailing, HasTrailing: true}
}

// Params returns the parameter vector handed to raw protocol handlers:
// the target (if any) followed by the trailing text.
func (m *Message) Params() []string {
	params := make([]string, 0, 2)
	if m.Target != "" {
		params = append(params, m.Target)
	}
	return append(params, m.Trailing)
}

// String returns the wire form of the message without the line terminator.
//
// A target without trailing text is written with a trailing space
// ("MODE #chan ") because the grammar only recognises a target that is
// followed by a space.
func (m *Message) String() string {
	var b strings.Builder
	if m.Origin != "" {
		b.WriteByte(':')
		b.WriteString(m.Origin)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	switch {
	case m.Target != "":
		b.WriteByte(' ')
		b.WriteString(m.Target)
		b.WriteByte(' ')
		if m.HasTrailing {
			b.WriteByte(':')
			b.WriteString(m.Trailing)
		}
	case m.HasTrailing:
		b.WriteString(" :")
		b.WriteString(m.Trailing)
	}
	return b.String()
}

// Prefix is a dissected nick!user@host origin.
type Prefix struct {
	Nick string
	User string
	Host string
}

// String reassembles the origin.
func (p Prefix) String() string {
	return p.Nick + "!" + p.User + "@" + p.Host
}

// ParsePrefix splits nick!user@host. Server origins and anything with more
// than one '!' or '@' are rejected.
func ParsePrefix(origin string) (Prefix, bool) {
	if strings.Count(origin, "!") != 1 || strings.Count(origin, "@") != 1 {
		return Prefix{}, false
	}
	nick, userHost, _ := strings.Cut(origin, "!")
	user, host, ok := strings.Cut(userHost, "@")
	if !ok {
		return Prefix{}, false
	}
	return Prefix{Nick: nick, User: user, Host: host}, true
}

// IsChannel reports whether target names a channel.
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
