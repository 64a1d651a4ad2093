package irc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLine is wrapped by every ParseError.
var ErrMalformedLine = errors.New("malformed protocol line")

// ParseError describes why a line did not match the line grammar.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s: %q", ErrMalformedLine, e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedLine
}

// Parse splits a line according to
//
//	[":" origin " "] command [" " target " "] [[":"] trailing]
//
// origin contains no whitespace, command is a run of word characters, and
// target contains neither whitespace nor a colon and must be followed by a
// space. Whatever remains is the trailing text, with one leading colon
// stripped.
func Parse(line string) (*Message, error) {
	m := &Message{Raw: line}
	rest := line

	if strings.HasPrefix(rest, ":") {
		end := strings.IndexByte(rest, ' ')
		if end < 0 {
			return nil, &ParseError{Line: line, Reason: "origin without command"}
		}
		m.Origin = rest[1:end]
		if m.Origin == "" || strings.ContainsAny(m.Origin, "\t\v\f\r\n") {
			return nil, &ParseError{Line: line, Reason: "invalid origin"}
		}
		rest = rest[end+1:]
	}

	n := 0
	for n < len(rest) && isWordByte(rest[n]) {
		n++
	}
	if n == 0 {
		return nil, &ParseError{Line: line, Reason: "missing command"}
	}
	m.Command = rest[:n]
	rest = rest[n:]
	if rest == "" {
		return m, nil
	}
	if rest[0] != ' ' {
		return nil, &ParseError{Line: line, Reason: "invalid command"}
	}
	rest = rest[1:]

	if end := strings.IndexByte(rest, ' '); end > 0 {
		if candidate := rest[:end]; !strings.ContainsAny(candidate, ":\t\v\f\r\n") {
			m.Target = candidate
			rest = rest[end+1:]
		}
	}

	if rest != "" {
		m.Trailing = strings.TrimPrefix(rest, ":")
		m.HasTrailing = true
	}
	return m, nil
}

func isWordByte(c byte) bool {
	return c == '_' ||
		('0' <= c && c <= '9') ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z')
}
