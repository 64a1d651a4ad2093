package irc

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean folds typographic quotes and ellipses into their ASCII spelling
// before a line goes on the wire. Other text is left untouched.
func Clean(line string) string {
	if isASCII(line) {
		return line
	}
	// Transformers carry state; build a fresh chain per call.
	t := transform.Chain(
		runes.Map(foldQuote),
		runes.If(runes.Predicate(isEllipsis), norm.NFKC, transform.Nop),
	)
	out, _, err := transform.String(t, line)
	if err != nil {
		return line
	}
	return out
}

func foldQuote(r rune) rune {
	switch r {
	case '“', '”':
		return '"'
	case '‘', '’':
		return '\''
	}
	return r
}

func isEllipsis(r rune) bool {
	return r == '…'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// rfc1459 maps the characters the classic casemapping treats as the lower
// case forms of []\~.
var rfc1459 = strings.NewReplacer("[", "{", "]", "}", "\\", "|", "~", "^")

// FoldNick returns the case-folded form of a nickname.
func FoldNick(nick string) string {
	return rfc1459.Replace(cases.Fold().String(nick))
}

// EqualNick compares two nicknames case-insensitively.
func EqualNick(a, b string) bool {
	return FoldNick(a) == FoldNick(b)
}
