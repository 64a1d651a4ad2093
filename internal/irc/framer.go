package irc

import (
	"bytes"
	"iter"
)

// MaxCarry bounds the partial line a Framer holds between reads. A peer that
// never sends a terminator cannot grow the carry past this.
const MaxCarry = 64 * 1024

// Framer turns read chunks into complete lines.
//
// Bytes after the last terminator of a chunk are carried into the next call
// to Feed. A Framer is not safe for concurrent use; each session owns one.
type Framer struct {
	carry      []byte
	overflows  int
	discarding bool // dropping the rest of an oversized line
}

// Feed consumes a chunk and returns the complete lines it finishes.
//
// The carry is updated before Feed returns, so the sequence does not have to
// be consumed for the next Feed to be correct. Lines are split on '\n', one
// trailing '\r' is removed, and empty lines are skipped. After an overflow,
// input up to the next terminator belongs to the discarded line and is
// dropped too.
func (f *Framer) Feed(p []byte) iter.Seq[string] {
	if f.discarding {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			return func(func(string) bool) {}
		}
		f.discarding = false
		p = p[i+1:]
	}

	last := bytes.LastIndexByte(p, '\n')
	if last < 0 {
		f.hold(p)
		return func(func(string) bool) {}
	}

	buf := make([]byte, 0, len(f.carry)+last+1)
	buf = append(buf, f.carry...)
	buf = append(buf, p[:last+1]...)
	f.carry = f.carry[:0]
	f.hold(p[last+1:])

	return func(yield func(string) bool) {
		rest := buf
		for len(rest) > 0 {
			i := bytes.IndexByte(rest, '\n')
			line := rest[:i]
			rest = rest[i+1:]
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if len(line) == 0 {
				continue
			}
			if !yield(string(line)) {
				return
			}
		}
	}
}

// Pending returns the number of carried bytes.
func (f *Framer) Pending() int {
	return len(f.carry)
}

// Overflows returns how many times an oversized partial line was discarded.
func (f *Framer) Overflows() int {
	return f.overflows
}

// Reset drops the carry. Used when a session reconnects.
func (f *Framer) Reset() {
	f.carry = f.carry[:0]
	f.discarding = false
}

func (f *Framer) hold(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(f.carry)+len(p) > MaxCarry {
		f.carry = f.carry[:0]
		f.overflows++
		f.discarding = true
		return
	}
	f.carry = append(f.carry, p...)
}
