// Package irc implements the wire side of the IRC client protocol.
//
// It contains three pieces that have no dependency on the rest of the bot:
//
//   - Framer reassembles newline-terminated lines from arbitrary read chunks.
//   - Parse splits a line into origin, command, target and trailing text.
//   - Builders (Privmsg, Notice, Join, ...) produce outbound lines.
//
// Message.String is the inverse of Parse: for every combination of present
// and absent origin, target and trailing text, Parse(m.String()) yields m.
package irc
