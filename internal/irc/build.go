package irc

import "fmt"

// CTCPDelim wraps CTCP requests and replies inside PRIVMSG and NOTICE text.
const CTCPDelim = "\x01"

// ReplyWelcome is the numeric that marks registration as complete.
const ReplyWelcome = "001"

// ErrNicknameInUse is sent when the requested nickname is taken.
const ErrNicknameInUse = "433"

// Privmsg builds a PRIVMSG line.
func Privmsg(target, text string) string {
	return fmt.Sprintf("PRIVMSG %s :%s", target, text)
}

// Notice builds a NOTICE line.
func Notice(target, text string) string {
	return fmt.Sprintf("NOTICE %s :%s", target, text)
}

// CTCP wraps a CTCP command and its argument. An empty argument yields just
// the command.
func CTCP(command, arg string) string {
	if arg == "" {
		return CTCPDelim + command + CTCPDelim
	}
	return CTCPDelim + command + " " + arg + CTCPDelim
}

// Join builds a JOIN line, with a key when one is given.
func Join(channel, key string) string {
	if key == "" {
		return "JOIN " + channel
	}
	return fmt.Sprintf("JOIN %s :%s", channel, key)
}

// Part builds a PART line, with a reason when one is given.
func Part(channel, reason string) string {
	if reason == "" {
		return "PART " + channel
	}
	return fmt.Sprintf("PART %s :%s", channel, reason)
}

// Quit builds a QUIT line, with a reason when one is given.
func Quit(reason string) string {
	if reason == "" {
		return "QUIT"
	}
	return "QUIT :" + reason
}

// Pong answers a PING with the same token.
func Pong(token string) string {
	return "PONG :" + token
}

// Ping builds a client keepalive.
func Ping(token string) string {
	return "PING :" + token
}

// Nick builds a NICK line.
func Nick(nick string) string {
	return "NICK " + nick
}

// User builds the USER registration line.
func User(ident, gecos string) string {
	return fmt.Sprintf("USER %s 2 3 :%s", ident, gecos)
}

// Pass builds the PASS registration line.
func Pass(password string) string {
	return "PASS " + password
}
