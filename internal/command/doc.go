// Package command routes parsed protocol messages to registered handlers.
//
// There are five independent namespaces:
//
//	Raw        keyed by protocol command (PRIVMSG, 001, TOPIC, ...)
//	Channel    trigger-prefixed words said in a channel ("!seen bob")
//	Addressed  words said to the bot by name in a channel ("bot: seen bob")
//	Private    first word of a private message
//	CTCP       first word of a \x01-delimited private message
//
// Each command name in a namespace has a dispatch record: an optional first
// handler, an ordered set of regular handlers and an optional last handler.
// Dispatch always runs them in that order. A handler's error or panic is
// reported and never stops the rest of the chain.
//
// A namespace can be switched to asynchronous dispatch. Its handlers then run
// on an Executor (the worker pool) and see a Conn whose sends are posted back
// to the main loop, so session state is only ever touched by one goroutine.
package command
