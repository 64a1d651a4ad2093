// Package event is the bot's named-hook bus.
//
// Components publish lifecycle notifications (connect, write, timer fired,
// module loaded, ...) by name; modules observe them by attaching listeners.
// A listener is identified by its pointer, so attaching the same *Listener
// twice is a no-op and detaching requires the pointer that was attached.
//
// Every listener invocation is isolated. An error or panic from one listener
// is handed to the bus's Reporter and the remaining listeners still run.
// The same isolation helper (Call) is used by the command router and the
// timer scheduler so that all handler failures surface through one path.
package event
