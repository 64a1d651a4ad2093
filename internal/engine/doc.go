// Package engine implements the synarere main loop.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// One goroutine owns every session, the command router, the event bus and
// the timer scheduler. Other goroutines never touch them directly:
// - dials run in their own goroutine and post the result
// - each connected session has a read pump posting received bytes
// - async command handlers run on the worker pool and post their sends
//
// Loop Iteration:
// 1. Drain the event queue (reads, closes, dial results, posted closures)
// 2. Run due timers (reconnects, keepalive)
// 3. Flush every writable session
// 4. Block until the next timer is due, capped by the poll interval, or
// until another event is queued
//
// Handler and timer failures are isolated where they happen and reported
// through the bus. A panic that reaches the loop itself means session I/O is
// broken: the traceback is written to the configured tbfile and Run returns
// a *FatalError.
package engine
