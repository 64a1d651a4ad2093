// Package session drives one server connection.
//
// A Session is owned by the main loop: every Handle* method and every send
// operation must be called from that goroutine. Reading from the socket
// happens elsewhere (the engine's read pump) and reaches the session as
// HandleRead calls, so the session itself never blocks on input. Output is
// queued as wire bytes and written by Flush; a partial write keeps the
// unsent remainder at the head of the queue for the next attempt.
//
// Lifecycle:
//
//	Disconnected -> Connecting -> Connected -> Registered
//	      ^              |            |            |
//	      +--------------+------------+------------+  (close or dial failure)
//
// After a close the descriptor's reconnect delay decides whether the
// session is retried by a one-shot timer or dropped for good.
package session
