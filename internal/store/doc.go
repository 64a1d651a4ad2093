// Package store keeps the bot's durable state in SQLite.
//
// Two tables back the compiled-in modules:
//   - seen: the last thing each nickname said, per network
//   - journal: an append-only log of protocol traffic
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single connection: SQLite has one writer
//
// Timestamps are stored as Unix nanoseconds. Journal order is the rowid,
// never the timestamp.
package store
