package session

import "github.com/google/uuid"

// IDGenerator names connection attempts so that log lines and stored
// traffic from one attempt can be told apart from the next.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered attempt ids. It is stateless and
// safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
