package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "prefix-1", "prefix-2", ... for session attempt IDs.
//
// This keeps log and golden output stable across runs, where production
// code uses UUIDv7.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "session".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "session"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
