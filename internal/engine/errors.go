package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrPingTimeout closes a session that stayed silent through a keepalive
	// PING.
	ErrPingTimeout = errors.New("ping timeout")

	// ErrShutdown is the close cause for sessions torn down by Shutdown.
	ErrShutdown = errors.New("engine shutting down")
)

// FatalError is returned by Run when servicing session I/O panicked. The
// loop cannot continue; the process is expected to shut down with
// EX_SOFTWARE.
type FatalError struct {
	// Value is what the panic carried.
	Value any

	// Stack is the goroutine stack at the point of recovery.
	Stack []byte

	// TBFile is where the diagnostic was written, empty if nowhere.
	TBFile string

	// WriteErr is set when the diagnostic could not be written.
	WriteErr error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.TBFile != "" && e.WriteErr == nil {
		return fmt.Sprintf("internal I/O failure: %v (traceback written to %s)", e.Value, e.TBFile)
	}
	return fmt.Sprintf("internal I/O failure: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *FatalError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsFatal returns true if err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
