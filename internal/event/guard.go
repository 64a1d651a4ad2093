package event

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrHandlerPanic is wrapped by every PanicError.
var ErrHandlerPanic = errors.New("handler panicked")

// PanicError carries a recovered panic value and the stack at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrHandlerPanic, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrHandlerPanic
}

// Call runs fn and converts a panic into a *PanicError.
func Call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// Failure describes one isolated handler failure.
type Failure struct {
	// Source is the component that ran the handler: "event", "command",
	// "timer" or "module".
	Source string
	// Name is the event, command or timer name.
	Name string
	// Label identifies the handler.
	Label string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Source, f.Name, f.Label, f.Err)
}

// Reporter receives isolated failures. It must not panic.
type Reporter func(Failure)
