package module

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/store"
	"github.com/roach88/synarere/internal/timer"
)

// Host is what a unit can reach while it is loaded.
type Host interface {
	Bus() *event.Bus
	Router() *command.Router
	Timers() *timer.Scheduler
	// Store returns the database, or nil when none is configured.
	Store() *store.Store
	// Settings returns the unit's configured key/value settings.
	Settings(unit string) map[string]string
	// Version returns the bot's version string.
	Version() string
}

// Spec is one loadable unit.
type Spec struct {
	Name string
	Init func(ctx context.Context, h Host) error
	Fini func(ctx context.Context, h Host) error
}

// Factory returns a fresh Spec. Each load gets its own state.
type Factory func() Spec

// Catalog maps unit names to factories.
type Catalog map[string]Factory

// Names returns the catalog's unit names in no particular order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}

var (
	// ErrUnknownModule means the name is not in the catalog.
	ErrUnknownModule = errors.New("unknown module")
	// ErrNoEntryPoint means the unit has no Init.
	ErrNoEntryPoint = errors.New("no entry point has been defined")
	// ErrNoExitPoint means the unit has no Fini.
	ErrNoExitPoint = errors.New("no exit point has been defined")
	// ErrAlreadyLoaded means the unit is loaded.
	ErrAlreadyLoaded = errors.New("module already loaded")
	// ErrNotLoaded means the unit is not loaded.
	ErrNotLoaded = errors.New("module not loaded")
	// ErrNoStore is returned by units that need a database when none is
	// configured.
	ErrNoStore = errors.New("module requires a database")
)

// LoadError reports a unit that could not be loaded or unloaded.
type LoadError struct {
	Module string
	Op     string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s module %s: %v", e.Op, e.Module, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
