package module

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/roach88/synarere/internal/event"
)

// Registry tracks loaded units in load order.
type Registry struct {
	host    Host
	catalog Catalog
	loaded  []Spec
}

// NewRegistry creates a registry that resolves names in catalog.
func NewRegistry(host Host, catalog Catalog) *Registry {
	return &Registry{host: host, catalog: catalog}
}

// Load resolves name, runs its entry point and records it as loaded. A
// failing or panicking entry point leaves the unit unloaded.
func (r *Registry) Load(ctx context.Context, name string) error {
	if r.index(name) >= 0 {
		return &LoadError{Module: name, Op: "load", Err: ErrAlreadyLoaded}
	}
	factory, ok := r.catalog[name]
	if !ok {
		return &LoadError{Module: name, Op: "load", Err: ErrUnknownModule}
	}

	spec := factory()
	spec.Name = name
	if spec.Init == nil {
		return &LoadError{Module: name, Op: "load", Err: ErrNoEntryPoint}
	}
	if spec.Fini == nil {
		return &LoadError{Module: name, Op: "load", Err: ErrNoExitPoint}
	}

	if err := event.Call(func() error { return spec.Init(ctx, r.host) }); err != nil {
		r.host.Bus().Report(event.Failure{Source: "module", Name: name, Label: "init", Err: err})
		return &LoadError{Module: name, Op: "load", Err: err}
	}

	r.loaded = append(r.loaded, spec)
	slog.Info("module loaded", "module", name)
	r.host.Bus().Dispatch(ctx, event.ModuleLoad, name)
	return nil
}

// Unload runs name's exit point and forgets it. The unit is removed even
// when the exit point fails; the failure is returned.
func (r *Registry) Unload(ctx context.Context, name string) error {
	i := r.index(name)
	if i < 0 {
		slog.Warn("module not loaded", "module", name)
		return &LoadError{Module: name, Op: "unload", Err: ErrNotLoaded}
	}
	spec := r.loaded[i]
	r.loaded = slices.Delete(r.loaded, i, i+1)

	err := event.Call(func() error { return spec.Fini(ctx, r.host) })
	if err != nil {
		r.host.Bus().Report(event.Failure{Source: "module", Name: name, Label: "fini", Err: err})
	}
	slog.Info("module unloaded", "module", name)
	r.host.Bus().Dispatch(ctx, event.ModuleUnload, name)
	if err != nil {
		return &LoadError{Module: name, Op: "unload", Err: err}
	}
	return nil
}

// LoadAll loads every name in order. Failures are logged and joined; they
// do not stop the remaining loads.
func (r *Registry) LoadAll(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range names {
		if err := r.Load(ctx, name); err != nil {
			slog.Error("unable to load module", "module", name, "error", err)
			errs = append(errs, err)
		}
		r.host.Bus().Dispatch(ctx, event.LoadAllModules, name)
	}
	return errors.Join(errs...)
}

// UnloadAll unloads every loaded unit, most recently loaded first.
func (r *Registry) UnloadAll(ctx context.Context) error {
	slog.Info("unloading all modules", "count", len(r.loaded))

	var errs []error
	for len(r.loaded) > 0 {
		name := r.loaded[len(r.loaded)-1].Name
		if err := r.Unload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	r.host.Bus().Dispatch(ctx, event.UnloadAllModules)
	return errors.Join(errs...)
}

// Loaded returns the loaded unit names in load order.
func (r *Registry) Loaded() []string {
	names := make([]string, len(r.loaded))
	for i, spec := range r.loaded {
		names[i] = spec.Name
	}
	return names
}

// IsLoaded reports whether name is loaded.
func (r *Registry) IsLoaded(name string) bool {
	return r.index(name) >= 0
}

func (r *Registry) index(name string) int {
	return slices.IndexFunc(r.loaded, func(s Spec) bool { return s.Name == name })
}
