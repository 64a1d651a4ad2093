package testutil

import (
	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/store"
	"github.com/roach88/synarere/internal/timer"
)

// Host is a module host assembled from real components and a fake clock.
type Host struct {
	Events   *event.Bus
	Commands *command.Router
	Clock    *FakeClock
	Sched    *timer.Scheduler
	DB       *store.Store
	Config   map[string]map[string]string
	Release  string
}

// NewHost returns a host with no database and empty settings.
func NewHost() *Host {
	bus := event.NewBus()
	clock := NewFakeClock()
	return &Host{
		Events:   bus,
		Commands: command.NewRouter(bus),
		Clock:    clock,
		Sched:    timer.NewScheduler(clock, bus),
		Config:   make(map[string]map[string]string),
		Release:  "test",
	}
}

func (h *Host) Bus() *event.Bus          { return h.Events }
func (h *Host) Router() *command.Router  { return h.Commands }
func (h *Host) Timers() *timer.Scheduler { return h.Sched }
func (h *Host) Store() *store.Store      { return h.DB }
func (h *Host) Version() string          { return h.Release }

func (h *Host) Settings(unit string) map[string]string {
	return h.Config[unit]
}
