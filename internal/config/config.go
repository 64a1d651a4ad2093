package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
	"github.com/roach88/synarere/internal/session"
)

//go:embed schema.cue
var schemaSource string

// Error codes carried by *Error.
const (
	CodeRead      = "READ"
	CodeSyntax    = "SYNTAX"
	CodeSchema    = "SCHEMA"
	CodeDuplicate = "DUPLICATE"
)

// ErrDuplicate is wrapped when two networks or two modules share a name.
var ErrDuplicate = errors.New("duplicate entry")

// Error describes why a configuration was rejected.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
	Err     error
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err is a configuration error.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Config is a validated configuration with defaults applied.
type Config struct {
	Options  Options   `json:"options"`
	Logger   Logger    `json:"logger"`
	Modules  []Module  `json:"modules"`
	Networks []Network `json:"networks"`
}

// Options are the process-wide settings.
type Options struct {
	// TBFile receives the diagnostic written when the main loop dies.
	TBFile       string `json:"tbfile"`
	Database     string `json:"database"`
	PingInterval int    `json:"ping_interval"`
	MetricsAddr  string `json:"metrics_addr"`
	Workers      int    `json:"workers"`
	QueueSize    int    `json:"queue_size"`

	IRCThread    bool `json:"irc_cmd_thread"`
	ChanThread   bool `json:"chan_cmd_thread"`
	ChanMeThread bool `json:"chanme_cmd_thread"`
	PrivThread   bool `json:"priv_cmd_thread"`
	CTCPThread   bool `json:"ctcp_cmd_thread"`
}

// PingEvery returns the keepalive period. Zero disables keepalive.
func (o Options) PingEvery() time.Duration {
	return time.Duration(o.PingInterval) * time.Second
}

// Async reports whether handlers in ns run on the worker pool.
func (o Options) Async(ns command.Namespace) bool {
	switch ns {
	case command.Raw:
		return o.IRCThread
	case command.Channel:
		return o.ChanThread
	case command.Addressed:
		return o.ChanMeThread
	case command.Private:
		return o.PrivThread
	case command.CTCP:
		return o.CTCPThread
	}
	return false
}

// Logger configures log output.
type Logger struct {
	Level string `json:"level"`
}

// SlogLevel returns the configured level, info if it does not parse.
func (l Logger) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Module names a compiled-in unit to load at startup.
type Module struct {
	Name     string            `json:"name"`
	Settings map[string]string `json:"settings"`
}

// Network is one configured server.
type Network struct {
	ID        string   `json:"id"`
	Address   string   `json:"address"`
	Port      int      `json:"port"`
	Nick      string   `json:"nick"`
	Ident     string   `json:"ident"`
	Gecos     string   `json:"gecos"`
	VHost     string   `json:"vhost"`
	Chans     []string `json:"chans"`
	Pass      string   `json:"pass"`
	Recontime int      `json:"recontime"`
	Trigger   string   `json:"trigger"`
}

// Descriptor converts the entry into the descriptor a session drives.
func (n Network) Descriptor() *session.Network {
	return &session.Network{
		ID:        n.ID,
		Address:   n.Address,
		Port:      n.Port,
		Nick:      n.Nick,
		Ident:     n.Ident,
		Gecos:     n.Gecos,
		VHost:     n.VHost,
		Channels:  append([]string(nil), n.Chans...),
		Pass:      n.Pass,
		Recontime: time.Duration(n.Recontime) * time.Second,
		Trigger:   n.Trigger,
	}
}

// ModuleNames returns the configured module names in file order.
func (c *Config) ModuleNames() []string {
	names := make([]string, len(c.Modules))
	for i, m := range c.Modules {
		names[i] = m.Name
	}
	return names
}

// Settings returns the settings block of the named module, or nil.
func (c *Config) Settings(name string) map[string]string {
	for _, m := range c.Modules {
		if m.Name == name {
			return m.Settings
		}
	}
	return nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: CodeRead, Message: err.Error(), Err: err}
	}
	return Parse(data)
}

// Decode reads a configuration from r.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Code: CodeRead, Message: err.Error(), Err: err}
	}
	return Parse(data)
}

// Parse validates a YAML document against the schema and decodes it.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Code: CodeSyntax, Message: fmt.Sprintf("failed to parse YAML: %v", err), Err: err}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, schemaError(err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) check() error {
	networks := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if networks[n.ID] {
			return &Error{Code: CodeDuplicate, Message: fmt.Sprintf("network %q defined twice", n.ID), Err: ErrDuplicate}
		}
		networks[n.ID] = true
	}
	modules := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if modules[m.Name] {
			return &Error{Code: CodeDuplicate, Message: fmt.Sprintf("module %q listed twice", m.Name), Err: ErrDuplicate}
		}
		modules[m.Name] = true
	}
	return nil
}

// schemaError keeps the first CUE error and its position.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: CodeSchema, Message: err.Error(), Err: err}
	}
	first := errs[0]
	ce := &Error{Code: CodeSchema, Message: first.Error(), Err: err}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}

// File is the active configuration and where it came from.
type File struct {
	path string
	bus  *event.Bus

	mu      sync.RWMutex
	current *Config
}

// Open loads path and returns a File serving it.
func Open(path string, bus *event.Bus) (*File, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewFile(path, cfg, bus), nil
}

// NewFile serves cfg, already loaded from path.
func NewFile(path string, cfg *Config, bus *event.Bus) *File {
	return &File{path: path, bus: bus, current: cfg}
}

// Path returns the file name.
func (f *File) Path() string {
	return f.path
}

// Current returns the active configuration.
func (f *File) Current() *Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Rehash reloads the file. A rejected file leaves the active configuration
// in place. On success OnRehash is dispatched with the path and fromSignal.
func (f *File) Rehash(ctx context.Context, fromSignal bool) (*Config, error) {
	cfg, err := Load(f.path)
	if err != nil {
		slog.Error("rehash failed", "file", f.path, "error", err)
		return nil, err
	}

	f.mu.Lock()
	f.current = cfg
	f.mu.Unlock()

	slog.Info("configuration reloaded", "file", f.path, "signal", fromSignal)
	f.bus.Dispatch(ctx, event.Rehash, f.path, fromSignal)
	return cfg, nil
}
