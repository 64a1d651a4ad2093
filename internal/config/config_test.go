package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/event"
)

const minimal = `
networks:
  - id: net
    address: irc.test
    nick: bot
`

func TestLoad_Example(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "synarere.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "synarere.db", cfg.Options.Database)
	assert.Equal(t, 60*time.Second, cfg.Options.PingEvery())
	assert.Equal(t, "synarere.tb", cfg.Options.TBFile)
	assert.Equal(t, 4, cfg.Options.Workers)
	assert.Equal(t, 256, cfg.Options.QueueSize)
	assert.Equal(t, slog.LevelDebug, cfg.Logger.SlogLevel())

	assert.True(t, cfg.Options.Async(command.Channel))
	assert.False(t, cfg.Options.Async(command.Raw))
	assert.False(t, cfg.Options.Async(command.Private))

	assert.Equal(t, []string{"ctcp", "topic"}, cfg.ModuleNames())
	assert.Equal(t, map[string]string{"report": "#spying"}, cfg.Settings("topic"))
	assert.Empty(t, cfg.Settings("ctcp"))
	assert.Nil(t, cfg.Settings("missing"))

	require.Len(t, cfg.Networks, 2)
	first := cfg.Networks[0]
	assert.Equal(t, "example", first.ID)
	assert.Equal(t, 6697, first.Port)
	assert.Equal(t, "synarere", first.Ident, "ident defaults to the nick")
	assert.Equal(t, "synarere", first.Gecos)
	assert.Equal(t, "!", first.Trigger)
	assert.Equal(t, []string{"#synarere", "#secret key"}, first.Chans)

	second := cfg.Networks[1]
	assert.Equal(t, 6667, second.Port)
	assert.Equal(t, "botident", second.Ident)
	assert.Equal(t, "hunter2", second.Pass)
	assert.Equal(t, ".", second.Trigger)
	assert.Equal(t, 0, second.Recontime)
	assert.Empty(t, second.Chans)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Options.PingEvery())
	assert.Equal(t, "", cfg.Options.MetricsAddr)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, slog.LevelInfo, cfg.Logger.SlogLevel())
	assert.Empty(t, cfg.Modules)
	for _, ns := range command.Namespaces {
		assert.False(t, cfg.Options.Async(ns), ns.String())
	}
}

func TestNetwork_Descriptor(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "synarere.yaml"))
	require.NoError(t, err)

	d := cfg.Networks[0].Descriptor()
	assert.Equal(t, "example", d.ID)
	assert.Equal(t, "irc.example.net:6697", d.HostPort())
	assert.Equal(t, 30*time.Second, d.Recontime)
	assert.Equal(t, []string{"#synarere", "#secret key"}, d.Channels)
	assert.False(t, d.Connected)

	// The descriptor owns its channel list.
	d.Channels[0] = "#changed"
	assert.Equal(t, "#synarere", cfg.Networks[0].Chans[0])
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
	}{
		{"empty file", "", CodeSchema},
		{"no networks", "networks: []\n", CodeSchema},
		{"bad yaml", "networks: [\n", CodeSyntax},
		{"unknown option", "options:\n  colour: red\n" + minimal, CodeSchema},
		{"unknown network field", minimal + "    colour: red\n", CodeSchema},
		{"port out of range", minimal + "    port: 70000\n", CodeSchema},
		{"negative recontime", minimal + "    recontime: -1\n", CodeSchema},
		{"bad level", "logger:\n  level: loud\n" + minimal, CodeSchema},
		{"missing nick", "networks:\n  - id: net\n    address: irc.test\n", CodeSchema},
		{"duplicate network", minimal + "  - id: net\n    address: irc.other\n    nick: bot\n", CodeDuplicate},
		{"duplicate module", "modules:\n  - name: ctcp\n  - name: ctcp\n" + minimal, CodeDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, IsError(err))

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CodeRead, ce.Code)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(minimal))
	require.NoError(t, err)
	assert.Equal(t, "net", cfg.Networks[0].ID)
}

func TestFile_Rehash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synarere.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	bus := event.NewBus()
	var got []any
	bus.Attach(event.Rehash, event.NewListener("test", func(_ context.Context, args ...any) error {
		got = args
		return nil
	}))

	f, err := Open(path, bus)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path())
	assert.Equal(t, "bot", f.Current().Networks[0].Nick)

	updated := strings.Replace(minimal, "nick: bot", "nick: other", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	cfg, err := f.Rehash(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Networks[0].Nick)
	assert.Same(t, cfg, f.Current())
	assert.Equal(t, []any{path, true}, got)
}

func TestFile_RehashKeepsCurrentOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synarere.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	bus := event.NewBus()
	fired := false
	bus.Attach(event.Rehash, event.NewListener("test", func(context.Context, ...any) error {
		fired = true
		return nil
	}))

	f, err := Open(path, bus)
	require.NoError(t, err)
	before := f.Current()

	require.NoError(t, os.WriteFile(path, []byte("networks: []\n"), 0o600))
	_, err = f.Rehash(context.Background(), false)
	require.Error(t, err)

	assert.Same(t, before, f.Current())
	assert.False(t, fired)
}
