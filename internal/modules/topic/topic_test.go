package topic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/irc"
	"github.com/roach88/synarere/internal/module"
	tu "github.com/roach88/synarere/internal/testutil"
)

func TestTopic_Reports(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		line     string
		want     string
	}{
		{
			name: "default channel",
			line: ":alice!a@example.org TOPIC #synarere :new topic here",
			want: `PRIVMSG #spying :alice set the topic of #synarere to "new topic here"!`,
		},
		{
			name:     "configured channel",
			settings: map[string]string{"report": "#ops"},
			line:     ":alice!a@example.org TOPIC #synarere :hi",
			want:     `PRIVMSG #ops :alice set the topic of #synarere to "hi"!`,
		},
		{
			name: "server origin",
			line: ":irc.test TOPIC #synarere :set by services",
			want: `PRIVMSG #spying :irc.test set the topic of #synarere to "set by services"!`,
		},
		{
			name: "cleared topic",
			line: ":alice!a@example.org TOPIC #synarere :",
			want: `PRIVMSG #spying :alice set the topic of #synarere to ""!`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := tu.NewHost()
			if tt.settings != nil {
				h.Config[Name] = tt.settings
			}
			reg := module.NewRegistry(h, module.Catalog{Name: New})
			require.NoError(t, reg.Load(ctx, Name))

			msg, err := irc.Parse(tt.line)
			require.NoError(t, err)
			conn := tu.NewConn("net", "bot", "!")
			h.Router().Route(ctx, conn, msg)

			assert.Equal(t, []string{tt.want}, conn.Lines())
		})
	}
}

func TestTopic_RejectsNonChannel(t *testing.T) {
	h := tu.NewHost()
	h.Config[Name] = map[string]string{"report": "alice"}
	reg := module.NewRegistry(h, module.Catalog{Name: New})

	err := reg.Load(context.Background(), Name)
	require.Error(t, err)
	assert.True(t, module.IsLoadError(err))
	assert.Empty(t, reg.Loaded())
}

func TestTopic_Unload(t *testing.T) {
	ctx := context.Background()
	h := tu.NewHost()
	reg := module.NewRegistry(h, module.Catalog{Name: New})
	require.NoError(t, reg.Load(ctx, Name))
	require.True(t, h.Router().Has(command.Raw, "TOPIC"))

	require.NoError(t, reg.Unload(ctx, Name))
	assert.False(t, h.Router().Has(command.Raw, "TOPIC"))
}
