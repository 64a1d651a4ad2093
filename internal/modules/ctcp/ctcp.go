// Package ctcp answers the CTCP VERSION and PING queries.
package ctcp

import (
	"context"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/irc"
	"github.com/roach88/synarere/internal/module"
)

// Name is the catalog name.
const Name = "ctcp"

// New returns the unit.
func New() module.Spec {
	var version, ping *command.Handler

	return module.Spec{
		Name: Name,
		Init: func(ctx context.Context, h module.Host) error {
			reply := "synarere-" + h.Version()
			version = command.NewHandler("ctcp.version", func(_ context.Context, req *command.Request) error {
				req.Conn.Notice(req.Origin.Nick, irc.CTCP("VERSION", reply))
				return nil
			})
			ping = command.NewHandler("ctcp.ping", func(_ context.Context, req *command.Request) error {
				req.Conn.Notice(req.Origin.Nick, irc.CTCP("PING", req.Text))
				return nil
			})

			h.Router().Add(ctx, command.CTCP, "VERSION", version)
			h.Router().Add(ctx, command.CTCP, "PING", ping)
			return nil
		},
		Fini: func(ctx context.Context, h module.Host) error {
			h.Router().Delete(ctx, command.CTCP, "VERSION", version)
			h.Router().Delete(ctx, command.CTCP, "PING", ping)
			return nil
		},
	}
}
