// Package topic reports topic changes to a channel.
//
// Settings:
//
//	report: channel that receives the reports (default "#spying")
//
// The bot has to be in the report channel for the messages to arrive.
package topic

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/synarere/internal/command"
	"github.com/roach88/synarere/internal/irc"
	"github.com/roach88/synarere/internal/module"
)

// Name is the catalog name.
const Name = "topic"

// DefaultReport is the report channel when none is configured.
const DefaultReport = "#spying"

// New returns the unit.
func New() module.Spec {
	var watch *command.Handler

	return module.Spec{
		Name: Name,
		Init: func(ctx context.Context, h module.Host) error {
			report := h.Settings(Name)["report"]
			if report == "" {
				report = DefaultReport
			}
			if !irc.IsChannel(report) {
				return fmt.Errorf("report target %q is not a channel", report)
			}

			watch = command.NewHandler("topic.watch", func(_ context.Context, req *command.Request) error {
				if len(req.Params) == 0 {
					return nil
				}
				who := req.Message.Origin
				if p, ok := irc.ParsePrefix(who); ok {
					who = p.Nick
				}
				where := req.Params[0]
				what := strings.Join(req.Params[1:], " ")
				req.Conn.Privmsg(report, fmt.Sprintf("%s set the topic of %s to %q!", who, where, what))
				return nil
			})

			// Raw handlers see the message before anything else does.
			if !h.Router().AddFirst(ctx, command.Raw, "TOPIC", watch) {
				return fmt.Errorf("TOPIC first slot is taken")
			}
			return nil
		},
		Fini: func(ctx context.Context, h module.Host) error {
			h.Router().DeleteFirst(ctx, command.Raw, "TOPIC", watch)
			return nil
		},
	}
}
