// Package modules lists the units compiled into the bot.
package modules

import (
	"github.com/roach88/synarere/internal/module"
	"github.com/roach88/synarere/internal/modules/ctcp"
	"github.com/roach88/synarere/internal/modules/journal"
	"github.com/roach88/synarere/internal/modules/list"
	"github.com/roach88/synarere/internal/modules/seen"
	"github.com/roach88/synarere/internal/modules/topic"
)

// Catalog returns every compiled-in unit by name.
func Catalog() module.Catalog {
	return module.Catalog{
		ctcp.Name:    ctcp.New,
		journal.Name: journal.New,
		list.Name:    list.New,
		seen.Name:    seen.New,
		topic.Name:   topic.New,
	}
}
