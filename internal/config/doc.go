// Package config loads the bot's YAML configuration.
//
// A file is decoded into a generic document, unified with the embedded CUE
// schema (which supplies defaults and rejects unknown fields), and decoded
// into Config. File holds the active configuration and swaps it on rehash.
//
// # Example
//
//	options:
//	  database: synarere.db
//	  ping_interval: 120
//	logger:
//	  level: info
//	modules:
//	  - name: ctcp
//	  - name: topic
//	    settings:
//	      report: "#spying"
//	networks:
//	  - id: example
//	    address: irc.example.net
//	    nick: synarere
//	    chans: ["#synarere", "#secret key"]
//	    recontime: 30
package config
