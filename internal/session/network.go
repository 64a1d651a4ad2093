package session

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Network describes one configured server. It outlives the connections made
// to it; only the session driving it changes Connected.
type Network struct {
	ID        string
	Address   string
	Port      int
	Nick      string
	Ident     string
	Gecos     string
	VHost     string
	Channels  []string
	Pass      string
	Recontime time.Duration
	Trigger   string

	Connected bool
}

// HostPort returns the dial address.
func (n *Network) HostPort() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// SplitChannel splits an auto-join entry of the form "#chan [key]".
func SplitChannel(entry string) (name, key string) {
	name, key, _ = strings.Cut(strings.TrimSpace(entry), " ")
	return name, strings.TrimSpace(key)
}
