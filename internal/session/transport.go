package session

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is a connected byte stream. net.Conn satisfies it.
type Transport interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// Dialer opens transports to networks.
type Dialer interface {
	Dial(ctx context.Context, n *Network) (Transport, error)
}

// NetDialer dials TCP over either address family, binding to the
// network's vhost when one is set.
type NetDialer struct {
	Timeout time.Duration
}

// Dial connects to n.
func (d NetDialer) Dial(ctx context.Context, n *Network) (Transport, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	if n.VHost != "" {
		local, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(n.VHost, "0"))
		if err != nil {
			return nil, fmt.Errorf("resolve vhost %s: %w", n.VHost, err)
		}
		nd.LocalAddr = local
	}

	conn, err := nd.DialContext(ctx, "tcp", n.HostPort())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.HostPort(), err)
	}
	return conn, nil
}
