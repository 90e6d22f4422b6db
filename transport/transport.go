package transport

import "net"

type Protocol string

const (
	TCP Protocol = "tcp"
	// UDP Protocol = "udp"
)

type Addr interface {
	Identifier() any // Extra identifier (e.g. port, pipe name)
	String() string
}

// HostPort names a remote endpoint by host and service port.
// Resolving the host is left to the dialer.
type HostPort struct {
	Host string
	Port string
}

var _ Addr = HostPort{}

func (a HostPort) Identifier() any { return a.Port }
func (a HostPort) String() string  { return net.JoinHostPort(a.Host, a.Port) }
