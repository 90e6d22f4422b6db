// Package tcp adapts the operating system's TCP sockets to [transport].
package tcp

import (
	"context"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"syscall"
	"time"

	"caching-proxy/transport"

	"github.com/pkg/errors"
)

type Addr struct {
	ip   netip.Addr
	port uint16
}

var _ transport.Addr = Addr{}

func NewAddr(ip netip.Addr, port uint16) Addr {
	return Addr{ip, port}
}

func addrFrom(a net.Addr) Addr {
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return Addr{}
	}
	return Addr{ip: ap.Addr().Unmap(), port: ap.Port()}
}

func (a Addr) IP() netip.Addr  { return a.ip }
func (a Addr) Port() uint16    { return a.port }
func (a Addr) Identifier() any { return a.port }
func (a Addr) String() string {
	return netip.AddrPortFrom(a.ip, a.port).String()
}

type conn struct {
	c net.Conn

	local, remote Addr
}

var (
	_ transport.Conn     = (*conn)(nil)
	_ transport.Resetter = (*conn)(nil)
)

func wrap(c net.Conn) *conn {
	return &conn{
		c:      c,
		local:  addrFrom(c.LocalAddr()),
		remote: addrFrom(c.RemoteAddr()),
	}
}

func (c *conn) Read(p []byte) (n int, err error) {
	n, err = c.c.Read(p)
	return n, convertErr(err)
}

func (c *conn) Write(p []byte) (n int, err error) {
	n, err = c.c.Write(p)
	return n, convertErr(err)
}

func (c *conn) Close() error {
	if err := c.c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Reset closes with SO_LINGER 0, so the peer gets a RST instead of a FIN.
func (c *conn) Reset() error {
	if tc, ok := c.c.(*net.TCPConn); ok {
		if err := tc.SetLinger(0); err != nil {
			return convertErr(err)
		}
	}
	return c.Close()
}

func (c *conn) LocalAddr() transport.Addr  { return c.local }
func (c *conn) RemoteAddr() transport.Addr { return c.remote }

func (c *conn) SetReadDeadLine(t time.Time)  { c.c.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { c.c.SetWriteDeadline(t) }

// convertErr maps socket errors onto the sentinels of [transport].
func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return transport.ErrConnReset
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, syscall.ECONNREFUSED):
		return transport.ErrConnRefused
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return transport.ErrNetUnreachable
	case errors.Is(err, syscall.EADDRINUSE):
		return transport.ErrAddrAlreadyInUse
	}
	return err
}

type Listener struct {
	l    net.Listener
	addr Addr
}

var _ transport.ConnListener = (*Listener)(nil)

// Listen listens on the given port of every local interface.
func Listen(port string) (*Listener, error) {
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return nil, errors.Errorf("invalid port: %q", port)
	}

	l, err := net.Listen(string(transport.TCP), ":"+port)
	if err != nil {
		if converted := convertErr(err); converted != err {
			return nil, errors.Wrapf(converted, "listening on port %s", port)
		}
		return nil, errors.Wrapf(err, "listening on port %s", port)
	}

	return &Listener{l: l, addr: addrFrom(l.Addr())}, nil
}

func (l *Listener) Addr() transport.Addr { return l.addr }

// Accept waits for the next connection. When ctx is done first, the pending
// accept is left to finish on [Listener.Close] and its connection is dropped.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	type result struct {
		c   net.Conn
		err error
	}

	accepted := make(chan result, 1)
	go func() {
		c, err := l.l.Accept()
		accepted <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-accepted; r.c != nil {
				r.c.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-accepted:
		if r.err != nil {
			if errors.Is(r.err, net.ErrClosed) {
				return nil, transport.ErrConnListenerClosed
			}
			return nil, errors.Wrap(r.err, "accepting connection")
		}
		return wrap(r.c), nil
	}
}

func (l *Listener) Close() error {
	if err := l.l.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrConnListenerClosed
		}
		return err
	}
	return nil
}

// Dialer resolves host names through the operating system.
type Dialer struct {
	d net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer() *Dialer { return &Dialer{} }

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	c, err := d.d.DialContext(ctx, string(transport.TCP), addr.String())
	if err != nil {
		if converted := convertErr(err); converted != err {
			return nil, errors.Wrapf(converted, "dialing %s", addr)
		}
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return wrap(c), nil
}
