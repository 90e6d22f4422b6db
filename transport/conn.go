package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnClosed         = errors.New("connection is closed")
	ErrConnReset          = errors.New("connection reset by peer")
	ErrConnListenerClosed = errors.New("conn listener is closed")
	ErrDeadLineExceeded   = errors.New("deadline exceeded")
	ErrConnRefused        = errors.New("connection refused")
	ErrNetUnreachable     = errors.New("network is unreachable")
	ErrAddrAlreadyInUse   = errors.New("address already in use")
)

type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	LocalAddr() Addr
	RemoteAddr() Addr

	SetReadDeadLine(t time.Time)
	SetWriteDeadLine(t time.Time)
}

// Resetter is a [Conn] that can abort instead of closing in order.
// The peer then sees [ErrConnReset] rather than [ErrConnClosed].
type Resetter interface {
	Reset() error
}

type ConnListener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() Addr
	Close() error
}

type ConnDialer interface {
	Dial(ctx context.Context, addr Addr) (Conn, error)
}
