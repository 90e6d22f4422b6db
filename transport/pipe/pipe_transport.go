package pipe

import (
	"context"
	"sync"

	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
)

type pipeRequest struct {
	conn     *pipe
	accepted chan struct{}
}

// PipeTransport routes dials to in-memory listeners by address string,
// so any [transport.Addr] whose String() matches a listener reaches it.
type PipeTransport struct {
	listeners map[string]*pipeListener
	clock     clock.Clock

	mu sync.Mutex
}

func NewPipeTransport(clock clock.Clock) *PipeTransport {
	return &PipeTransport{
		listeners: make(map[string]*pipeListener),
		clock:     clock,
	}
}

var _ transport.ConnDialer = (*PipeTransport)(nil)

func (pt *PipeTransport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	pt.mu.Lock()
	listener, ok := pt.listeners[addr.String()]
	pt.mu.Unlock()

	if !ok {
		return nil, transport.ErrNetUnreachable
	}

	p1, p2 := Pipe("dialer", addr.String(), pt.clock)

	req := pipeRequest{
		conn:     p2,
		accepted: make(chan struct{}, 1),
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case listener.requests <- req:
	}

	// Once the request is handed over, the listener accepts it right away.
	select {
	case <-ctx.Done():
		p1.Close()
		return nil, ctx.Err()
	case <-req.accepted:
	}

	return p1, nil
}

func (pt *PipeTransport) Listen(addr transport.Addr) (*pipeListener, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, ok := pt.listeners[addr.String()]; ok {
		return nil, transport.ErrAddrAlreadyInUse
	}

	pl := &pipeListener{
		addr:      addr,
		transport: pt,
		requests:  make(chan pipeRequest),
		closed:    make(chan struct{}),
	}
	pt.listeners[addr.String()] = pl

	return pl, nil
}

type pipeListener struct {
	addr transport.Addr

	transport *PipeTransport

	requests chan pipeRequest
	closed   chan struct{}
	once     sync.Once
}

var _ transport.ConnListener = (*pipeListener)(nil)

func (pl *pipeListener) Addr() transport.Addr { return pl.addr }

func (pl *pipeListener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pl.closed:
		return nil, transport.ErrConnListenerClosed
	case request := <-pl.requests:
		request.accepted <- struct{}{} // buffered, never blocks.
		return request.conn, nil
	}
}

func (pl *pipeListener) Close() error {
	err := transport.ErrConnListenerClosed
	pl.once.Do(func() {
		close(pl.closed)

		pl.transport.mu.Lock()
		delete(pl.transport.listeners, pl.addr.String())
		pl.transport.mu.Unlock()

		err = nil
	})
	return err
}
