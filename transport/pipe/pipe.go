// Package pipe is an in-memory [transport] used to wire proxies,
// clients and fake origins together without touching the OS network.
//
// Borrowed the idea from net.Pipe in stdlib.
package pipe

import (
	"sync"
	"sync/atomic"
	"time"

	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (p Addr) Identifier() any { return p.Name }
func (p Addr) String() string  { return p.Name }

var _ transport.Addr = Addr{}

type pipe struct {
	stream chan []byte // stream that this pipe reads from.
	nc     chan int    // counterpart's read count will be sent here.

	writeMu sync.Mutex

	closed chan struct{}
	once   sync.Once // making sure not to close closed channel.
	reset  atomic.Bool

	rdeadLine *deadline
	wdeadLine *deadline

	counterpart *pipe

	addr Addr
}

var (
	_ transport.Conn     = (*pipe)(nil)
	_ transport.Resetter = (*pipe)(nil)
)

func newPipe(name string, clock clock.Clock) *pipe {
	return &pipe{
		stream:    make(chan []byte),
		nc:        make(chan int),
		closed:    make(chan struct{}),
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
		addr:      Addr{Name: name},
	}
}

// Pipe creates a pair of connected pipes. Each pipe is synchronous and unbuffered:
// a write returns only after the counterpart has read every byte of it.
func Pipe(name1, name2 string, clock clock.Clock) (c1, c2 *pipe) {
	c1, c2 = newPipe(name1, clock), newPipe(name2, clock)
	c1.counterpart, c2.counterpart = c2, c1
	return
}

func (p *pipe) LocalAddr() transport.Addr  { return p.addr }
func (p *pipe) RemoteAddr() transport.Addr { return p.counterpart.addr }

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Reset closes p so that the counterpart fails with [transport.ErrConnReset].
func (p *pipe) Reset() error {
	p.reset.Store(true)
	return p.Close()
}

// peerErr is what p reports once its counterpart is gone.
func (p *pipe) peerErr() error {
	if p.counterpart.reset.Load() {
		return transport.ErrConnReset
	}
	return transport.ErrConnClosed
}

func (p *pipe) Read(b []byte) (n int, err error) {
	if err := p.check(p.rdeadLine); err != nil {
		return 0, err
	}

	select {
	case received := <-p.stream:
		n := copy(b, received)
		p.counterpart.nc <- n
		return n, nil
	case <-p.closed:
		return 0, transport.ErrConnClosed
	case <-p.counterpart.closed:
		return 0, p.peerErr()
	case <-p.rdeadLine.wait():
		return 0, transport.ErrDeadLineExceeded
	}
}

func (p *pipe) Write(b []byte) (n int, err error) {
	if err := p.check(p.wdeadLine); err != nil {
		return 0, err
	}

	if len(b) == 0 {
		return 0, nil
	}

	// Serialize writes so that concurrent writers never interleave.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for len(b) > 0 {
		select {
		case p.counterpart.stream <- b:
			nr := <-p.nc
			b = b[nr:]
			n += nr
		case <-p.closed:
			return n, transport.ErrConnClosed
		case <-p.counterpart.closed:
			return n, p.peerErr()
		case <-p.wdeadLine.wait():
			return n, transport.ErrDeadLineExceeded
		}
	}

	return n, nil
}

func (p *pipe) check(d *deadline) error {
	switch {
	case isClosed(p.closed):
		return transport.ErrConnClosed
	case isClosed(p.counterpart.closed):
		return p.peerErr()
	case isClosed(d.wait()):
		return transport.ErrDeadLineExceeded
	}
	return nil
}

func (p *pipe) SetReadDeadLine(t time.Time)  { p.rdeadLine.set(t) }
func (p *pipe) SetWriteDeadLine(t time.Time) { p.wdeadLine.set(t) }

// deadline is a channel that gets closed once the deadline passes.
type deadline struct {
	clock clock.Clock

	timer *clock.Timer
	mu    sync.Mutex

	exceeded chan struct{}
}

func newDeadLine(clock clock.Clock) *deadline {
	return &deadline{
		clock:    clock,
		exceeded: make(chan struct{}),
	}
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A stopped timer may still be firing, so it always gets a fresh channel.
	if d.timer != nil || isClosed(d.exceeded) {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.exceeded = make(chan struct{})
	}

	if t.IsZero() {
		// zero value means no limit.
		return
	}

	exceeded := d.exceeded
	d.timer = d.clock.AfterFunc(d.clock.Until(t), func() { close(exceeded) })
}

func (d *deadline) wait() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exceeded
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
