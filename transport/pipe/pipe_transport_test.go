package pipe

import (
	"context"
	"testing"
	"time"

	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
)

type PipeTransportTestSuite struct {
	suite.Suite

	transport *PipeTransport
}

func TestPipeTransportTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTransportTestSuite))
}

func (s *PipeTransportTestSuite) SetupTest() {
	s.transport = NewPipeTransport(clock.New())
}

func (s *PipeTransportTestSuite) TestListen() {
	addr := Addr{Name: "hey"}

	lis, err := s.transport.Listen(addr)
	s.Require().NoError(err)
	s.Require().NotNil(lis)
	s.Equal(transport.Addr(addr), lis.Addr())

	got, ok := s.transport.listeners[addr.String()]
	s.True(ok)
	s.Equal(lis, got)

	lis, err = s.transport.Listen(addr)
	s.ErrorIs(err, transport.ErrAddrAlreadyInUse)
	s.Nil(lis)
}

func (s *PipeTransportTestSuite) TestDial() {
	addr := Addr{Name: "hey"}

	lis, err := s.transport.Listen(addr)
	s.Require().NoError(err)

	accepted := make(chan transport.Conn, 1)
	go func() {
		conn, err := lis.Accept(context.Background())
		s.NoError(err)
		accepted <- conn
	}()

	conn, err := s.transport.Dial(context.Background(), addr)
	s.Require().NoError(err)
	s.Require().NotNil(conn)

	s.Equal(addr.String(), conn.RemoteAddr().String())

	server := <-accepted
	s.Require().NotNil(server)
	s.NoError(conn.Close())
	s.NoError(server.Close())
}

func (s *PipeTransportTestSuite) TestDialByHostPort() {
	target := transport.HostPort{Host: "example.com", Port: "80"}

	lis, err := s.transport.Listen(Addr{Name: "example.com:80"})
	s.Require().NoError(err)

	go func() {
		conn, err := lis.Accept(context.Background())
		if s.NoError(err) {
			conn.Close()
		}
	}()

	conn, err := s.transport.Dial(context.Background(), target)
	s.Require().NoError(err)
	s.NoError(conn.Close())
}

func (s *PipeTransportTestSuite) TestDialUnreachable() {
	conn, err := s.transport.Dial(context.Background(), Addr{Name: "nowhere"})
	s.ErrorIs(err, transport.ErrNetUnreachable)
	s.Nil(conn)
}

func (s *PipeTransportTestSuite) TestDialCancels() {
	addr := Addr{Name: "hey"}
	_, err := s.transport.Listen(addr)
	s.Require().NoError(err)

	// Nobody accepts.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	conn, err := s.transport.Dial(ctx, addr)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Nil(conn)
}

type PipeListenerTestSuite struct {
	suite.Suite

	transport *PipeTransport
	pl        *pipeListener
}

func TestPipeListenerTestSuite(t *testing.T) {
	suite.Run(t, new(PipeListenerTestSuite))
}

func (s *PipeListenerTestSuite) SetupTest() {
	s.transport = NewPipeTransport(clock.New())

	pl, err := s.transport.Listen(Addr{Name: "hey"})
	s.Require().NoError(err)
	s.pl = pl
}

func (s *PipeListenerTestSuite) TestAccept() {
	_, p2 := Pipe("dialer", "hey", s.transport.clock)

	done := make(chan struct{})
	go func() {
		defer close(done)

		req := pipeRequest{conn: p2, accepted: make(chan struct{}, 1)}
		s.pl.requests <- req

		_, ok := <-req.accepted
		s.True(ok)
	}()

	conn, err := s.pl.Accept(context.Background())
	s.Equal(p2, conn)
	s.NoError(err)
	<-done
}

func (s *PipeListenerTestSuite) TestAcceptCancels() {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	conn, err := s.pl.Accept(ctx)
	s.Nil(conn)
	s.ErrorIs(err, context.Canceled)
}

func (s *PipeListenerTestSuite) TestAcceptAfterClose() {
	s.Require().NoError(s.pl.Close())

	conn, err := s.pl.Accept(context.Background())
	s.Nil(conn)
	s.ErrorIs(err, transport.ErrConnListenerClosed)
}

func (s *PipeListenerTestSuite) TestClose() {
	s.Require().NoError(s.pl.Close())

	<-s.pl.closed

	s.ErrorIs(s.pl.Close(), transport.ErrConnListenerClosed)

	listener, ok := s.transport.listeners[s.pl.addr.String()]
	s.False(ok)
	s.Nil(listener)

	_, err := s.transport.Dial(context.Background(), s.pl.addr)
	s.ErrorIs(err, transport.ErrNetUnreachable)
}
