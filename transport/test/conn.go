// Package test holds conformance suites shared by [transport.Conn] implementations.
package test

import (
	"bytes"
	"sync"
	"time"

	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// ConnTestSuite expects C1 and C2 to be the two ends of one synchronous connection.
// Embedders set them in their own SetupTest after calling this one.
type ConnTestSuite struct {
	suite.Suite
	C1, C2 transport.Conn
	Clock  clock.Clock

	done  chan struct{}
	timer *time.Timer
}

func (s *ConnTestSuite) SetupTest() {
	s.done = make(chan struct{})
	s.Clock = clock.New()

	s.timer = time.AfterFunc(time.Second, func() {
		select {
		case <-s.done:
		default:
			s.FailNow("timeout exceeded")
		}
	})
}

func (s *ConnTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
	close(s.done)
	s.timer.Stop()
}

func (s *ConnTestSuite) TestReadWrite() {
	data := []byte("GET / HTTP/1.0\r\n")

	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, err := s.C1.Write(data)
		s.Require().NoError(err)
		s.Equal(len(data), n)
	}()
	go func() {
		defer wg.Done()
		buf := make([]byte, 10)

		n, err := s.C2.Read(buf)
		s.Require().NoError(err)
		s.Equal(len(buf), n)
		s.Equal(data[:n], buf)

		n, err = s.C2.Read(buf)
		s.Require().NoError(err)
		s.Equal(len(data)-len(buf), n)
		s.Equal(data[len(buf):], buf[:n])
	}()
}

func (s *ConnTestSuite) TestWriteRace() {
	data := []byte("ABCD")
	N := 10

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		result := make([]byte, 0)

		b := make([]byte, 10)
		for {
			n, err := s.C2.Read(b)
			if err != nil {
				s.Require().ErrorIs(err, transport.ErrConnClosed)
				s.Equal(bytes.Repeat(data, N), result)
				return
			}
			result = append(result, b[:n]...)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		var wwg sync.WaitGroup
		for range N {
			wwg.Add(1)
			go func() {
				defer wwg.Done()
				n, err := s.C1.Write(data)
				s.Require().NoError(err)
				s.Equal(len(data), n)
			}()
		}
		wwg.Wait()
		s.Require().NoError(s.C1.Close())
	}()
}

func (s *ConnTestSuite) TestClose() {
	tryReadWrite := func(conn transport.Conn) {
		buf := make([]byte, 10)

		n, err := conn.Read(buf)
		s.Require().ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)

		n, err = conn.Write(buf)
		s.Require().ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)
	}

	s.Require().NoError(s.C1.Close())

	tryReadWrite(s.C1)
	tryReadWrite(s.C2)
}

func (s *ConnTestSuite) TestReadBeforeClose() {
	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.C1.Read(make([]byte, 1))
		s.ErrorIs(err, transport.ErrConnClosed)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.C1.Close())
}

func (s *ConnTestSuite) TestWriteBeforeClose() {
	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.C1.Write([]byte("hey"))
		s.ErrorIs(err, transport.ErrConnClosed)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(s.C1.Close())
}

// A peer that writes and then closes in order leaves its data readable,
// followed by [transport.ErrConnClosed].
func (s *ConnTestSuite) TestReadThenPeerClose() {
	data := []byte("HTTP/1.0 200 OK\r\n\r\nbody")

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.C1.Write(data)
		s.NoError(err)
		s.NoError(s.C1.Close())
	}()

	got := make([]byte, 0, len(data))
	buf := make([]byte, 8)
	for {
		n, err := s.C2.Read(buf)
		got = append(got, buf[:n]...)
		if err != nil {
			s.ErrorIs(err, transport.ErrConnClosed)
			break
		}
	}
	s.Equal(data, got)
}

// A reset must never look like an orderly close to the peer.
func (s *ConnTestSuite) TestPeerReset() {
	r, ok := s.C1.(transport.Resetter)
	if !ok {
		s.T().Skip("conn cannot reset")
	}

	s.Require().NoError(r.Reset())

	n, err := s.C2.Read(make([]byte, 1))
	s.Zero(n)
	s.ErrorIs(err, transport.ErrConnReset)
	s.NotErrorIs(err, transport.ErrConnClosed)

	_, err = s.C2.Write([]byte("late"))
	s.ErrorIs(err, transport.ErrConnReset)

	_, err = s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func (s *ConnTestSuite) TestReadDeadLine() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))

	b := make([]byte, 1)
	n, err := s.C1.Read(b)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestWriteDeadLine() {
	s.C1.SetWriteDeadLine(s.Clock.Now().Add(-time.Second))

	b := make([]byte, 1)
	n, err := s.C1.Write(b)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestAddr() {
	local1, remote1 := s.C1.LocalAddr(), s.C1.RemoteAddr()
	local2, remote2 := s.C2.LocalAddr(), s.C2.RemoteAddr()

	s.Equal(local1, remote2)
	s.Equal(local2, remote1)
}
