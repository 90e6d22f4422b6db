package iolib

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"caching-proxy/transport"

	"github.com/stretchr/testify/suite"
)

type LineReaderTestSuite struct {
	suite.Suite
}

func TestLineReaderTestSuite(t *testing.T) {
	suite.Run(t, new(LineReaderTestSuite))
}

func (s *LineReaderTestSuite) TestReadLine() {
	lr := NewLineReader(strings.NewReader("GET / HTTP/1.0\r\nHost: a\r\n\r\n"))

	for _, expected := range []string{"GET / HTTP/1.0\r\n", "Host: a\r\n", "\r\n"} {
		line, err := lr.ReadLine()
		s.Require().NoError(err)
		s.Equal(expected, string(line))
	}

	line, err := lr.ReadLine()
	s.ErrorIs(err, io.EOF)
	s.Nil(line)
}

func (s *LineReaderTestSuite) TestReadLinePartialAtEOF() {
	lr := NewLineReader(strings.NewReader("abc\r\nno-terminator"))

	line, err := lr.ReadLine()
	s.Require().NoError(err)
	s.Equal("abc\r\n", string(line))

	line, err = lr.ReadLine()
	s.Require().NoError(err)
	s.Equal("no-terminator", string(line))

	line, err = lr.ReadLine()
	s.ErrorIs(err, io.EOF)
	s.Empty(line)
}

func (s *LineReaderTestSuite) TestReadLineLimit() {
	lr := NewLineReader(strings.NewReader("0123456789\r\n"))

	line, err := lr.ReadLineLimit(5)
	s.ErrorIs(err, ErrLineTooLong)
	s.Nil(line)
}

func (s *LineReaderTestSuite) TestReadLineLimitNeverBuffersWholeLine() {
	src := &countingReader{}
	lr := NewLineReader(src)

	_, err := lr.ReadLineLimit(16)
	s.ErrorIs(err, ErrLineTooLong)
	s.LessOrEqual(src.n, 16+defaultReadSize)
}

func (s *LineReaderTestSuite) TestReadLinePart() {
	lr := NewLineReader(strings.NewReader("HTTP/1.0 200 OK\r\n\r\nbody"))

	type part struct {
		b        string
		complete bool
	}
	var parts []part
	for {
		b, complete, err := lr.ReadLinePart(6)
		if err != nil {
			s.Require().ErrorIs(err, io.EOF)
			break
		}
		parts = append(parts, part{string(b), complete})
	}

	s.Equal([]part{
		{"HTTP/1", false},
		{".0 200", false},
		{" OK\r\n", true},
		{"\r\n", true},
		{"body", true},
	}, parts)
}

func (s *LineReaderTestSuite) TestConnResetIsNotEOF() {
	lr := NewLineReader(&errReader{data: []byte("partial"), err: transport.ErrConnReset})

	b, err := lr.ReadLine()
	s.Equal("partial", string(b))
	s.ErrorIs(err, transport.ErrConnReset)
	s.NotErrorIs(err, io.EOF)

	lr = NewLineReader(&errReader{err: transport.ErrConnReset})
	_, err = lr.ReadChunk(8)
	s.ErrorIs(err, transport.ErrConnReset)
	s.NotErrorIs(err, io.EOF)

	_, err = io.ReadAll(NewLineReader(&errReader{data: []byte("x"), err: transport.ErrConnReset}))
	s.ErrorIs(err, transport.ErrConnReset)
}

func (s *LineReaderTestSuite) TestConnClosedIsEOF() {
	lr := NewLineReader(&errReader{data: []byte("x\r\n"), err: transport.ErrConnClosed})

	line, err := lr.ReadLine()
	s.Require().NoError(err)
	s.Equal("x\r\n", string(line))

	_, err = lr.ReadLine()
	s.ErrorIs(err, io.EOF)
	s.NotErrorIs(err, transport.ErrConnClosed)
}

func (s *LineReaderTestSuite) TestIOErrorIsNotEOF() {
	lr := NewLineReader(&errReader{err: transport.ErrDeadLineExceeded})

	_, err := lr.ReadLine()
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.NotErrorIs(err, io.EOF)

	_, err = lr.ReadChunk(10)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
}

func (s *LineReaderTestSuite) TestReadChunkAfterLines() {
	body := bytes.Repeat([]byte{0x00, '\n', 0xff}, 10)
	input := append([]byte("HTTP/1.0 200 OK\r\n\r\n"), body...)
	lr := NewLineReader(bytes.NewReader(input))

	line, err := lr.ReadLine()
	s.Require().NoError(err)
	s.Equal("HTTP/1.0 200 OK\r\n", string(line))

	line, err = lr.ReadLine()
	s.Require().NoError(err)
	s.Equal("\r\n", string(line))

	var got []byte
	for {
		chunk, err := lr.ReadChunk(7)
		got = append(got, chunk...)
		if err != nil {
			s.ErrorIs(err, io.EOF)
			break
		}
		s.LessOrEqual(len(chunk), 7)
	}
	s.Equal(body, got)
}

func (s *LineReaderTestSuite) TestReadChunkZero() {
	lr := NewLineReader(strings.NewReader("abc"))

	chunk, err := lr.ReadChunk(0)
	s.NoError(err)
	s.Nil(chunk)
}

type errReader struct {
	data []byte
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	if len(r.data) > 0 {
		n := copy(p, r.data)
		r.data = r.data[n:]
		return n, nil
	}
	return 0, r.err
}
