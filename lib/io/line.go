package iolib

import (
	"io"

	"caching-proxy/transport"

	"github.com/pkg/errors"
)

var CRLF = []byte("\r\n")

var ErrLineTooLong = errors.New("line length exceeds limit")

// LineReader reads CRLF-terminated lines or raw chunks from a connection.
// Lines and chunks share one buffer, so they can be mixed freely.
//
// End-of-stream is always reported as a bare [io.EOF] with no bytes,
// and a closed [transport.Conn] counts as end-of-stream.
// Every other error is an I/O error.
type LineReader struct {
	ur *UntilReader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{ur: NewUntilReader(r)}
}

// ReadLine returns the next line including its CRLF.
// A final line without CRLF is returned as is; the call after it gets [io.EOF].
func (lr *LineReader) ReadLine() ([]byte, error) {
	return lr.ReadLineLimit(0)
}

// ReadLineLimit is [LineReader.ReadLine] failing with [ErrLineTooLong]
// when the line is longer than limit, without buffering more than that.
// Zero means no limit.
func (lr *LineReader) ReadLineLimit(limit uint) ([]byte, error) {
	b, complete, err := lr.ReadLinePart(limit)
	if err != nil {
		return b, err
	}
	if !complete {
		return nil, ErrLineTooLong
	}
	return b, nil
}

// ReadLinePart reads a line of at most max bytes. A longer line comes in
// pieces of max bytes with complete false; the piece that ends the line,
// and a final line without CRLF, has complete true. Zero means no limit.
func (lr *LineReader) ReadLinePart(max uint) (b []byte, complete bool, err error) {
	b, err = lr.ur.ReadUntilLimit(CRLF, max)
	switch {
	case err == nil:
		return b, true, nil
	case errors.Is(err, ErrLimitExceeded):
		return b, false, nil
	case !isEOF(err):
		return b, false, errors.Wrap(err, "reading line")
	case len(b) == 0:
		return nil, false, io.EOF
	}
	return b, true, nil
}

// Read drains buffered bytes first, then reads the underlying reader.
// It makes the rest of the stream usable as a plain [io.Reader], e.g. a request body.
func (lr *LineReader) Read(p []byte) (int, error) {
	n, err := lr.ur.Read(p)
	if err != nil && isEOF(err) {
		err = io.EOF
	}
	return n, err
}

// ReadChunk returns up to max bytes, buffered bytes first.
// Like [io.Reader], bytes may come together with an I/O error.
func (lr *LineReader) ReadChunk(max uint) ([]byte, error) {
	if max == 0 {
		return nil, nil
	}

	p := make([]byte, max)
	n, err := lr.ur.Read(p)
	switch {
	case err == nil:
		return p[:n], nil
	case isEOF(err):
		if n > 0 {
			return p[:n], nil
		}
		return nil, io.EOF
	default:
		return p[:n], errors.Wrap(err, "reading chunk")
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnClosed)
}
