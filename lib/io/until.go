package iolib

import (
	"bytes"
	"errors"
	"io"
)

const defaultReadSize = 4096

// UntilReader is a reader that can also read up to a delimiter.
// Bytes read past the delimiter stay buffered for the next call.
type UntilReader struct {
	r io.Reader

	buf  *bytes.Buffer
	temp []byte
}

func NewUntilReader(r io.Reader) *UntilReader {
	return &UntilReader{
		r:    r,
		buf:  bytes.NewBuffer(nil),
		temp: make([]byte, defaultReadSize),
	}
}

func (ur *UntilReader) Read(p []byte) (n int, err error) {
	if ur.buf.Len() > 0 {
		return ur.buf.Read(p)
	}

	return ur.r.Read(p)
}

// Buffered returns the number of bytes read ahead of the caller.
func (ur *UntilReader) Buffered() int { return ur.buf.Len() }

var (
	ErrZeroLenDelim  = errors.New("delim has zero length")
	ErrLimitExceeded = errors.New("delim not found within limit")
)

// ReadUntil reads until delim, which is included in the output.
// If the underlying reader fails first, every byte read so far is returned with the error.
func (ur *UntilReader) ReadUntil(delim []byte) ([]byte, error) {
	return ur.ReadUntilLimit(delim, 0)
}

// ReadUntilLimit is [UntilReader.ReadUntil] returning at most limit bytes.
// When delim does not end within the first limit bytes, up to limit bytes
// are returned with [ErrLimitExceeded] and the rest stays buffered.
// At most limit plus one read's worth of bytes is ever buffered.
// Zero means no limit.
func (ur *UntilReader) ReadUntilLimit(delim []byte, limit uint) ([]byte, error) {
	if len(delim) == 0 {
		return nil, ErrZeroLenDelim
	}
	if limit > 0 && limit < uint(len(delim)) {
		limit = uint(len(delim))
	}

	scanned := 0
	var readErr error
	for {
		buffered := ur.buf.Bytes()

		// delim may straddle the boundary of the previous scan.
		from := max(0, scanned-len(delim)+1)
		idx := bytes.Index(buffered[from:], delim)
		if idx >= 0 {
			end := from + idx + len(delim)
			if limit == 0 || uint(end) <= limit {
				out := bytes.Clone(buffered[:end])
				ur.buf.Next(end)
				return out, nil
			}
		}

		if limit > 0 && uint(len(buffered)) >= limit {
			cut := int(limit)
			// Never split delim across two pieces.
			for k := len(delim) - 1; k > 0; k-- {
				if bytes.HasSuffix(buffered[:cut], delim[:k]) {
					cut -= k
					break
				}
			}
			out := bytes.Clone(buffered[:cut])
			ur.buf.Next(cut)
			return out, ErrLimitExceeded
		}
		scanned = len(buffered)

		if readErr != nil {
			out := bytes.Clone(buffered)
			ur.buf.Reset()
			return out, readErr
		}

		n, err := ur.r.Read(ur.temp)
		ur.buf.Write(ur.temp[:n])
		readErr = err
	}
}
