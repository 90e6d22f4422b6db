package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"

	"caching-proxy/application/proxy/request"
	iolib "caching-proxy/lib/io"
	"caching-proxy/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var (
	// Replies written to the client when the proxy cannot serve a request.
	BadRequestReply = []byte("Bad Request\n")
	IOErrorReply    = []byte("IO error\n")
)

var ErrOriginUnreachable = errors.New("origin unreachable")

type conn struct {
	con transport.Conn
	lr  *iolib.LineReader

	dialer transport.ConnDialer
	cache  Cache
	clock  clock.Clock

	logger *slog.Logger

	opts Options
}

func (c *conn) start(ctx context.Context) {
	started := c.clock.Now()

	// Server shutdown aborts blocking reads and writes.
	stop := context.AfterFunc(ctx, func() { c.con.Close() })

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while serving connection", "panic", r)
		}

		c.logger.Debug("closing connection", "duration", c.clock.Since(started))
		if !stop() {
			return
		}
		if err := c.con.Close(); err != nil {
			c.logger.Error("error when closing connection", "error", err)
		}
	}()

	err := c.serve(ctx)

	switch {
	case err == nil:
		// no-op.
	case errors.Is(err, request.ErrNoRequest):
		c.logger.Debug("connection closed before request")
	case isBadRequest(err):
		c.logger.Info("bad request", "error", err)
	case errors.Is(err, ErrOriginUnreachable):
		c.logger.Warn("could not reach origin", "error", err)
	case errors.Is(err, context.Canceled):
		c.logger.Debug("connection aborted")
	case errors.Is(err, transport.ErrDeadLineExceeded):
		c.logger.Info("timeout exceeded", "error", err)
	case errors.Is(err, transport.ErrConnReset):
		c.logger.Warn("connection reset", "error", err)
	case errors.Is(err, transport.ErrConnClosed):
		c.logger.Error("unexpected connection closure", "error", err)
	default:
		c.logger.Error("unknown error occured", "error", err)
	}
}

func (c *conn) serve(ctx context.Context) error {
	c.setReadDeadLine(c.con)

	req, err := request.Parse(c.lr, c.opts.Parse)
	if err != nil {
		if isBadRequest(err) {
			c.reply(BadRequestReply)
		}
		return err
	}

	c.logger = c.logger.With("method", req.Method, "key", req.CacheKey())

	if req.IsGet() {
		if content, ok := c.cache.Lookup(req.CacheKey()); ok {
			c.logger.Debug("serving from cache", "size", len(content))
			_, err := c.write(c.con, content)
			return errors.Wrap(err, "writing cached response")
		}
	}

	return c.forward(ctx, req)
}

func isBadRequest(err error) bool {
	return errors.Is(err, request.ErrMalformedRequestLine) ||
		errors.Is(err, request.ErrRequestLineTooLong) ||
		errors.Is(err, request.ErrHeaderLineTooLong)
}

func (c *conn) forward(ctx context.Context, req *request.Request) error {
	addr := transport.HostPort{Host: req.Hostname, Port: req.Port}

	origin, err := c.dial(ctx, addr)
	if err != nil {
		c.reply(BadRequestReply)
		return errors.Wrapf(ErrOriginUnreachable, "%s: %s", addr, err.Error())
	}

	stop := context.AfterFunc(ctx, func() { origin.Close() })
	defer func() {
		stop()
		origin.Close()
	}()

	if _, err := c.write(origin, req.Build()); err != nil {
		return errors.Wrap(err, "writing request to origin")
	}

	if req.ContentLength > 0 {
		if _, err := io.Copy(origin, iolib.LimitReader(c.lr, req.ContentLength)); err != nil {
			return errors.Wrap(err, "relaying request body")
		}
	}

	return c.relay(ctx, origin, req)
}

func (c *conn) dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	if timeout := c.opts.Timeout.DialTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = c.clock.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return c.dialer.Dial(ctx, addr)
}

// relay streams the origin's response to the client verbatim:
// lines until the end of headers, then raw chunks until the origin closes.
// Header lines longer than ChunkSize are relayed in pieces.
// A GET response that stays within the object size limit is cached
// once the origin ends it cleanly.
func (c *conn) relay(ctx context.Context, origin transport.Conn, req *request.Request) error {
	lr := iolib.NewLineReader(origin)
	acc := newAccumulator(req.IsGet(), c.cache.MaxObjectSize())

	// A piece only ends the headers if it is a whole empty line.
	for first, lineStart := true, true; ; first = false {
		c.setReadDeadLine(origin)

		line, complete, err := lr.ReadLinePart(c.opts.ChunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.reply(IOErrorReply)
			return errors.Wrap(err, "reading response headers")
		}

		if first && complete {
			c.logger.Debug("origin responded", "status", statusCode(line))
		}

		if _, err := c.write(c.con, line); err != nil {
			return errors.Wrap(err, "relaying response headers")
		}
		acc.add(line)

		if lineStart && complete && bytes.Equal(line, iolib.CRLF) {
			break
		}
		lineStart = complete
	}

	for {
		c.setReadDeadLine(origin)

		chunk, err := lr.ReadChunk(c.opts.ChunkSize)
		if len(chunk) > 0 {
			if _, werr := c.write(c.con, chunk); werr != nil {
				return errors.Wrap(werr, "relaying response body")
			}
			acc.add(chunk)
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "relaying response body")
		}
	}

	// An aborted origin looks like a clean end of stream.
	if err := ctx.Err(); err != nil {
		return err
	}

	if content, ok := acc.content(); ok {
		if c.cache.Insert(req.CacheKey(), content) {
			c.logger.Debug("cached response", "size", len(content))
		}
	}

	return nil
}

// reply writes a short notice to the client. The connection is closing
// right after, so a failed write is only logged.
func (c *conn) reply(msg []byte) {
	if _, err := c.write(c.con, msg); err != nil {
		c.logger.Debug("could not reply to client", "error", err)
	}
}

func (c *conn) write(w transport.Conn, b []byte) (uint, error) {
	if timeout := c.opts.Timeout.WriteTimeout; timeout > 0 {
		w.SetWriteDeadLine(c.clock.Now().Add(timeout))
	}
	return iolib.WriteFull(w, b)
}

func (c *conn) setReadDeadLine(r transport.Conn) {
	if timeout := c.opts.Timeout.ReadTimeout; timeout > 0 {
		r.SetReadDeadLine(c.clock.Now().Add(timeout))
	}
}

// statusCode picks the code out of a status line, empty if there is none.
func statusCode(line []byte) string {
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// accumulator collects a response while it can still be cached.
type accumulator struct {
	buf   *bytes.Buffer
	limit uint
	total uint
}

func newAccumulator(cacheable bool, limit uint) *accumulator {
	acc := &accumulator{limit: limit}
	if cacheable {
		acc.buf = bytes.NewBuffer(nil)
	}
	return acc
}

func (a *accumulator) add(b []byte) {
	a.total += uint(len(b))
	if a.buf == nil {
		return
	}
	if a.total > a.limit {
		a.buf = nil
		return
	}
	a.buf.Write(b)
}

func (a *accumulator) content() ([]byte, bool) {
	if a.buf == nil || a.buf.Len() == 0 {
		return nil, false
	}
	return a.buf.Bytes(), true
}
