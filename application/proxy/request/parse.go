package request

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	iolib "caching-proxy/lib/io"

	"github.com/pkg/errors"
)

type ParseOptions struct {
	// MaxLineLength bounds the request line and every header line. Zero means no limit.
	MaxLineLength uint
}

var (
	// ErrNoRequest means the client closed the connection without sending anything.
	ErrNoRequest            = errors.New("no request received")
	ErrMalformedRequestLine = errors.New("request line is malformed")
	ErrRequestLineTooLong   = errors.New("request line length exceeds limit")
	ErrHeaderLineTooLong    = errors.New("header line length exceeds limit")
)

// Parse reads one request from lr and normalizes it for forwarding:
//   - the method is upper-cased;
//   - scheme, host and port are lower-cased, the path keeps its case;
//   - port defaults to 80 and path to "/";
//   - the version is replaced by [Version];
//   - User-Agent, Connection and Proxy-Connection are replaced by fixed values;
//   - Host is added when the client did not send one.
func Parse(lr *iolib.LineReader, opts ParseOptions) (*Request, error) {
	line, err := lr.ReadLineLimit(opts.MaxLineLength)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrNoRequest
		case errors.Is(err, iolib.ErrLineTooLong):
			return nil, ErrRequestLineTooLong
		}
		return nil, errors.Wrap(err, "reading request line")
	}

	req := &Request{Version: Version}
	if err := parseRequestLine(line, req); err != nil {
		return nil, err
	}

	if err := parseHeaders(lr, opts, req); err != nil {
		return nil, errors.Wrap(err, "parsing headers")
	}

	return req, nil
}

func parseRequestLine(line []byte, req *Request) error {
	// Version is ignored; it is always downgraded.
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return errors.Wrapf(ErrMalformedRequestLine, "%q", bytes.TrimRight(line, "\r\n"))
	}

	req.Method = strings.ToUpper(fields[0])
	req.Hostname, req.Port, req.Path = SplitURI(fields[1])

	return nil
}

// SplitURI extracts host, port and path from an absolute or scheme-less URI.
//
// A colon separates the port only if it comes before the first slash with
// at least one character in between. Otherwise the port is [DefaultPort],
// and a dangling colon is dropped from the host.
func SplitURI(uri string) (host, port, path string) {
	rest := uri
	if _, after, found := strings.Cut(rest, "://"); found {
		rest = after
	}

	authority, tail, hasSlash := strings.Cut(rest, "/")

	host, port = authority, DefaultPort
	if colon := strings.IndexByte(authority, ':'); colon >= 0 {
		host = authority[:colon]
		if colon+1 < len(authority) {
			port = authority[colon+1:]
		}
	}

	path = DefaultPath
	if hasSlash {
		path += tail
	}

	return strings.ToLower(host), strings.ToLower(port), path
}

func parseHeaders(lr *iolib.LineReader, opts ParseOptions, req *Request) error {
	headers := bytes.NewBuffer(nil)
	headers.WriteString(UserAgentHeader)
	headers.WriteString(ConnectionHeader)
	headers.WriteString(ProxyConnectionHeader)

	hostSeen := false
	for {
		line, err := lr.ReadLineLimit(opts.MaxLineLength)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return io.ErrUnexpectedEOF
			case errors.Is(err, iolib.ErrLineTooLong):
				return ErrHeaderLineTooLong
			}
			return err
		}

		if bytes.Equal(line, iolib.CRLF) {
			break
		}

		lower := strings.ToLower(string(line))
		if strings.Contains(lower, "host:") {
			hostSeen = true
		}
		if strings.HasPrefix(lower, "content-length:") {
			_, value, _ := strings.Cut(lower, ":")
			if n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 0); err == nil {
				req.ContentLength = uint(n)
			}
		}

		// "connection:" also catches "proxy-connection:".
		if strings.Contains(lower, "user-agent:") || strings.Contains(lower, "connection:") {
			continue
		}

		headers.Write(line)
	}

	if !hostSeen {
		headers.WriteString("Host: " + req.Hostname + "\r\n")
	}
	headers.Write(iolib.CRLF)

	req.Headers = headers.Bytes()

	return nil
}
