// Package request parses client requests into the form the proxy forwards
// to origin servers, and serializes them back onto the wire.
package request

import (
	"bytes"
	"strconv"
)

const (
	DefaultPort = "80"
	DefaultPath = "/"

	// Version is sent to every origin, whatever the client asked for.
	Version = "HTTP/1.0"

	UserAgentHeader       = "User-Agent: Mozilla/5.0 (X11; Linux x86_64; rv:10.0.3) Gecko/20120305 Firefox/10.0.3\r\n"
	ConnectionHeader      = "Connection: close\r\n"
	ProxyConnectionHeader = "Proxy-Connection: close\r\n"
)

const MethodGet = "GET"

// Request is a parsed client request. It is read-only once parsed.
type Request struct {
	Method   string
	Hostname string
	Port     string
	Path     string // always starts with "/".
	Version  string

	// Headers is the normalized header block, ending with an empty line.
	Headers []byte

	// ContentLength is the body length the client announced, 0 if none.
	ContentLength uint
}

// IsGet reports whether the response to r may be cached.
func (r *Request) IsGet() bool { return r.Method == MethodGet }

// CacheKey identifies the resource r refers to.
func (r *Request) CacheKey() string {
	return CacheKey(r.Hostname, r.Port, r.Path)
}

// CacheKey formats "<hostname>:<port><path>".
func CacheKey(hostname, port, path string) string {
	return hostname + ":" + port + path
}

// Build serializes r into an origin-bound request line and header block.
func (r *Request) Build() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(r.Method)+len(r.Path)+len(r.Version)+4+len(r.Headers)))
	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.WriteString(r.Path)
	buf.WriteByte(' ')
	buf.WriteString(r.Version)
	buf.WriteString("\r\n")
	buf.Write(r.Headers)
	return buf.Bytes()
}

func (r *Request) String() string {
	return r.Method + " " + r.Hostname + ":" + r.Port + r.Path + " (" + strconv.Itoa(len(r.Headers)) + " header bytes)"
}
