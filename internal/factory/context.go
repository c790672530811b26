package factory

import (
	"net"
	"net/http"
	"time"
)

// StatsWriter is the write side of the stats surface, the
// handle injected into every handler/daemon invocation. Undeclared names
// are silently ignored on Set/Incr and read back as 0 from Get — this is
// what lets handlers stay forward-compatible with a plan that did not
// reserve a slot for them.
type StatsWriter interface {
	Get(name string) uint64
	Set(name string, v uint64)
	Incr(name string)
}

// Request is the standard *http.Request a WSGI handler receives as its
// request environment; net/http is the embedded HTTP server, not a
// reverse proxy in front of a separate protocol implementation.
type Request = *http.Request

// ResponseWriter extends http.ResponseWriter with the one extra bit the
// built-in terminator and access log need: which status was actually
// written to the wire. Only the first WriteHeader call counts, matching
// real net/http semantics.
type ResponseWriter interface {
	http.ResponseWriter
	// Status returns the status code written so far, or 0 if the
	// handler has not yet written a header (an implicit 200 will be
	// sent on the first Write).
	Status() int
}

// Conn is the accepted connection a TCPHandler owns end to end.
type Conn = net.Conn

// PacketSock is the shared UDP socket a UDPHandler replies through. It
// must not be closed by the handler.
type PacketSock interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// RequestContext carries the per-request injected entries: start
// timestamp, request id, extra log tokens, the stats write handle, and
// the codec pair. It is an explicit value threaded through the handler
// chain rather than ambient per-request global state.
type RequestContext struct {
	Start     time.Time
	RequestID string
	Stats     StatsWriter
	Encode    func(v any) ([]byte, error)
	Decode    func(data []byte, v any) error

	extra []string
}

// AddLogToken appends a token to the mutable, append-only extra-log-token
// list. At response completion the tokens are joined with spaces and every
// space, inside a token or between tokens, is written as "%20" in the
// access log line.
func (c *RequestContext) AddLogToken(tok string) {
	c.extra = append(c.extra, tok)
}

// ExtraTokens returns the accumulated extra-log tokens.
func (c *RequestContext) ExtraTokens() []string {
	return c.extra
}
