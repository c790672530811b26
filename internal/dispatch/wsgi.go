// Package dispatch drives the three sub-instance request loops: the WSGI
// handler chain over net/http, a TCP accept loop, and a UDP receive loop.
// It also carries the built-in 404 terminator and the per-request status
// accounting and access-log line.
package dispatch

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/factory"
)

// responseRecorder wraps http.ResponseWriter to track the first status
// code actually written to the wire (only the first WriteHeader call
// counts, matching real net/http semantics) and the byte count written,
// for the access log.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK // implicit 200 on first Write with no WriteHeader
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

func (r *responseRecorder) Status() int {
	return r.status
}

var _ factory.ResponseWriter = (*responseRecorder)(nil)

// Chain is a frozen, ordered WSGI handler chain for one sub-instance,
// ending in the built-in 404 terminator. Status accounting for every
// request, whichever link answered it, is done by accountAndLog.
type Chain struct {
	name    string
	links   []factory.WSGIHandler
	tracked map[int]bool
	log     *zap.Logger
	encode  func(v any) ([]byte, error)
	decode  func(data []byte, v any) error
}

// NewChain builds a Chain from a handler specification list, the tracked
// status-code set, the logger it writes access-log and error lines
// through, and the configured JSON codec pair handed to every
// RequestContext.
func NewChain(instanceName string, links []factory.WSGIHandler, tracked map[int]bool, log *zap.Logger, encode func(v any) ([]byte, error), decode func(data []byte, v any) error) *Chain {
	return &Chain{name: instanceName, links: links, tracked: tracked, log: log, encode: encode, decode: decode}
}

// ServeHTTP drives the chain for one request. Its extra stats and
// requestID parameters mean it is not itself an http.Handler; the wsgi
// child wraps it in an http.HandlerFunc. stats is the worker's own Bucket
// for this sub-instance.
func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request, stats factory.StatsWriter, requestID string) {
	start := time.Now()
	rec := &responseRecorder{ResponseWriter: w}

	ctx := &factory.RequestContext{
		Start:     start,
		RequestID: requestID,
		Stats:     stats,
		Encode:    c.encode,
		Decode:    c.decode,
	}

	defer func() {
		if rerr := recover(); rerr != nil {
			if rec.status == 0 {
				http.Error(rec, "internal server error", http.StatusInternalServerError)
			}
			c.log.Error("handler panic",
				zap.String("instance", c.name),
				zap.String("request_id", requestID),
				zap.Any("panic", rerr),
			)
		}
		c.accountAndLog(rec, r, ctx, stats, start)
	}()

	c.invoke(0, ctx, rec, r)
}

func (c *Chain) invoke(i int, ctx *factory.RequestContext, w factory.ResponseWriter, r factory.Request) {
	if i >= len(c.links) {
		Terminator{}.Handle(ctx, w, r, nil)
		return
	}
	next := chainNext{c: c, i: i + 1, ctx: ctx, w: w, r: r}
	c.links[i].Handle(ctx, w, r, next)
}

// chainNext is the factory.WSGIHandler passed to a link as "next": it
// resumes the chain at the following index regardless of what the caller
// passes as its own arguments, since a link is only allowed to forward
// the request it actually received.
type chainNext struct {
	c   *Chain
	i   int
	ctx *factory.RequestContext
	w   factory.ResponseWriter
	r   factory.Request
}

func (n chainNext) Handle(ctx *factory.RequestContext, w factory.ResponseWriter, r factory.Request, _ factory.WSGIHandler) {
	n.c.invoke(n.i, ctx, w, r)
}

// accountAndLog increments the default status counters and emits the
// access log line at response completion.
func (c *Chain) accountAndLog(rec *responseRecorder, r *http.Request, ctx *factory.RequestContext, stats factory.StatsWriter, start time.Time) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	stats.Incr("request_count")
	switch status / 100 {
	case 2:
		stats.Incr("status_2xx_count")
	case 3:
		stats.Incr("status_3xx_count")
	case 4:
		stats.Incr("status_4xx_count")
	case 5:
		stats.Incr("status_5xx_count")
	}
	if c.tracked[status] {
		stats.Incr(fmt.Sprintf("status_%d_count", status))
	}

	extra := strings.ReplaceAll(strings.Join(ctx.ExtraTokens(), " "), " ", "%20")

	c.log.Info("request",
		zap.String("instance", c.name),
		zap.String("request_id", ctx.RequestID),
		zap.String("client", r.RemoteAddr),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Int64("bytes_out", rec.written),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.String("extra", extra),
	)
}

// Terminator is the built-in final WSGI link: a plain 404 for any request
// no upstream handler claimed.
type Terminator struct{}

func (Terminator) Handle(ctx *factory.RequestContext, w factory.ResponseWriter, r factory.Request, _ factory.WSGIHandler) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(strconv.Itoa(http.StatusNotFound) + " not found\n"))
}
