package dispatch

import (
	"net"

	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/factory"
)

// ServeTCP runs the accept loop for one TCP sub-instance worker: each
// accepted connection is handed whole to the configured TCPHandler, which
// owns its lifecycle including closing it. The loop exits when ln is
// closed — the worker closes its listener when it receives SIGTERM/SIGINT.
func ServeTCP(instance string, ln net.Listener, handler factory.TCPHandler, stats factory.StatsWriter, log *zap.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosed(err) {
				return
			}
			log.Warn("tcp accept error", zap.String("instance", instance), zap.Error(err))
			continue
		}
		stats.Incr("request_count")
		go func(c net.Conn) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("tcp handler panic", zap.String("instance", instance), zap.Any("panic", r))
					c.Close()
				}
			}()
			handler.HandleConn(instance, stats, c)
		}(conn)
	}
}

// isClosed reports whether err is the expected Accept failure after the
// listener was closed for shutdown — net.ErrClosed on recent Go, or the
// equivalent "use of closed network connection" text on older stdlib paths
// that still wrap it as a plain string.
func isClosed(err error) bool {
	if err == nil {
		return false
	}
	if err == net.ErrClosed {
		return true
	}
	const marker = "use of closed network connection"
	s := err.Error()
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
