// Package echo is brimd's simplest built-in handler set: it echoes
// whatever it receives back to the caller, across all three sub-instance
// kinds. Useful for config smoke-testing and as a worked example for
// anyone writing their own factory.
package echo

import (
	"io"
	"net"

	"github.com/brimd/brimd/internal/factory"
)

func init() {
	factory.RegisterWSGI("brimd.handlers.echo.WSGI", func() factory.WSGIHandler { return &WSGI{} })
	factory.RegisterTCP("brimd.handlers.echo.TCP", func() factory.TCPHandler { return &TCP{} })
	factory.RegisterUDP("brimd.handlers.echo.UDP", func() factory.UDPHandler { return &UDP{} })
}

// WSGI reads the request body and writes it back verbatim with a 200. It
// never calls next: requests that reach it are always handled here.
type WSGI struct{}

func (h *WSGI) Handle(ctx *factory.RequestContext, w factory.ResponseWriter, r factory.Request, _ factory.WSGIHandler) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(400)
		_, _ = w.Write([]byte("error reading body\n"))
		return
	}
	ctx.AddLogToken("echo")
	ctx.Stats.Incr("echo_bytes_count")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(200)
	_, _ = w.Write(body)
}

// TCP reads from the connection and writes each chunk straight back until
// the peer closes its side, then closes the connection.
type TCP struct{}

func (h *TCP) HandleConn(instance string, stats factory.StatsWriter, conn factory.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
			stats.Incr("echo_bytes_count")
		}
		if err != nil {
			return
		}
	}
}

// UDP replies to the sender with the exact datagram it received.
type UDP struct{}

func (h *UDP) HandleDatagram(instance string, stats factory.StatsWriter, sock factory.PacketSock, data []byte, peer net.Addr) {
	if _, err := sock.WriteTo(data, peer); err == nil {
		stats.Incr("echo_bytes_count")
	}
}

var _ factory.StatsDeclarer = (*WSGI)(nil)

// StatsConf declares the extra per-instance counters TCP and UDP echo
// handlers increment; WSGI's variant carries it too so all three report
// the same optional stat under one name regardless of which sub-instance
// kind a deployment actually uses.
func (h *WSGI) StatsConf(name string, conf map[string]string) ([]factory.StatDecl, error) {
	return []factory.StatDecl{{Name: "echo_bytes_count", Kind: "sum"}}, nil
}

func (h *TCP) StatsConf(name string, conf map[string]string) ([]factory.StatDecl, error) {
	return []factory.StatDecl{{Name: "echo_bytes_count", Kind: "sum"}}, nil
}

func (h *UDP) StatsConf(name string, conf map[string]string) ([]factory.StatDecl, error) {
	return []factory.StatDecl{{Name: "echo_bytes_count", Kind: "sum"}}, nil
}
