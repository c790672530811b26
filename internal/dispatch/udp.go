package dispatch

import (
	"net"

	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/factory"
)

// udpSock adapts *net.UDPConn to factory.PacketSock, the narrow reply-only
// surface a UDPHandler is given. A handler must never close the shared
// socket.
type udpSock struct {
	conn *net.UDPConn
}

func (s udpSock) WriteTo(b []byte, addr net.Addr) (int, error) {
	return s.conn.WriteTo(b, addr)
}

// ServeUDP runs the receive loop for one UDP sub-instance worker: each
// datagram is dispatched to the configured UDPHandler on its own goroutine,
// since handlers may block on a reply. The loop exits when conn is closed.
func ServeUDP(instance string, conn *net.UDPConn, handler factory.UDPHandler, stats factory.StatsWriter, log *zap.Logger) {
	sock := udpSock{conn: conn}
	buf := make([]byte, 65535)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			log.Warn("udp read error", zap.String("instance", instance), zap.Error(err))
			continue
		}
		stats.Incr("request_count")
		data := make([]byte, n)
		copy(data, buf[:n])
		go func(d []byte, p *net.UDPAddr) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("udp handler panic", zap.String("instance", instance), zap.Any("panic", r))
				}
			}()
			handler.HandleDatagram(instance, stats, sock, d, p)
		}(data, peer)
	}
}
