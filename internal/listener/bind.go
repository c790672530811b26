// Package listener binds the TCP/UDP sockets a sub-instance serves on
// and hands their descriptors down to worker children
// across re-exec, the same FD-handoff idiom the retrieved graceful-restart
// examples use (Ankit-Kulkarni-go-experiments/graceful_restarts/SocketHandoff):
// bind in the parent, dup the fd into the child's ExtraFiles, reconstruct
// with net.FileListener/net.FilePacketConn on the other side.
//
// Raw socket/bind/listen calls (rather than plain net.Listen) are used so
// the configured backlog and SO_REUSEPORT are both under our control,
// matching internal/bpf/loader.go's style of reaching for
// golang.org/x/sys/unix directly instead of hiding behind a higher-level
// wrapper.
package listener

import (
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// BindTCP binds a TCP listening socket at ip:port with the given backlog,
// retrying on any failure (EADDRINUSE included) up to retries times with a
// one-second pause between attempts.
func BindTCP(ip string, port, backlog, retries int) (*net.TCPListener, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		ln, err := bindTCPOnce(ip, port, backlog)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if attempt < retries {
			time.Sleep(time.Second)
		}
	}
	return nil, fmt.Errorf("listener: bind tcp %s:%d failed after %d retries: %w", ip, port, retries, lastErr)
}

func bindTCPOnce(ip string, port, backlog int) (*net.TCPListener, error) {
	fd, sa, err := socketAndAddr(ip, port, unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp-listener-%s:%d", ip, port))
	ln, err := net.FileListener(f)
	_ = f.Close() // net.FileListener dup'd the fd; close our copy.
	if err != nil {
		return nil, fmt.Errorf("net.FileListener: %w", err)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	return tl, nil
}

// BindUDP binds a UDP socket at ip:port. When reusePort is true, SO_REUSEPORT
// is set so multiple worker processes can each bind the identical address
// and let the kernel load-balance datagrams between them. Without it, a
// UDP sub-instance is clamped to a single worker upstream.
func BindUDP(ip string, port int, reusePort bool) (*net.UDPConn, error) {
	fd, sa, err := socketAndAddr(ip, port, unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if reusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt SO_REUSEPORT: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("udp-socket-%s:%d", ip, port))
	pc, err := net.FilePacketConn(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("net.FilePacketConn: %w", err)
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("unexpected packet conn type %T", pc)
	}
	return uc, nil
}

func socketAndAddr(ip string, port int, sockType int) (int, unix.Sockaddr, error) {
	addr := net.ParseIP(ip)
	if addr == nil && ip != "" {
		return -1, nil, fmt.Errorf("invalid ip %q", ip)
	}
	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}
	var ip4 [4]byte
	if addr != nil {
		if v4 := addr.To4(); v4 != nil {
			copy(ip4[:], v4)
		}
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip4}
	return fd, sa, nil
}
