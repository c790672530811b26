package listener

import (
	"fmt"
	"net"
	"os"
)

// ExtraFile dup's a bound listener's file descriptor so it can be placed
// in an exec.Cmd.ExtraFiles slice for a worker child. The caller must
// Close the returned *os.File once the child has started (the dup keeps
// the socket alive independently).
func ExtraFile(ln net.Listener) (*os.File, error) {
	type fileProvider interface {
		File() (*os.File, error)
	}
	fp, ok := ln.(fileProvider)
	if !ok {
		return nil, fmt.Errorf("listener: %T does not support File()", ln)
	}
	return fp.File()
}

// ExtraFileUDP dup's a bound UDP socket's file descriptor for the same
// purpose as ExtraFile, for the PacketConn side.
func ExtraFileUDP(pc net.PacketConn) (*os.File, error) {
	type fileProvider interface {
		File() (*os.File, error)
	}
	fp, ok := pc.(fileProvider)
	if !ok {
		return nil, fmt.Errorf("listener: %T does not support File()", pc)
	}
	return fp.File()
}

// FromFD reconstructs a TCP listener from an inherited descriptor number:
// a worker child receiving its listening socket from the parent across
// re-exec, fd numbers fixed by internal/supervisor/worker.go.
func FromFD(fd uintptr, name string) (*net.TCPListener, error) {
	f := os.NewFile(fd, name)
	if f == nil {
		return nil, fmt.Errorf("listener: invalid fd %d", fd)
	}
	ln, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("listener: net.FileListener fd=%d: %w", fd, err)
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("listener: fd %d is not a TCP listener (got %T)", fd, ln)
	}
	return tl, nil
}

// UDPFromFD reconstructs a UDP socket from an inherited descriptor number.
func UDPFromFD(fd uintptr, name string) (*net.UDPConn, error) {
	f := os.NewFile(fd, name)
	if f == nil {
		return nil, fmt.Errorf("listener: invalid fd %d", fd)
	}
	pc, err := net.FilePacketConn(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("listener: net.FilePacketConn fd=%d: %w", fd, err)
	}
	uc, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("listener: fd %d is not a UDP conn (got %T)", fd, pc)
	}
	return uc, nil
}
