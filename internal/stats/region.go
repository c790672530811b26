package stats

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Region is the mmap'd MAP_SHARED backing store for the whole stats
// surface. The parent creates it with CreateRegion before forking any
// worker; each worker receives the backing fd as an inherited descriptor
// (passed via exec.Cmd.ExtraFiles, landing at a fixed fd number in the
// child — see internal/supervisor/worker.go) and calls OpenRegion on it.
type Region struct {
	fd   int
	data []byte
}

// CreateRegion allocates a new anonymous, shareable memory region of size
// bytes backed by a memfd. The returned Region owns fd; call Fd to obtain
// the descriptor to pass down to children, and Close when the parent is
// done (children keep the mapping alive independently once forked).
func CreateRegion(size int) (*Region, error) {
	if size <= 0 {
		size = slotSize // never mmap a zero-length region
	}
	fd, err := unix.MemfdCreate("brimd-stats", 0)
	if err != nil {
		return nil, fmt.Errorf("stats: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stats: ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stats: mmap: %w", err)
	}
	return &Region{fd: fd, data: data}, nil
}

// OpenRegion maps an already-created region from an inherited descriptor.
// Used by worker and daemon children at startup.
func OpenRegion(fd int, size int) (*Region, error) {
	if size <= 0 {
		size = slotSize
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("stats: mmap inherited fd %d: %w", fd, err)
	}
	return &Region{fd: fd, data: data}, nil
}

// Fd returns the underlying file descriptor, to be placed in a child's
// ExtraFiles.
func (r *Region) Fd() int { return r.fd }

// Close unmaps the region. It does not close the fd — the caller (parent
// or child) owns the fd's lifecycle independently of the mapping.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
