// Package pidfile manages brimd's pid file: write
// it after the parent has a stable pid, check it for a live conflicting
// process on stale-file recovery, and remove it on clean shutdown.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/brimd/brimd/internal/brimerr"
)

// Write creates path containing pid, failing if a live process already
// holds it. A stale pid file left by a crashed run is silently overwritten;
// a live one is a fatal PidfileError.
func Write(path string, pid int) error {
	if existing, err := Read(path); err == nil {
		if IsAlive(existing) {
			return brimerr.New(brimerr.KindPidfile, "brim", "pid file %s already held by live process %d", path, existing)
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read parses the pid recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: %s does not contain a pid: %w", path, err)
	}
	return pid, nil
}

// IsAlive reports whether pid names a currently-running process, using
// signal 0 (no-op existence probe, the standard kill(2) idiom).
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil
}

// Remove deletes the pid file, ignoring a not-exist error (idempotent on
// the shutdown path regardless of how far startup got).
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
