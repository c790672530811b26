// Package supervisor is the parent process: it binds listeners, creates
// the stats region, writes the pidfile, drops privileges, forks a worker
// per configured slot, and answers the operator control socket and
// signals for the rest of the parent's life. state.go carries the per-slot
// lifecycle state machine every worker/daemon child is tracked under,
// mirroring escalation.ProcessState's mutex-guarded current/enteredAt shape
// one level up the stack: a process lifecycle state machine instead of a
// per-PID isolation one.
package supervisor

import (
	"sync"
	"time"
)

// WorkerState is the lifecycle state of one supervised child process.
type WorkerState uint8

const (
	StateStarting WorkerState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Slot is one worker-index (or daemon) the supervisor keeps alive:
// its scope tag, current pid, lifecycle state, and restart bookkeeping.
type Slot struct {
	mu sync.Mutex

	Scope   string // stats bucket scope tag (config.SubInstance.Scope / DaemonSpec.Scope)
	Label   string // human label for logs: "wsgi:wsgi#alt#3" or "daemon:heartbeat"
	current WorkerState
	enteredAt time.Time
	pid     int
	exits   int // lifetime respawn count, logged on each exit
}

// NewSlot creates a Slot in StateStarting.
func NewSlot(scope, label string) *Slot {
	return &Slot{Scope: scope, Label: label, current: StateStarting, enteredAt: time.Now()}
}

// Transition moves the slot to a new state, recording the time of entry.
func (s *Slot) Transition(next WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
	s.enteredAt = time.Now()
}

// SetPID records the OS pid of the currently running child.
func (s *Slot) SetPID(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
}

// PID returns the currently tracked child pid, or 0 if none is running.
func (s *Slot) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// State returns the current lifecycle state.
func (s *Slot) State() WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// TimeInState reports how long the slot has held its current state.
func (s *Slot) TimeInState() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.enteredAt)
}

// RecordExit bumps the lifetime respawn counter and returns the new total.
func (s *Slot) RecordExit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits++
	return s.exits
}
