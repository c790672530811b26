package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/brimd/brimd/internal/stats"
)

// Fixed fd numbers a re-exec'd child finds its inherited descriptors at.
// ExtraFiles always places the stats region first, so its slot never moves
// whether or not a given sub-instance also hands down a listener.
const (
	statsFD    = 3
	listenerFD = 4
)

// Environment variables naming a re-exec'd child's role, read by reexec.go.
const (
	envReexec     = "BRIMD_REEXEC"
	envConfigPath = "BRIMD_CONFIG"
	envScope      = "BRIMD_SCOPE"
	envKind       = "BRIMD_KIND" // wsgi | tcp | udp | daemon
	envInstance   = "BRIMD_INSTANCE"
	envWorkerIdx  = "BRIMD_WORKER_INDEX"
	envStatsSize  = "BRIMD_STATS_SIZE"
	envListenKind = "BRIMD_LISTEN_KIND" // tcp | udp, only set when a listener fd follows
)

// ChildSpec is everything worker.Spawn needs to re-exec one child.
type ChildSpec struct {
	ExecPath   string
	ConfigPath string
	Scope      string
	Kind       string // wsgi | tcp | udp | daemon
	Instance   string
	WorkerIdx  int

	Region     *stats.Region
	RegionSize int

	// ListenerFile, when non-nil, is a dup'd fd for this slot's bound
	// socket (absent for daemons, which own no listener).
	ListenerFile *os.File
	ListenerKind string // "tcp" or "udp"
}

// Spawn re-execs the current binary in child mode for one worker/daemon
// slot, handing down the stats region and (if any) the bound listener as
// inherited descriptors — the same bind-in-parent, dup-into-ExtraFiles,
// reconstruct-in-child idiom as any fd-passing graceful-restart launcher.
func Spawn(spec ChildSpec) (*exec.Cmd, error) {
	statsFile := os.NewFile(uintptr(spec.Region.Fd()), "brimd-stats")
	if statsFile == nil {
		return nil, fmt.Errorf("supervisor: invalid stats fd %d", spec.Region.Fd())
	}

	cmd := exec.Command(spec.ExecPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{statsFile}

	env := append(os.Environ(),
		envReexec+"=1",
		envConfigPath+"="+spec.ConfigPath,
		envScope+"="+spec.Scope,
		envKind+"="+spec.Kind,
		envInstance+"="+spec.Instance,
		envWorkerIdx+"="+strconv.Itoa(spec.WorkerIdx),
		envStatsSize+"="+strconv.Itoa(spec.RegionSize),
	)
	if spec.ListenerFile != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, spec.ListenerFile)
		env = append(env, envListenKind+"="+spec.ListenerKind)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: spawn %s worker %d: %w", spec.Instance, spec.WorkerIdx, err)
	}
	return cmd, nil
}
