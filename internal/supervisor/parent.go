package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/brimerr"
	"github.com/brimd/brimd/internal/config"
	"github.com/brimd/brimd/internal/factory"
	"github.com/brimd/brimd/internal/listener"
	"github.com/brimd/brimd/internal/logging"
	"github.com/brimd/brimd/internal/observability"
	"github.com/brimd/brimd/internal/pidfile"
	"github.com/brimd/brimd/internal/privilege"
	"github.com/brimd/brimd/internal/stats"
)

// Parent owns the whole supervised fleet for one brimd process tree: every
// bound listener, the shared stats region, and the monitor goroutine that
// keeps each configured worker/daemon slot alive. It is built once by the
// "start"/"no-daemon" command path and then handed to RunSignalLoop.
type Parent struct {
	execPath   string
	configPath string
	plan       *config.LaunchPlan
	resolver   factory.Resolver

	region  *stats.Region
	layout  *stats.Layout
	surface *stats.Surface

	log     *zap.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	slots  map[string]*Slot
	cmds   map[string]*exec.Cmd
	guards map[string]*CrashGuard
	bound  map[string]ioClosableListener // scope/instance -> kept-open bound socket

	ctl *CtlSocket

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// ioClosableListener is any bound socket the parent keeps open between
// handing dup'd descriptors down to successive generations of workers.
type ioClosableListener interface {
	Close() error
}

// NewParent runs the full startup sequence (steps 1-8 of a launch): parse
// config, build the plan, bind every listener, size and create the stats
// region, write the pidfile, drop privileges, fork every worker and
// daemon, and start the control socket. Step 9 (blocking on signals) is
// the caller's job via RunSignalLoop.
func NewParent(configPath, execPath string, resolver factory.Resolver) (*Parent, error) {
	doc, err := config.ParseFile(configPath)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, "brim", err)
	}
	plan, err := config.BuildPlan(doc, resolver)
	if err != nil {
		return nil, err
	}

	log, err := buildLogger(plan)
	if err != nil {
		return nil, err
	}

	p := &Parent{
		execPath:   execPath,
		configPath: configPath,
		plan:       plan,
		resolver:   resolver,
		log:        log,
		metrics:    observability.NewMetrics(),
		slots:      make(map[string]*Slot),
		cmds:       make(map[string]*exec.Cmd),
		guards:     make(map[string]*CrashGuard),
		bound:      make(map[string]ioClosableListener),
	}

	if err := p.bindAll(); err != nil {
		return nil, err
	}

	log, err := buildLogger(plan)
	if err != nil {
		return nil, err
	}
	p.log = log

	p.layout = stats.BuildLayout(plan)
	p.region, err = stats.CreateRegion(p.layout.Size())
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindBind, "brim", err)
	}
	p.surface = stats.NewSurface(p.layout, p.region)

	if err := pidfile.Write(plan.PidFile, os.Getpid()); err != nil {
		return nil, err
	}

	if plan.User != "" || plan.Group != "" || plan.Umask != "" {
		if err := privilege.Drop(plan.User, plan.Group, plan.Umask); err != nil {
			return nil, err
		}
		if err := privilege.CheckNotRoot(plan.User); err != nil {
			return nil, brimerr.New(brimerr.KindPrivilege, "brim", "%s", err)
		}
	}

	p.forkAll()

	ctl, err := NewCtlSocket(plan.CtlSocket, p, log)
	if err != nil {
		return nil, err
	}
	p.ctl = ctl
	go func() {
		if err := ctl.ListenAndServe(); err != nil {
			log.Error("control socket stopped", zap.Error(err))
		}
	}()

	go func() {
		if err := p.metrics.ServeMetrics(context.Background(), plan.MetricsAddr); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	return p, nil
}

// bindAll binds every TCP/UDP sub-instance's socket(s) ahead of any fork.
// A shared sub-instance gets one bound socket fanned out to every worker;
// a reuseport UDP sub-instance binds one socket per worker up front
// instead, each with SO_REUSEPORT so the kernel load-balances between them.
func (p *Parent) bindAll() error {
	for _, inst := range p.plan.SubInstances {
		ip, port := config.IP(inst), config.Port(inst)
		backlog, retry := config.Backlog(inst), config.ListenRetry(inst)

		switch v := inst.(type) {
		case *config.WsgiListener, *config.TcpListener:
			ln, err := listener.BindTCP(ip, port, backlog, retry)
			if err != nil {
				p.metrics.BindFailuresTotal.WithLabelValues(inst.InstanceName()).Inc()
				return brimerr.Wrap(brimerr.KindBind, inst.InstanceName(), err)
			}
			p.bound[inst.InstanceName()] = ln
		case *config.UdpListener:
			workers := v.Workers()
			if workers <= 0 {
				workers = 1
			}
			if v.ReusePort {
				for i := 0; i < workers; i++ {
					conn, err := listener.BindUDP(ip, port, true)
					if err != nil {
						p.metrics.BindFailuresTotal.WithLabelValues(inst.InstanceName()).Inc()
						return brimerr.Wrap(brimerr.KindBind, inst.InstanceName(), err)
					}
					p.bound[inst.Scope(i)] = conn
				}
			} else {
				conn, err := listener.BindUDP(ip, port, false)
				if err != nil {
					p.metrics.BindFailuresTotal.WithLabelValues(inst.InstanceName()).Inc()
					return brimerr.Wrap(brimerr.KindBind, inst.InstanceName(), err)
				}
				p.bound[inst.InstanceName()] = conn
			}
		}
	}
	return nil
}

// forkAll spawns one monitor goroutine per configured worker slot and one
// per daemon.
func (p *Parent) forkAll() {
	for _, inst := range p.plan.SubInstances {
		workers := inst.Workers()
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			p.startMonitor(inst, i)
		}
	}
	for i := range p.plan.Daemons {
		p.startDaemonMonitor(&p.plan.Daemons[i])
	}
}

func (p *Parent) listenerFileFor(inst config.SubInstance, idx int) (*os.File, string, error) {
	var key string
	if u, ok := inst.(*config.UdpListener); ok && u.ReusePort {
		key = inst.Scope(idx)
	} else {
		key = inst.InstanceName()
	}
	bound, ok := p.bound[key]
	if !ok {
		return nil, "", fmt.Errorf("supervisor: no bound socket for %s", key)
	}
	switch inst.InstanceKind() {
	case "udp":
		f, err := listener.ExtraFileUDP(bound.(net.PacketConn))
		return f, "udp", err
	default:
		f, err := listener.ExtraFile(bound.(net.Listener))
		return f, "tcp", err
	}
}

func (p *Parent) startMonitor(inst config.SubInstance, idx int) {
	scope := inst.Scope(idx)
	label := fmt.Sprintf("%s:%s#%d", inst.InstanceKind(), inst.InstanceName(), idx)
	slot := NewSlot(scope, label)

	p.mu.Lock()
	p.slots[scope] = slot
	p.guards[scope] = NewCrashGuard()
	p.mu.Unlock()

	p.wg.Add(1)
	go p.monitorLoop(slot, func() (ChildSpec, error) {
		f, listenKind, err := p.listenerFileFor(inst, idx)
		if err != nil {
			return ChildSpec{}, err
		}
		return ChildSpec{
			ExecPath:     p.execPath,
			ConfigPath:   p.configPath,
			Scope:        scope,
			Kind:         inst.InstanceKind(),
			Instance:     inst.InstanceName(),
			WorkerIdx:    idx,
			Region:       p.region,
			RegionSize:   p.layout.Size(),
			ListenerFile: f,
			ListenerKind: listenKind,
		}, nil
	})
}

func (p *Parent) startDaemonMonitor(d *config.DaemonSpec) {
	scope := d.Scope()
	label := "daemon:" + d.Name
	slot := NewSlot(scope, label)

	p.mu.Lock()
	p.slots[scope] = slot
	p.guards[scope] = NewCrashGuard()
	p.mu.Unlock()

	p.wg.Add(1)
	go p.monitorLoop(slot, func() (ChildSpec, error) {
		return ChildSpec{
			ExecPath:   p.execPath,
			ConfigPath: p.configPath,
			Scope:      scope,
			Kind:       "daemon",
			Instance:   d.Name,
			Region:     p.region,
			RegionSize: p.layout.Size(),
		}, nil
	})
}

// monitorLoop keeps one slot alive for the life of the parent: spawn,
// wait, respawn, backing off or giving up on a crash loop.
func (p *Parent) monitorLoop(slot *Slot, buildSpec func() (ChildSpec, error)) {
	defer p.wg.Done()
	for {
		spec, err := buildSpec()
		if err != nil {
			p.log.Error("build child spec failed", zap.String("slot", slot.Label), zap.Error(err))
			slot.Transition(StateStopped)
			return
		}
		cmd, err := Spawn(spec)
		if spec.ListenerFile != nil {
			_ = spec.ListenerFile.Close() // the child holds its own copy once started
		}
		if err != nil {
			p.log.Error("spawn failed", zap.String("slot", slot.Label), zap.Error(err))
			slot.Transition(StateStopped)
			return
		}
		slot.Transition(StateRunning)
		slot.SetPID(cmd.Process.Pid)
		p.mu.Lock()
		p.cmds[slot.Scope] = cmd
		p.mu.Unlock()
		p.metrics.WorkersRunning.WithLabelValues(spec.Instance).Inc()

		start := time.Now()
		waitErr := cmd.Wait()
		uptime := time.Since(start)
		p.metrics.WorkersRunning.WithLabelValues(spec.Instance).Dec()

		if p.shuttingDown.Load() {
			slot.Transition(StateStopped)
			return
		}

		exits := slot.RecordExit()
		reason := "exit"
		if waitErr != nil {
			reason = "crash"
			p.metrics.WorkerCrashesTotal.WithLabelValues(spec.Instance).Inc()
		}
		p.metrics.WorkerRestartsTotal.WithLabelValues(spec.Instance, reason).Inc()
		if spec.Kind == "daemon" {
			p.metrics.DaemonRestartsTotal.WithLabelValues(spec.Instance).Inc()
		}
		p.log.Warn("worker exited",
			zap.String("slot", slot.Label),
			zap.Int("respawns", exits),
			zap.Duration("uptime", uptime),
			zap.Error(waitErr),
		)

		guard := p.guardFor(slot.Scope)
		delay, gerr := guard.Observe(uptime)
		if gerr != nil {
			p.log.Error("giving up on slot, crash loop detected", zap.String("slot", slot.Label), zap.Error(gerr))
			slot.Transition(StateStopped)
			return
		}
		slot.Transition(StateStarting)
		time.Sleep(delay)
	}
}

func (p *Parent) guardFor(scope string) *CrashGuard {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guards[scope]
}

func buildLogger(plan *config.LaunchPlan) (*zap.Logger, error) {
	return logging.Build(plan.LogName, plan.LogLevel, plan.LogFacility)
}

// Reload restarts every running worker/daemon against the same frozen
// plan: the control-socket/SIGHUP path, a rolling restart rather than a
// config re-read, since changing listener layout or stat declarations
// mid-flight would invalidate the shared stats region every other
// worker still has mapped.
func (p *Parent) Reload() error {
	p.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(p.cmds))
	for _, c := range p.cmds {
		cmds = append(cmds, c)
	}
	p.mu.Unlock()
	for _, c := range cmds {
		_ = c.Process.Signal(syscall.SIGTERM)
	}
	p.metrics.ReloadsTotal.Inc()
	return nil
}

// Shutdown signals every child to stop, waits up to the configured grace
// period, then SIGKILLs any stragglers, and tears down the control
// socket and pidfile. The metrics server is not stopped here; it runs
// until the parent process exits.
func (p *Parent) Shutdown() {
	p.shuttingDown.Store(true)

	p.mu.Lock()
	cmds := make([]*exec.Cmd, 0, len(p.cmds))
	for _, c := range p.cmds {
		cmds = append(cmds, c)
	}
	p.mu.Unlock()
	for _, c := range cmds {
		_ = c.Process.Signal(syscall.SIGTERM)
	}

	grace := time.Duration(p.plan.ShutdownGrace) * time.Second
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		p.mu.Lock()
		for _, c := range p.cmds {
			_ = c.Process.Kill()
		}
		p.mu.Unlock()
		<-done
	}

	if p.ctl != nil {
		p.ctl.Close()
	}
	_ = pidfile.Remove(p.plan.PidFile)
	p.log.Info("shutdown complete")
}

// Snapshot returns the current aggregated stats surface, the data behind
// the `status` verb and the control socket's "status" command.
func (p *Parent) Snapshot() []stats.InstanceSnapshot {
	return p.surface.Aggregate(p.plan)
}
