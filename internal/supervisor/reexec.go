package supervisor

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/codec"
	"github.com/brimd/brimd/internal/config"
	"github.com/brimd/brimd/internal/dispatch"
	"github.com/brimd/brimd/internal/factory"
	"github.com/brimd/brimd/internal/listener"
	"github.com/brimd/brimd/internal/logging"
	"github.com/brimd/brimd/internal/stats"
)

// IsChild reports whether the current process was re-exec'd into child
// (worker/daemon) mode, the same BRIMD_REEXEC marker RunChild consumes.
func IsChild() bool {
	return os.Getenv(envReexec) == "1"
}

// RunChild is the entire lifetime of a re-exec'd worker or daemon
// process: parse the frozen config again (deterministically reproducing
// the same LaunchPlan and stats Layout the parent computed), reopen the
// inherited stats region and (if any) listener, and drive the matching
// dispatch loop until the process is told to stop. It returns only on
// fatal startup failure or clean shutdown; callers exit(1) on a non-nil
// error.
func RunChild(resolver factory.Resolver) error {
	configPath := os.Getenv(envConfigPath)
	scope := os.Getenv(envScope)
	kind := os.Getenv(envKind)
	instanceName := os.Getenv(envInstance)
	regionSize, _ := strconv.Atoi(os.Getenv(envStatsSize))

	doc, err := config.ParseFile(configPath)
	if err != nil {
		return fmt.Errorf("supervisor: child reparse config: %w", err)
	}
	plan, err := config.BuildPlan(doc, resolver)
	if err != nil {
		return fmt.Errorf("supervisor: child rebuild plan: %w", err)
	}

	log, err := logging.Build(plan.LogName, plan.LogLevel, plan.LogFacility)
	if err != nil {
		return fmt.Errorf("supervisor: child logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	region, err := stats.OpenRegion(statsFD, regionSize)
	if err != nil {
		return fmt.Errorf("supervisor: child open stats region: %w", err)
	}
	defer region.Close()
	surface := stats.NewSurface(stats.BuildLayout(plan), region)
	writer, err := surface.WriterFor(scope)
	if err != nil {
		return fmt.Errorf("supervisor: child find stats bucket %q: %w", scope, err)
	}
	writer.Set("start_time", uint64(time.Now().Unix()))

	switch kind {
	case "wsgi":
		return runWsgiChild(plan, instanceName, writer, log)
	case "tcp":
		return runTcpChild(plan, instanceName, writer, log)
	case "udp":
		return runUdpChild(plan, instanceName, writer, log)
	case "daemon":
		return runDaemonChild(plan, instanceName, writer, log)
	default:
		return fmt.Errorf("supervisor: child has unknown kind %q", kind)
	}
}

func findWsgi(plan *config.LaunchPlan, name string) (*config.WsgiListener, error) {
	for _, inst := range plan.SubInstances {
		if w, ok := inst.(*config.WsgiListener); ok && w.InstanceName() == name {
			return w, nil
		}
	}
	return nil, fmt.Errorf("supervisor: no wsgi sub-instance named %q", name)
}

func findTcp(plan *config.LaunchPlan, name string) (*config.TcpListener, error) {
	for _, inst := range plan.SubInstances {
		if t, ok := inst.(*config.TcpListener); ok && t.InstanceName() == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("supervisor: no tcp sub-instance named %q", name)
}

func findUdp(plan *config.LaunchPlan, name string) (*config.UdpListener, error) {
	for _, inst := range plan.SubInstances {
		if u, ok := inst.(*config.UdpListener); ok && u.InstanceName() == name {
			return u, nil
		}
	}
	return nil, fmt.Errorf("supervisor: no udp sub-instance named %q", name)
}

func findDaemon(plan *config.LaunchPlan, name string) (*config.DaemonSpec, error) {
	for i := range plan.Daemons {
		if plan.Daemons[i].Name == name {
			return &plan.Daemons[i], nil
		}
	}
	return nil, fmt.Errorf("supervisor: no daemon named %q", name)
}

func runWsgiChild(plan *config.LaunchPlan, name string, writer factory.StatsWriter, log *zap.Logger) error {
	w, err := findWsgi(plan, name)
	if err != nil {
		return err
	}
	ln, err := listener.FromFD(listenerFD, "wsgi-listener")
	if err != nil {
		return err
	}
	links := make([]factory.WSGIHandler, len(w.Chain))
	for i, h := range w.Chain {
		links[i] = h.Handler
	}
	encode, decode, err := codec.Resolve(plan.JSONDumps, plan.JSONLoads)
	if err != nil {
		return err
	}
	chain := dispatch.NewChain(name, links, w.TrackedStatusCodes, log, encode, decode)

	srv := &http.Server{
		Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			chain.ServeHTTP(rw, r, writer, uuid.New().String())
		}),
		ReadTimeout:  time.Duration(w.ClientTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(w.ClientTimeoutSeconds) * time.Second,
	}

	go waitAndShutdownHTTP(srv, log)

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("supervisor: wsgi child %s: %w", name, err)
	}
	return nil
}

func runTcpChild(plan *config.LaunchPlan, name string, writer factory.StatsWriter, log *zap.Logger) error {
	t, err := findTcp(plan, name)
	if err != nil {
		return err
	}
	ln, err := listener.FromFD(listenerFD, "tcp-listener")
	if err != nil {
		return err
	}
	go waitAndCloseOnTerm(ln, log)
	dispatch.ServeTCP(name, ln, t.Handler, writer, log)
	return nil
}

func runUdpChild(plan *config.LaunchPlan, name string, writer factory.StatsWriter, log *zap.Logger) error {
	u, err := findUdp(plan, name)
	if err != nil {
		return err
	}
	conn, err := listener.UDPFromFD(listenerFD, "udp-socket")
	if err != nil {
		return err
	}
	go waitAndCloseOnTerm(conn, log)
	dispatch.ServeUDP(name, conn, u.Handler, writer, log)
	return nil
}

func runDaemonChild(plan *config.LaunchPlan, name string, writer factory.StatsWriter, log *zap.Logger) error {
	d, err := findDaemon(plan, name)
	if err != nil {
		return err
	}
	dispatch.RunDaemon(name, d.Handler, writer, log)
	return nil
}
