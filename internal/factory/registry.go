// Package factory is the dotted-path handler/daemon registry, modeled on
// contrib/scorer.go's plugin registry (RegisterScorer/GetScorer keyed by a
// stable name, populated from init() functions in plugin packages) — the
// same init()-registration shape used here, just with four capability
// interfaces instead of one, and a dotted "pkg.Symbol"-style name instead
// of a scorer name.
package factory

import (
	"fmt"
	"net"
	"sync"
)

// WSGIHandler is one link in a per-request handler chain. Links are
// chained via the next argument; the last link is the built-in 404
// terminator (internal/dispatch.Terminator).
type WSGIHandler interface {
	// Handle serves one HTTP request. Implementations that do not match
	// the request must call next.Handle to forward down the chain.
	Handle(ctx *RequestContext, w ResponseWriter, r Request, next WSGIHandler)
}

// TCPHandler owns one accepted connection's lifecycle end to end,
// including closing the socket.
type TCPHandler interface {
	HandleConn(instance string, stats StatsWriter, conn Conn)
}

// UDPHandler handles one datagram. It must not close the shared socket.
type UDPHandler interface {
	HandleDatagram(instance string, stats StatsWriter, sock PacketSock, data []byte, peer net.Addr)
}

// Daemon runs once per process for the lifetime of the worker, returning
// when it observes cooperative shutdown.
type Daemon interface {
	Run(instance string, stats StatsWriter)
}

// ConfParser is the optional parse_conf hook: run in the
// parent during plan freeze; an error here is fatal to startup.
type ConfParser interface {
	ParseConf(name string, conf map[string]string) error
}

// StatsDeclarer is the optional stats_conf hook: run in the
// parent during plan freeze, fixing a handler/daemon's declared stats into
// the LaunchPlan before any fork.
type StatsDeclarer interface {
	StatsConf(name string, conf map[string]string) ([]StatDecl, error)
}

// StatDecl is a (name, kind) pair as returned by StatsConf. Kind mirrors
// config.AggKind's string values ("sum", "min", "max", "worker-only",
// "daemon-only") but is declared independently here to keep this leaf
// package free of a dependency on internal/config.
type StatDecl struct {
	Name string
	Kind string
}

// RequestContext, ResponseWriter, Request, Conn, PacketSock, and
// StatsWriter are declared in context.go: the shapes a handler is invoked
// with, kept in this package so handler implementations (internal/handlers/*)
// depend only on factory, not on the dispatch loop that drives them.

// Resolver resolves a dotted factory path to a constructed handler/daemon
// of the requested capability, delegated to an injected collaborator;
// Registry below is the in-process default implementation.
type Resolver interface {
	ResolveWSGI(call string) (WSGIHandler, error)
	ResolveTCP(call string) (TCPHandler, error)
	ResolveUDP(call string) (UDPHandler, error)
	ResolveDaemon(call string) (Daemon, error)
}

// Registry is the default in-process Resolver: factories register
// themselves under a dotted name from an init() function, and BuildPlan
// looks them up by that name exactly as it appears in a handler's
// "call = " option.
type Registry struct {
	mu     sync.RWMutex
	wsgi   map[string]func() WSGIHandler
	tcp    map[string]func() TCPHandler
	udp    map[string]func() UDPHandler
	daemon map[string]func() Daemon
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		wsgi:   make(map[string]func() WSGIHandler),
		tcp:    make(map[string]func() TCPHandler),
		udp:    make(map[string]func() UDPHandler),
		daemon: make(map[string]func() Daemon),
	}
}

// RegisterWSGI registers a WSGI handler constructor under a dotted name.
// Panics if name is already registered, matching contrib.RegisterScorer's
// fail-fast-at-init-time contract.
func (r *Registry) RegisterWSGI(name string, ctor func() WSGIHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.wsgi[name]; exists {
		panic(fmt.Sprintf("factory: wsgi handler %q already registered", name))
	}
	r.wsgi[name] = ctor
}

// RegisterTCP registers a TCP handler constructor under a dotted name.
func (r *Registry) RegisterTCP(name string, ctor func() TCPHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tcp[name]; exists {
		panic(fmt.Sprintf("factory: tcp handler %q already registered", name))
	}
	r.tcp[name] = ctor
}

// RegisterUDP registers a UDP handler constructor under a dotted name.
func (r *Registry) RegisterUDP(name string, ctor func() UDPHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.udp[name]; exists {
		panic(fmt.Sprintf("factory: udp handler %q already registered", name))
	}
	r.udp[name] = ctor
}

// RegisterDaemon registers a daemon constructor under a dotted name.
func (r *Registry) RegisterDaemon(name string, ctor func() Daemon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.daemon[name]; exists {
		panic(fmt.Sprintf("factory: daemon %q already registered", name))
	}
	r.daemon[name] = ctor
}

func (r *Registry) ResolveWSGI(call string) (WSGIHandler, error) {
	r.mu.RLock()
	ctor, ok := r.wsgi[call]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: no wsgi handler registered as %q (available: %v)", call, r.names(r.wsgi))
	}
	return ctor(), nil
}

func (r *Registry) ResolveTCP(call string) (TCPHandler, error) {
	r.mu.RLock()
	ctor, ok := r.tcp[call]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: no tcp handler registered as %q (available: %v)", call, r.names(r.tcp))
	}
	return ctor(), nil
}

func (r *Registry) ResolveUDP(call string) (UDPHandler, error) {
	r.mu.RLock()
	ctor, ok := r.udp[call]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: no udp handler registered as %q (available: %v)", call, r.names(r.udp))
	}
	return ctor(), nil
}

func (r *Registry) ResolveDaemon(call string) (Daemon, error) {
	r.mu.RLock()
	ctor, ok := r.daemon[call]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: no daemon registered as %q (available: %v)", call, r.names(r.daemon))
	}
	return ctor(), nil
}

// Default is the process-wide registry that built-in and contributed
// handler packages register themselves into from an init() function,
// the same shape as contrib.RegisterScorer's package-level registry.
// cmd/brimd passes Default to config.BuildPlan as the Resolver.
var Default = NewRegistry()

// RegisterWSGI registers a WSGI handler constructor on Default.
func RegisterWSGI(name string, ctor func() WSGIHandler) { Default.RegisterWSGI(name, ctor) }

// RegisterTCP registers a TCP handler constructor on Default.
func RegisterTCP(name string, ctor func() TCPHandler) { Default.RegisterTCP(name, ctor) }

// RegisterUDP registers a UDP handler constructor on Default.
func RegisterUDP(name string, ctor func() UDPHandler) { Default.RegisterUDP(name, ctor) }

// RegisterDaemon registers a daemon constructor on Default.
func RegisterDaemon(name string, ctor func() Daemon) { Default.RegisterDaemon(name, ctor) }

func (r *Registry) names(m any) []string {
	var out []string
	switch t := m.(type) {
	case map[string]func() WSGIHandler:
		for k := range t {
			out = append(out, k)
		}
	case map[string]func() TCPHandler:
		for k := range t {
			out = append(out, k)
		}
	case map[string]func() UDPHandler:
		for k := range t {
			out = append(out, k)
		}
	case map[string]func() Daemon:
		for k := range t {
			out = append(out, k)
		}
	}
	return out
}
