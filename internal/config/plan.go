// Package config — plan.go
//
// The frozen data model: LaunchPlan, the three Sub-instance
// variants, DaemonSpec, and StatDeclaration. BuildPlan turns a parsed INI
// Doc into a *LaunchPlan, resolving every handler/daemon factory and
// running its parse_conf/stats_conf hooks — the same Defaults()+Validate()
// shape as a YAML-configured service, sourced from INI sections instead.
package config

import (
	"fmt"
	"sort"

	"github.com/brimd/brimd/internal/brimerr"
	"github.com/brimd/brimd/internal/factory"
)

// AggKind is the aggregation kind of a declared stat.
type AggKind string

const (
	AggWorkerOnly AggKind = "worker-only"
	AggDaemonOnly AggKind = "daemon-only"
	AggSum        AggKind = "sum"
	AggMin        AggKind = "min"
	AggMax        AggKind = "max"
)

// StatDeclaration is a (name, kind) pair declared by a factory's
// stats_conf hook, or reserved by the launcher itself.
type StatDeclaration struct {
	Name      string
	Kind      AggKind
	TimeTrait bool // "0 means never set" — only meaningful for AggMin.
}

// HandlerSpec is one link in a WSGI handler chain: a name, the factory
// dotted path, the constructed handler (which keeps whatever its ParseConf
// hook parsed), and its declared stats.
type HandlerSpec struct {
	Name    string
	Call    string
	Handler factory.WSGIHandler
	Stats   []StatDeclaration
}

// SubInstance is the common contract of the three listener variants
//. Kind-specific fields live on the
// concrete WsgiListener/TcpListener/UdpListener structs; this interface
// is what the supervisor and stats aggregator operate against generically.
type SubInstance interface {
	// InstanceName is the section name, including any "#suffix".
	InstanceName() string
	// InstanceKind is "wsgi", "tcp", or "udp".
	InstanceKind() string
	// Workers is the configured worker count. A count of 0 or less is
	// treated as 1: one forked worker; nothing runs in the parent process.
	Workers() int
	// Scope returns the StatBucket scope tag for a given worker index.
	Scope(workerIndex int) string
	// DeclaredStats is the full set of stats reserved and declared for
	// this sub-instance (defaults + factory-declared), fixed at freeze.
	DeclaredStats() []StatDeclaration
}

type baseListener struct {
	name        string
	ip          string
	port        int
	backlog     int
	listenRetry int
	workers     int
	certFile    string
	keyFile     string
	stats       []StatDeclaration
}

func (b *baseListener) InstanceName() string           { return b.name }
func (b *baseListener) Workers() int                   { return b.workers }
func (b *baseListener) DeclaredStats() []StatDeclaration { return b.stats }

// WsgiListener is a [wsgi]/[wsgi#suffix] sub-instance: an HTTP listener
// fronting an ordered handler chain.
type WsgiListener struct {
	baseListener
	Chain                []HandlerSpec
	ClientTimeoutSeconds int
	LogHeaders           bool
	InputChunkSize       int
	TrackedStatusCodes   map[int]bool
}

func (w *WsgiListener) InstanceKind() string    { return "wsgi" }
func (w *WsgiListener) Scope(i int) string      { return fmt.Sprintf("wsgi:%s:%d", w.name, i) }

// TcpListener is a [tcp]/[tcp#suffix] sub-instance.
type TcpListener struct {
	baseListener
	Call    string
	Handler factory.TCPHandler
}

func (t *TcpListener) InstanceKind() string { return "tcp" }
func (t *TcpListener) Scope(i int) string   { return fmt.Sprintf("tcp:%s:%d", t.name, i) }

// UdpListener is a [udp]/[udp#suffix] sub-instance.
type UdpListener struct {
	baseListener
	Call       string
	Handler    factory.UDPHandler
	ReusePort  bool
}

func (u *UdpListener) InstanceKind() string { return "udp" }
func (u *UdpListener) Scope(i int) string   { return fmt.Sprintf("udp:%s:%d", u.name, i) }

// DaemonSpec is one entry of the [daemons] group: exactly one process,
// no worker fan-out.
type DaemonSpec struct {
	Name    string
	Call    string
	Handler factory.Daemon
	Stats   []StatDeclaration
}

func (d *DaemonSpec) Scope() string { return fmt.Sprintf("daemon:%s", d.Name) }

// LaunchPlan is the immutable, frozen configuration produced once at startup.
type LaunchPlan struct {
	User  string
	Group string
	Umask string

	PidFile string

	CtlSocket   string
	MetricsAddr string

	LogName     string
	LogLevel    string
	LogFacility string

	JSONDumps string
	JSONLoads string

	TrackedStatusCodes map[int]bool

	ShutdownGrace int // seconds

	SubInstances []SubInstance
	Daemons      []DaemonSpec
}

var defaultTrackedStatusCodes = []int{404, 408, 499, 501}

// DefaultStatusSet returns a fresh copy of the default tracked-status set.
func DefaultStatusSet() map[int]bool {
	m := make(map[int]bool, len(defaultTrackedStatusCodes))
	for _, c := range defaultTrackedStatusCodes {
		m[c] = true
	}
	return m
}

// reservedWorkerStats returns the two stats every sub-instance/daemon
// worker reserves unconditionally.
func reservedWorkerStats() []StatDeclaration {
	return []StatDeclaration{
		{Name: "start_time", Kind: AggMin, TimeTrait: true},
		{Name: "request_count", Kind: AggSum},
	}
}

func reservedWsgiStats(tracked map[int]bool) []StatDeclaration {
	decls := []StatDeclaration{
		{Name: "status_2xx_count", Kind: AggSum},
		{Name: "status_3xx_count", Kind: AggSum},
		{Name: "status_4xx_count", Kind: AggSum},
		{Name: "status_5xx_count", Kind: AggSum},
	}
	codes := make([]int, 0, len(tracked))
	for c := range tracked {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		decls = append(decls, StatDeclaration{Name: fmt.Sprintf("status_%d_count", c), Kind: AggSum})
	}
	return decls
}

// BuildPlan parses doc into a frozen LaunchPlan, resolving every handler
// and daemon factory via resolver and running parse_conf/stats_conf hooks.
// This is startup step 1: any factory error here is fatal to startup.
func BuildPlan(doc *Doc, resolver factory.Resolver) (*LaunchPlan, error) {
	plan := &LaunchPlan{
		User:        doc.GetString("brim", "user", ""),
		Group:       doc.GetString("brim", "group", ""),
		Umask:       doc.GetString("brim", "umask", ""),
		PidFile:     doc.GetString("brim", "pid_file", "/var/run/brimd.pid"),
		CtlSocket:   doc.GetString("brim", "ctl_socket", "/var/run/brimd.ctl.sock"),
		MetricsAddr: doc.GetString("brim", "metrics_addr", "127.0.0.1:9191"),
		LogName:     doc.GetString("brim", "log_name", "brimd"),
		LogLevel:    doc.GetString("brim", "log_level", "info"),
		LogFacility: doc.GetString("brim", "log_facility", "stderr"),
		JSONDumps:   doc.GetString("brim", "json_dumps", "brimd.codec.jsoniter.dumps"),
		JSONLoads:   doc.GetString("brim", "json_loads", "brimd.codec.jsoniter.loads"),
	}
	grace, err := doc.GetInt("brim", "shutdown_grace", 60)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, "brim", err)
	}
	plan.ShutdownGrace = grace

	tracked, err := parseStatusSet(doc)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, "wsgi", err)
	}
	plan.TrackedStatusCodes = tracked

	for _, section := range doc.Sections() {
		fam := family(section)
		switch fam {
		case "wsgi":
			w, err := buildWsgiListener(doc, section, tracked, resolver)
			if err != nil {
				return nil, err
			}
			plan.SubInstances = append(plan.SubInstances, w)
		case "tcp":
			t, err := buildTcpListener(doc, section, resolver)
			if err != nil {
				return nil, err
			}
			plan.SubInstances = append(plan.SubInstances, t)
		case "udp":
			u, err := buildUdpListener(doc, section, resolver)
			if err != nil {
				return nil, err
			}
			plan.SubInstances = append(plan.SubInstances, u)
		}
	}

	if doc.HasSection("daemons") {
		daemons, err := buildDaemons(doc, resolver)
		if err != nil {
			return nil, err
		}
		plan.Daemons = daemons
	}

	return plan, nil
}

func parseStatusSet(doc *Doc) (map[int]bool, error) {
	list := doc.GetList("wsgi", "count_status_codes")
	if len(list) == 0 {
		return DefaultStatusSet(), nil
	}
	out := make(map[int]bool, len(list))
	for _, tok := range list {
		var code int
		if _, err := fmt.Sscanf(tok, "%d", &code); err != nil {
			return nil, fmt.Errorf("count_status_codes: %q is not a status code", tok)
		}
		out[code] = true
	}
	return out, nil
}

func buildBaseListener(doc *Doc, section string, defaultWorkers int) (baseListener, error) {
	backlog, err := doc.GetInt(section, "backlog", 128)
	if err != nil {
		return baseListener{}, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	retry, err := doc.GetInt(section, "listen_retry", 30)
	if err != nil {
		return baseListener{}, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	workers, err := doc.GetInt(section, "workers", defaultWorkers)
	if err != nil {
		return baseListener{}, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	port, err := doc.GetInt(section, "port", 0)
	if err != nil {
		return baseListener{}, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	return baseListener{
		name:        section,
		ip:          doc.GetString(section, "ip", "0.0.0.0"),
		port:        port,
		backlog:     backlog,
		listenRetry: retry,
		workers:     workers,
		certFile:    doc.GetString(section, "certfile", ""),
		keyFile:     doc.GetString(section, "keyfile", ""),
	}, nil
}

func buildWsgiListener(doc *Doc, section string, tracked map[int]bool, resolver factory.Resolver) (*WsgiListener, error) {
	base, err := buildBaseListener(doc, section, 1)
	if err != nil {
		return nil, err
	}
	w := &WsgiListener{baseListener: base, TrackedStatusCodes: tracked}

	timeout, err := doc.GetInt(section, "client_timeout", 60)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	w.ClientTimeoutSeconds = timeout

	logHeaders, err := doc.GetBool(section, "log_headers", false)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	w.LogHeaders = logHeaders

	chunk, err := doc.GetInt(section, "wsgi_input_iter_chunk_size", 4096)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	w.InputChunkSize = chunk

	apps := doc.GetList(section, "apps")
	if len(apps) == 0 {
		return nil, brimerr.New(brimerr.KindConfig, section, "wsgi section %q declares no apps", section)
	}
	for _, appName := range apps {
		call := doc.GetString(appName, "call", "")
		if call == "" {
			return nil, brimerr.New(brimerr.KindConfig, appName, "handler %q has no call=", appName)
		}
		h, err := resolver.ResolveWSGI(call)
		if err != nil {
			return nil, brimerr.Wrap(brimerr.KindFactoryInit, appName, err)
		}
		spec := HandlerSpec{Name: appName, Call: call, Handler: h}
		if parser, ok := h.(factory.ConfParser); ok {
			if err := parser.ParseConf(appName, subSectionView(doc, appName)); err != nil {
				return nil, brimerr.Wrap(brimerr.KindFactoryInit, appName, err)
			}
		}
		if declarer, ok := h.(factory.StatsDeclarer); ok {
			decls, err := declarer.StatsConf(appName, subSectionView(doc, appName))
			if err != nil {
				return nil, brimerr.Wrap(brimerr.KindFactoryInit, appName, err)
			}
			spec.Stats = toStatDecls(decls)
		}
		w.Chain = append(w.Chain, spec)
	}

	w.stats = append(reservedWorkerStats(), reservedWsgiStats(tracked)...)
	for _, h := range w.Chain {
		w.stats = append(w.stats, h.Stats...)
	}
	return w, nil
}

func buildTcpListener(doc *Doc, section string, resolver factory.Resolver) (*TcpListener, error) {
	base, err := buildBaseListener(doc, section, 1)
	if err != nil {
		return nil, err
	}
	call := doc.GetString(section, "call", "")
	if call == "" {
		return nil, brimerr.New(brimerr.KindConfig, section, "tcp section %q has no call=", section)
	}
	h, err := resolver.ResolveTCP(call)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindFactoryInit, section, err)
	}
	t := &TcpListener{baseListener: base, Call: call, Handler: h}
	if err := runConfHooks(doc, section, h, &t.stats); err != nil {
		return nil, err
	}
	t.stats = append(reservedWorkerStats(), t.stats...)
	return t, nil
}

func buildUdpListener(doc *Doc, section string, resolver factory.Resolver) (*UdpListener, error) {
	base, err := buildBaseListener(doc, section, 1)
	if err != nil {
		return nil, err
	}
	reuse, err := doc.GetBool(section, "reuseport", false)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindConfig, section, err)
	}
	if !reuse {
		// Open Question (ii), decided in SPEC_FULL.md §4: UDP is
		// single-worker unless port sharing is explicitly requested.
		base.workers = 1
	}
	call := doc.GetString(section, "call", "")
	if call == "" {
		return nil, brimerr.New(brimerr.KindConfig, section, "udp section %q has no call=", section)
	}
	h, err := resolver.ResolveUDP(call)
	if err != nil {
		return nil, brimerr.Wrap(brimerr.KindFactoryInit, section, err)
	}
	u := &UdpListener{baseListener: base, Call: call, Handler: h, ReusePort: reuse}
	if err := runConfHooks(doc, section, h, &u.stats); err != nil {
		return nil, err
	}
	u.stats = append(reservedWorkerStats(), u.stats...)
	return u, nil
}

func buildDaemons(doc *Doc, resolver factory.Resolver) ([]DaemonSpec, error) {
	names := doc.GetList("daemons", "daemons")
	specs := make([]DaemonSpec, 0, len(names))
	for _, name := range names {
		call := doc.GetString(name, "call", "")
		if call == "" {
			return nil, brimerr.New(brimerr.KindConfig, name, "daemon %q has no call=", name)
		}
		h, err := resolver.ResolveDaemon(call)
		if err != nil {
			return nil, brimerr.Wrap(brimerr.KindFactoryInit, name, err)
		}
		spec := DaemonSpec{Name: name, Call: call, Handler: h}
		if err := runConfHooks(doc, name, h, &spec.Stats); err != nil {
			return nil, err
		}
		spec.Stats = append(reservedWorkerStats(), spec.Stats...)
		specs = append(specs, spec)
	}
	return specs, nil
}

// runConfHooks runs the optional ParseConf/StatsConf hooks on h, if it
// implements them, appending any declared stats to *out.
func runConfHooks(doc *Doc, section string, h any, out *[]StatDeclaration) error {
	if parser, ok := h.(factory.ConfParser); ok {
		if err := parser.ParseConf(section, subSectionView(doc, section)); err != nil {
			return brimerr.Wrap(brimerr.KindFactoryInit, section, err)
		}
	}
	if declarer, ok := h.(factory.StatsDeclarer); ok {
		decls, err := declarer.StatsConf(section, subSectionView(doc, section))
		if err != nil {
			return brimerr.Wrap(brimerr.KindFactoryInit, section, err)
		}
		*out = append(*out, toStatDecls(decls)...)
	}
	return nil
}

func toStatDecls(pairs []factory.StatDecl) []StatDeclaration {
	out := make([]StatDeclaration, 0, len(pairs))
	for _, p := range pairs {
		kind := AggKind(p.Kind)
		out = append(out, StatDeclaration{Name: p.Name, Kind: kind})
	}
	return out
}

// subSectionView exposes a section's own key/value pairs (ignoring family
// fallback) as the plain map[string]string a factory's ParseConf/StatsConf
// hook receives — factories consume "their own" config, not brimd's.
func subSectionView(doc *Doc, section string) map[string]string {
	out := make(map[string]string)
	for _, k := range doc.Keys(section) {
		if v, ok := doc.Get(section, k); ok {
			out[k] = v
		}
	}
	return out
}

// IP returns the bind address for a listener sub-instance.
func IP(s SubInstance) string {
	switch v := s.(type) {
	case *WsgiListener:
		return v.ip
	case *TcpListener:
		return v.ip
	case *UdpListener:
		return v.ip
	}
	return ""
}

// Port returns the bind port for a listener sub-instance.
func Port(s SubInstance) int {
	switch v := s.(type) {
	case *WsgiListener:
		return v.port
	case *TcpListener:
		return v.port
	case *UdpListener:
		return v.port
	}
	return 0
}

// Backlog returns the listen backlog for a listener sub-instance.
func Backlog(s SubInstance) int {
	switch v := s.(type) {
	case *WsgiListener:
		return v.backlog
	case *TcpListener:
		return v.backlog
	case *UdpListener:
		return v.backlog
	}
	return 0
}

// ListenRetry returns the bind-retry budget for a listener sub-instance.
func ListenRetry(s SubInstance) int {
	switch v := s.(type) {
	case *WsgiListener:
		return v.listenRetry
	case *TcpListener:
		return v.listenRetry
	case *UdpListener:
		return v.listenRetry
	}
	return 0
}

// ReservedWorkerStatNames returns the names of the two unconditional
// per-worker reservations, independent of factory declarations.
func ReservedWorkerStatNames() (start, requests string) {
	return "start_time", "request_count"
}
