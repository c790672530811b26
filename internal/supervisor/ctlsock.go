package supervisor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
)

// Control socket shape follows internal/operator/server.go: a Unix domain
// socket at a fixed path, 0600 permissions, one newline-delimited JSON
// request/response exchange per connection, a semaphore capping concurrent
// connections (this is an operator tool, not a high-throughput one).
const (
	ctlMaxConns    = 4
	ctlMaxRequest  = 8192
	ctlConnTimeout = 10 * time.Second
)

// CtlRequest is one control-socket command.
type CtlRequest struct {
	Cmd string `json:"cmd"` // status | reload | shutdown
}

// CtlResponse is the JSON reply to a control-socket command.
type CtlResponse struct {
	OK    bool `json:"ok"`
	Error string `json:"error,omitempty"`
	Status any `json:"status,omitempty"`
}

// CtlSocket is brimd's local control plane: the `status`, `reload`, and
// `shutdown` CLI verbs all go through this socket rather than talking to
// the supervisor process directly.
type CtlSocket struct {
	path string
	ln   net.Listener
	p    *Parent
	log  *zap.Logger
	sem  chan struct{}
}

// NewCtlSocket binds the control socket at path, removing any stale
// socket file left by a crashed prior run.
func NewCtlSocket(path string, p *Parent, log *zap.Logger) (*CtlSocket, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("supervisor: remove stale control socket %q: %w", path, err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: listen control socket %q: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("supervisor: chmod control socket %q: %w", path, err)
	}
	return &CtlSocket{path: path, ln: ln, p: p, log: log, sem: make(chan struct{}, ctlMaxConns)}, nil
}

// ListenAndServe accepts connections until the socket is closed.
func (s *CtlSocket) ListenAndServe() error {
	s.log.Info("control socket listening", zap.String("path", s.path))
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return nil // closed for shutdown
		}
		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("control socket at connection capacity, rejecting")
			conn.Close()
			continue
		}
		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handle(c)
		}(conn)
	}
}

// Close closes the listener and removes the socket file.
func (s *CtlSocket) Close() {
	s.ln.Close()
	_ = os.Remove(s.path)
}

func (s *CtlSocket) handle(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(ctlConnTimeout))
	reader := bufio.NewReaderSize(conn, ctlMaxRequest)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	var req CtlRequest
	if err := json.Unmarshal(line, &req); err != nil {
		s.reply(conn, CtlResponse{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	switch req.Cmd {
	case "status":
		s.reply(conn, CtlResponse{OK: true, Status: s.p.Snapshot()})
	case "reload":
		if err := s.p.Reload(); err != nil {
			s.reply(conn, CtlResponse{OK: false, Error: err.Error()})
			return
		}
		s.reply(conn, CtlResponse{OK: true})
	case "shutdown":
		s.reply(conn, CtlResponse{OK: true})
		go s.p.Shutdown()
	default:
		s.reply(conn, CtlResponse{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)})
	}
}

func (s *CtlSocket) reply(conn net.Conn, resp CtlResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = conn.Write(b)
}
