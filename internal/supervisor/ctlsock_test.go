package supervisor

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCtlSocketRejectsUnknownCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brimd.ctl.sock")
	s, err := NewCtlSocket(path, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCtlSocket: %v", err)
	}
	defer s.Close()

	if info, err := os.Stat(path); err != nil {
		t.Fatalf("stat socket: %v", err)
	} else if info.Mode().Perm() != 0o600 {
		t.Errorf("socket perm = %v, want 0600", info.Mode().Perm())
	}

	go s.ListenAndServe()

	resp := roundTrip(t, path, CtlRequest{Cmd: "bogus"})
	if resp.OK {
		t.Errorf("expected OK=false for unknown command, got true")
	}
	if resp.Error == "" {
		t.Errorf("expected a non-empty error message for unknown command")
	}
}

func TestCtlSocketRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brimd.ctl.sock")
	s, err := NewCtlSocket(path, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCtlSocket: %v", err)
	}
	defer s.Close()
	go s.ListenAndServe()

	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_, _ = conn.Write([]byte("not json\n"))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp CtlResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OK {
		t.Errorf("expected OK=false for malformed JSON")
	}
}

func roundTrip(t *testing.T, path string, req CtlRequest) CtlResponse {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	body = append(body, '\n')
	if _, err := conn.Write(body); err != nil {
		t.Fatalf("write request: %v", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp CtlResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}
