package echo

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brimd/brimd/internal/factory"
)

type recorderAdapter struct {
	*httptest.ResponseRecorder
}

func (r *recorderAdapter) Status() int { return r.Code }

func newTestContext(stats factory.StatsWriter) *factory.RequestContext {
	return &factory.RequestContext{RequestID: "test-request", Stats: stats}
}

type fakeStats struct {
	counts map[string]uint64
}

func newFakeStats() *fakeStats { return &fakeStats{counts: make(map[string]uint64)} }

func (f *fakeStats) Get(name string) uint64  { return f.counts[name] }
func (f *fakeStats) Set(name string, v uint64) { f.counts[name] = v }
func (f *fakeStats) Incr(name string)         { f.counts[name]++ }

func TestWSGIEchoesBody(t *testing.T) {
	h := &WSGI{}
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	rec := httptest.NewRecorder()

	ctx := newTestContext(newFakeStats())
	h.Handle(ctx, &recorderAdapter{rec}, req, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "hello" {
		t.Errorf("body = %q, want %q", got, "hello")
	}
	if got := ctx.Stats.Get("echo_bytes_count"); got != 1 {
		t.Errorf("echo_bytes_count = %d, want 1", got)
	}
}

func TestUDPEchoesDatagram(t *testing.T) {
	h := &UDP{}
	stats := newFakeStats()
	sock := &fakeSock{}
	h.HandleDatagram("udp:echo:0", stats, sock, []byte("ping"), &net.UDPAddr{})

	if sock.lastWrite != "ping" {
		t.Errorf("sock got %q, want %q", sock.lastWrite, "ping")
	}
	if stats.Get("echo_bytes_count") != 1 {
		t.Errorf("echo_bytes_count = %d, want 1", stats.Get("echo_bytes_count"))
	}
}

type fakeSock struct {
	lastWrite string
}

func (s *fakeSock) WriteTo(b []byte, addr net.Addr) (int, error) {
	s.lastWrite = string(b)
	return len(b), nil
}
