package statsreport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brimd/brimd/internal/factory"
)

type fakeStats struct {
	values map[string]uint64
}

func (f *fakeStats) Get(name string) uint64    { return f.values[name] }
func (f *fakeStats) Set(name string, v uint64) { f.values[name] = v }
func (f *fakeStats) Incr(name string)          { f.values[name]++ }

type recorderAdapter struct {
	*httptest.ResponseRecorder
}

func (r *recorderAdapter) Status() int { return r.Code }

func TestParseConfDefaultsWhenNamesAbsent(t *testing.T) {
	h := &Report{}
	if err := h.ParseConf("stats", map[string]string{}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	if len(h.names) != len(defaultNames) {
		t.Fatalf("names = %v, want defaults %v", h.names, defaultNames)
	}
}

func TestParseConfHonorsNamesOption(t *testing.T) {
	h := &Report{}
	if err := h.ParseConf("stats", map[string]string{"names": "request_count, status_4xx_count"}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	want := []string{"request_count", "status_4xx_count"}
	if len(h.names) != len(want) {
		t.Fatalf("names = %v, want %v", h.names, want)
	}
	for i, n := range want {
		if h.names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, h.names[i], n)
		}
	}
}

func TestHandleReportsConfiguredStats(t *testing.T) {
	h := &Report{}
	if err := h.ParseConf("stats", map[string]string{"names": "request_count"}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}

	stats := &fakeStats{values: map[string]uint64{"request_count": 42}}
	ctx := &factory.RequestContext{
		Stats:  stats,
		Encode: json.Marshal,
		Decode: json.Unmarshal,
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Handle(ctx, &recorderAdapter{rec}, req, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var out map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response body: %v", err)
	}
	if out["request_count"] != 42 {
		t.Errorf("request_count = %d, want 42", out["request_count"])
	}
}

func TestHandleRejectsNonGet(t *testing.T) {
	h := &Report{}
	ctx := &factory.RequestContext{Stats: &fakeStats{values: map[string]uint64{}}, Encode: json.Marshal, Decode: json.Unmarshal}
	req := httptest.NewRequest(http.MethodPost, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Handle(ctx, &recorderAdapter{rec}, req, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
