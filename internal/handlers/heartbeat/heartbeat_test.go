package heartbeat

import (
	"testing"
	"time"
)

type fakeStats struct {
	values map[string]uint64
}

func newFakeStats() *fakeStats { return &fakeStats{values: make(map[string]uint64)} }

func (f *fakeStats) Get(name string) uint64    { return f.values[name] }
func (f *fakeStats) Set(name string, v uint64) { f.values[name] = v }
func (f *fakeStats) Incr(name string)          { f.values[name]++ }

func TestParseConfOverridesInterval(t *testing.T) {
	h := &Heartbeat{interval: 30 * time.Second}
	if err := h.ParseConf("hb", map[string]string{"interval_seconds": "5"}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	if h.interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", h.interval)
	}
}

func TestParseConfIgnoresZeroOrAbsent(t *testing.T) {
	h := &Heartbeat{interval: 30 * time.Second}
	if err := h.ParseConf("hb", map[string]string{}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	if h.interval != 30*time.Second {
		t.Errorf("interval = %v, want unchanged 30s", h.interval)
	}
	if err := h.ParseConf("hb", map[string]string{"interval_seconds": "0"}); err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	if h.interval != 30*time.Second {
		t.Errorf("interval after 0 = %v, want unchanged 30s", h.interval)
	}
}

func TestParseConfRejectsNonNumeric(t *testing.T) {
	h := &Heartbeat{}
	if err := h.ParseConf("hb", map[string]string{"interval_seconds": "soon"}); err == nil {
		t.Fatalf("expected error for non-numeric interval_seconds")
	}
}

func TestRunIncrementsAndSetsLastLogged(t *testing.T) {
	h := &Heartbeat{interval: 5 * time.Millisecond}
	stats := newFakeStats()
	go h.Run("daemon:heartbeat", stats)

	deadline := time.Now().Add(time.Second)
	for stats.Get("heartbeat_count") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if stats.Get("heartbeat_count") == 0 {
		t.Fatalf("heartbeat_count never incremented")
	}
	if stats.Get("last_logged") == 0 {
		t.Errorf("last_logged was never set")
	}
}

func TestStatsConfDeclaresBothStats(t *testing.T) {
	h := &Heartbeat{}
	decls, err := h.StatsConf("hb", nil)
	if err != nil {
		t.Fatalf("StatsConf: %v", err)
	}
	names := map[string]bool{}
	for _, d := range decls {
		names[d.Name] = true
	}
	if !names["heartbeat_count"] || !names["last_logged"] {
		t.Errorf("StatsConf declarations = %v, want heartbeat_count and last_logged", decls)
	}
}
