// Package heartbeat is a built-in daemon that does nothing but prove the
// daemon lifecycle works end to end: on a fixed interval it bumps a
// counter and records the time in last_logged, so a deployment can watch heartbeat_count climb
// in `brimd status` output as evidence the daemon slot is alive and being
// respawned correctly after a crash.
package heartbeat

import (
	"strconv"
	"sync"
	"time"

	"github.com/brimd/brimd/internal/factory"
)

func init() {
	factory.RegisterDaemon("brimd.handlers.heartbeat.Heartbeat", func() factory.Daemon { return &Heartbeat{interval: 30 * time.Second} })
}

// Heartbeat runs forever, incrementing heartbeat_count every interval.
type Heartbeat struct {
	mu       sync.Mutex
	interval time.Duration
}

// ParseConf reads "interval_seconds" (default 30).
func (h *Heartbeat) ParseConf(name string, conf map[string]string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if raw, ok := conf["interval_seconds"]; ok && raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		if secs > 0 {
			h.interval = time.Duration(secs) * time.Second
		}
	}
	return nil
}

// StatsConf declares the counter and timestamp this daemon writes.
// last_logged is set on every tick and, since the stats region outlives
// any one worker process, still reads back whatever value it last held
// immediately after a crash-restart.
func (h *Heartbeat) StatsConf(name string, conf map[string]string) ([]factory.StatDecl, error) {
	return []factory.StatDecl{
		{Name: "heartbeat_count", Kind: "sum"},
		{Name: "last_logged", Kind: "max"},
	}, nil
}

// Run ticks forever at the configured interval, incrementing
// heartbeat_count and setting last_logged each time. It never returns;
// the process ends when it is signalled.
func (h *Heartbeat) Run(instance string, stats factory.StatsWriter) {
	h.mu.Lock()
	interval := h.interval
	h.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		stats.Incr("heartbeat_count")
		stats.Set("last_logged", uint64(time.Now().Unix()))
	}
}

var (
	_ factory.ConfParser    = (*Heartbeat)(nil)
	_ factory.StatsDeclarer = (*Heartbeat)(nil)
	_ factory.Daemon        = (*Heartbeat)(nil)
)
