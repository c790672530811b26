package dispatch

import (
	"go.uber.org/zap"

	"github.com/brimd/brimd/internal/factory"
)

// RunDaemon invokes a Daemon's Run method once per process. A panic is
// recovered and logged before the process exits; the supervisor restarts
// it like any other worker exit.
func RunDaemon(name string, d factory.Daemon, stats factory.StatsWriter, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("daemon panic", zap.String("daemon", name), zap.Any("panic", r))
		}
	}()
	d.Run(name, stats)
}
