package supervisor

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// waitAndCloseOnTerm closes c the moment the child receives SIGTERM or
// SIGINT, unblocking whatever accept/receive loop owns it so the process
// can exit cleanly instead of waiting to be SIGKILLed by the parent.
func waitAndCloseOnTerm(c io.Closer, log *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	log.Info("child received shutdown signal", zap.String("signal", sig.String()))
	_ = c.Close()
}

// shutdownServer is the subset of *http.Server RunChild's wsgi path needs,
// kept narrow so this file does not import net/http.
type shutdownServer interface {
	Shutdown(ctx context.Context) error
}

// waitAndShutdownHTTP gives an in-flight wsgi worker up to 25 seconds to
// drain after SIGTERM/SIGINT, unless the parent escalates to SIGKILL first.
func waitAndShutdownHTTP(srv shutdownServer, log *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	sig := <-ch
	log.Info("wsgi child received shutdown signal", zap.String("signal", sig.String()))
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("wsgi child graceful shutdown did not finish in time", zap.Error(err))
	}
}

// RunSignalLoop is the parent's signal-driven control loop: SIGHUP drives a
// reload (listeners stay bound, every worker is restarted against the same
// frozen plan), SIGTERM/SIGINT drive a graceful shutdown with the configured
// grace period before escalating to SIGKILL. It blocks until shutdown
// completes.
func (p *Parent) RunSignalLoop() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			p.log.Info("SIGHUP received, reloading")
			if err := p.Reload(); err != nil {
				p.log.Error("reload failed, keeping running workers", zap.Error(err))
			}
		case syscall.SIGTERM, syscall.SIGINT:
			p.log.Info("shutdown signal received", zap.String("signal", sig.String()))
			p.Shutdown()
			return
		}
	}
}
