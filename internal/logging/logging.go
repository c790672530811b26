// Package logging builds the zap.Logger brimd logs through, following
// cmd/octoreflex/main.go's buildLogger (level from zapcore.Level.UnmarshalText,
// zap.NewProductionEncoderConfig as the base), extended with the four
// log_facility choices a launcher needs: "stderr", "stdout", "syslog", or
// a file path.
package logging

import (
	"fmt"
	"log/syslog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build constructs a zap.Logger writing to the configured facility at the
// configured level. name is used as the "logger" field on every entry; the
// syslog tag is always "brimd", whatever name is.
func Build(name, level, facility string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	sink, err := openSink(facility)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(zapLevel))
	return zap.New(core, zap.AddCaller()).Named(name), nil
}

func openSink(facility string) (zapcore.WriteSyncer, error) {
	switch facility {
	case "", "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "syslog":
		w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "brimd")
		if err != nil {
			return nil, fmt.Errorf("logging: syslog.New: %w", err)
		}
		return zapcore.AddSync(&syslogWriter{w: w}), nil
	default:
		f, err := os.OpenFile(facility, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file %q: %w", facility, err)
		}
		return zapcore.AddSync(f), nil
	}
}

// syslogWriter adapts a *syslog.Writer (which has no Sync method) to
// zapcore.WriteSyncer.
type syslogWriter struct {
	w *syslog.Writer
}

func (s *syslogWriter) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *syslogWriter) Sync() error                 { return nil }
