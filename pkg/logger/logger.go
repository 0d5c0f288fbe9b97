package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	Log *zap.SugaredLogger
	// Audit receives security relevant events (auth failures, admin actions).
	// Falls back to Log when no dedicated sink is configured.
	Audit *zap.SugaredLogger
)

// Options controls the zap backend built by Init.
type Options struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init builds the global logger. Unknown levels fall back to info.
func Init(opts Options) error {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		level = zapcore.InfoLevel
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format != "console" {
		format = "json"
	}
	output := opts.OutputPath
	if output == "" {
		output = "stdout"
	}

	var encoderConfig zapcore.EncoderConfig
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      format == "console",
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Use(l)
	return nil
}

// Use installs an already built zap logger, e.g. an observer core in tests.
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Log = l.Sugar()
	Audit = l.Named("audit").Sugar()
}

func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if Log != nil {
		_ = Log.Sync()
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return Log
}

func Debug(msg string, args ...any) {
	if l := current(); l != nil {
		l.Debugw(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if l := current(); l != nil {
		l.Infow(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if l := current(); l != nil {
		l.Warnw(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if l := current(); l != nil {
		l.Errorw(msg, args...)
	}
}

// AuditEvent records a security event on the audit logger.
func AuditEvent(msg string, args ...any) {
	mu.RLock()
	a := Audit
	mu.RUnlock()
	if a == nil {
		return
	}
	a.Infow(msg, args...)
}

// LogConfigSummary prints a multi-line summary block under a single event.
func LogConfigSummary(msg string, items []string) {
	Info(msg, "summary", strings.Join(items, "; "))
}
