// Package logging provides categorized structured logging for wordloom,
// built on zap. Each subsystem logs under its own category; categories can
// be toggled via configuration. Before Initialize is called all helpers are
// silent no-ops, so library code can log unconditionally.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and wiring
	CategoryRouter    Category = "router"    // Routing decisions
	CategoryScheduler Category = "scheduler" // DAG scheduling
	CategoryWorker    Category = "worker"    // Worker execution
	CategoryBackend   Category = "backend"   // Generation backend calls
	CategoryGuardrail Category = "guardrail" // Guardrail pipeline
	CategoryStore     Category = "store"     // Archive store
	CategoryMetrics   Category = "metrics"   // Metrics collection
	CategoryPlatform  Category = "platform"  // Submission surface
)

// Options configures the logging subsystem.
type Options struct {
	Level      string          // debug, info, warn, error (default info)
	JSONFormat bool            // JSON encoder instead of console
	Directory  string          // when set, also log to <dir>/wordloom.log
	Categories map[string]bool // per-category enable; empty means all enabled
}

var (
	mu         sync.RWMutex
	root       *zap.SugaredLogger
	categories map[string]bool
)

// Initialize sets up the process-wide logger. Safe to call more than once;
// the last call wins.
func Initialize(opts Options) error {
	level := zapcore.InfoLevel
	switch opts.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if opts.Directory != "" {
		if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.Directory, "wordloom.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core)

	mu.Lock()
	root = logger.Sugar()
	categories = opts.Categories
	mu.Unlock()
	return nil
}

// Get returns the sugared logger for a category, or a no-op logger when the
// category is disabled or Initialize has not run.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return zap.NewNop().Sugar()
	}
	if categories != nil {
		if enabled, ok := categories[string(cat)]; ok && !enabled {
			return zap.NewNop().Sugar()
		}
	}
	return root.With("cat", string(cat))
}

// Category helpers mirror the subsystems; each logs at info with a
// Debug-suffixed variant for verbose detail.

func Boot(format string, args ...any)      { Get(CategoryBoot).Infof(format, args...) }
func Router(format string, args ...any)    { Get(CategoryRouter).Infof(format, args...) }
func Scheduler(format string, args ...any) { Get(CategoryScheduler).Infof(format, args...) }
func Worker(format string, args ...any)    { Get(CategoryWorker).Infof(format, args...) }
func Backend(format string, args ...any)   { Get(CategoryBackend).Infof(format, args...) }
func Guardrail(format string, args ...any) { Get(CategoryGuardrail).Infof(format, args...) }
func Store(format string, args ...any)     { Get(CategoryStore).Infof(format, args...) }
func Platform(format string, args ...any)  { Get(CategoryPlatform).Infof(format, args...) }

func RouterDebug(format string, args ...any)    { Get(CategoryRouter).Debugf(format, args...) }
func SchedulerDebug(format string, args ...any) { Get(CategoryScheduler).Debugf(format, args...) }
func WorkerDebug(format string, args ...any)    { Get(CategoryWorker).Debugf(format, args...) }
func BackendDebug(format string, args ...any)   { Get(CategoryBackend).Debugf(format, args...) }
func GuardrailDebug(format string, args ...any) { Get(CategoryGuardrail).Debugf(format, args...) }
