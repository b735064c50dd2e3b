// Package logging holds the process-wide zap logger. The CLI initializes
// it once in the root command's PersistentPreRunE and syncs it on exit.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init builds the global logger. Verbose enables debug level and the
// human-readable development encoder; otherwise output is production JSON
// on stderr.
func Init(verbose bool) error {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	logger = built
	mu.Unlock()
	return nil
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger for a subsystem ("shell", "task", "watch").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered log entries. Safe to call on a nop logger.
func Sync() {
	_ = L().Sync()
}
