// Package logging provides categorized structured logging for shopdesk.
// Each subsystem logs through a named zap logger so operators can filter
// routing decisions, store activity, and audit sink failures independently.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategorySession    Category = "session"    // Session store activity
	CategoryClassifier Category = "classifier" // Intent classification
	CategoryRouting    Category = "routing"    // Dispatch engine decisions
	CategoryRegistry   Category = "registry"   // Specialist construction and lookup
	CategoryAudit      Category = "audit"      // Audit/compliance interceptor
	CategoryServer     Category = "server"     // HTTP API
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	sugared = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the process-wide logger. Call once at startup; calling it
// again replaces the backend (used by tests).
func Initialize(debug bool) error {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	base = logger
	sugared = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Sync flushes buffered log entries. Safe to call before Initialize.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Get returns the sugared logger for a category, creating it on first use.
// Before Initialize it falls back to a no-op logger so library code never
// needs a nil check.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if s, ok := sugared[category]; ok {
		mu.RUnlock()
		return s
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sugared[category]; ok {
		return s
	}
	b := base
	if b == nil {
		b = zap.NewNop()
	}
	s := b.Named(string(category)).Sugar()
	sugared[category] = s
	return s
}

// Convenience helpers mirroring the category set. Info level unless the name
// says otherwise.

func Boot(format string, args ...interface{})    { Get(CategoryBoot).Infof(format, args...) }
func Session(format string, args ...interface{}) { Get(CategorySession).Infof(format, args...) }
func SessionDebug(format string, args ...interface{}) {
	Get(CategorySession).Debugf(format, args...)
}
func SessionError(format string, args ...interface{}) {
	Get(CategorySession).Errorf(format, args...)
}
func Classifier(format string, args ...interface{}) { Get(CategoryClassifier).Infof(format, args...) }
func ClassifierDebug(format string, args ...interface{}) {
	Get(CategoryClassifier).Debugf(format, args...)
}
func Routing(format string, args ...interface{}) { Get(CategoryRouting).Infof(format, args...) }
func RoutingDebug(format string, args ...interface{}) {
	Get(CategoryRouting).Debugf(format, args...)
}
func RoutingWarn(format string, args ...interface{}) { Get(CategoryRouting).Warnf(format, args...) }
func Registry(format string, args ...interface{})    { Get(CategoryRegistry).Infof(format, args...) }
func RegistryDebug(format string, args ...interface{}) {
	Get(CategoryRegistry).Debugf(format, args...)
}
func Audit(format string, args ...interface{})     { Get(CategoryAudit).Infof(format, args...) }
func AuditWarn(format string, args ...interface{}) { Get(CategoryAudit).Warnf(format, args...) }
func Server(format string, args ...interface{})    { Get(CategoryServer).Infof(format, args...) }
func ServerError(format string, args ...interface{}) {
	Get(CategoryServer).Errorf(format, args...)
}
