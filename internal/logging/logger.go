// Package logging provides config-driven categorized file-based logging for planforge.
// Logs are written to .forge/logs/ with separate files per category.
// Logging is controlled by the logging section of .forge/config.json - when
// debug mode is off, no log files are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and shutdown
	CategorySession  Category = "session"  // Session lifecycle, persistence
	CategoryAPI      Category = "api"      // LLM provider calls
	CategoryAgent    Category = "agent"    // Orchestrator turns and tool loop
	CategoryTools    Category = "tools"    // Tool registration and execution
	CategoryApproval Category = "approval" // Approval gate decisions
	CategoryPlan     Category = "plan"     // Plan engine transitions
	CategoryStore    Category = "store"    // SQLite store operations
	CategoryRetry    Category = "retry"    // Retry policy decisions
	CategoryEvents   Category = "events"   // Event bus publication
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Mirrors config.LoggingConfig to avoid a
// circular import on the config package.
type Options struct {
	Debug      bool
	Level      string
	Categories map[string]bool // nil means all categories enabled
}

// Logger writes timestamped lines for a single category.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	opts     Options
	logLevel int
)

// Initialize sets up the logging directory and options.
// Should be called once at startup with the workspace path.
func Initialize(workspace string, o Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	defer mu.Unlock()

	logsDir = filepath.Join(workspace, ".forge", "logs")
	opts = o
	logLevel = parseLevel(o.Level)

	if !opts.Debug {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsDebugMode reports whether debug logging is active.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.Debug
}

func categoryEnabled(category Category) bool {
	if !opts.Debug {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, ok := opts.Categories[string(category)]
	return !ok || enabled
}

// Get returns the logger for a category, creating its file on first use.
// Returns a no-op logger when the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := categoryEnabled(category)
	dir := logsDir
	mu.RUnlock()

	if !enabled || dir == "" {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	path := filepath.Join(dir, string(category)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		// Fall back to a silent logger rather than failing the caller.
		l := &Logger{category: category}
		loggers[category] = l
		return l
	}

	l := &Logger{
		category: category,
		logger:   log.New(f, "", 0),
		file:     f,
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, label, format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	mu.RLock()
	min := logLevel
	mu.RUnlock()
	if level < min {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] %s", ts, label, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// CloseAll closes every open log file. Called at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience helpers, one pair per category.

func Boot(format string, args ...interface{})          { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{})     { Get(CategoryBoot).Debug(format, args...) }
func Session(format string, args ...interface{})       { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{})  { Get(CategorySession).Debug(format, args...) }
func API(format string, args ...interface{})           { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{})      { Get(CategoryAPI).Debug(format, args...) }
func Agent(format string, args ...interface{})         { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{})    { Get(CategoryAgent).Debug(format, args...) }
func Tools(format string, args ...interface{})         { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{})    { Get(CategoryTools).Debug(format, args...) }
func Approval(format string, args ...interface{})      { Get(CategoryApproval).Info(format, args...) }
func ApprovalDebug(format string, args ...interface{}) { Get(CategoryApproval).Debug(format, args...) }
func Plan(format string, args ...interface{})          { Get(CategoryPlan).Info(format, args...) }
func PlanDebug(format string, args ...interface{})     { Get(CategoryPlan).Debug(format, args...) }
func Store(format string, args ...interface{})         { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})    { Get(CategoryStore).Debug(format, args...) }
func Retry(format string, args ...interface{})         { Get(CategoryRetry).Info(format, args...) }
func RetryDebug(format string, args ...interface{})    { Get(CategoryRetry).Debug(format, args...) }
func Events(format string, args ...interface{})        { Get(CategoryEvents).Info(format, args...) }
func EventsDebug(format string, args ...interface{})   { Get(CategoryEvents).Debug(format, args...) }

// Timer measures an operation's duration for a category.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
