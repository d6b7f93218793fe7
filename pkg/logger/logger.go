// Package logger provides standardized logging utilities for the smplc compiler
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Global logger instance
var defaultLogger *slog.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var handler slog.Handler

	output := cfg.Output
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return nil
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, args...)
	}
}

// With returns a new logger with the given attributes
func With(args ...any) *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger.With(args...)
	}
	return slog.Default().With(args...)
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a configuration string to a LogLevel
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string) {
	Info("Starting compilation phase", "phase", phase)
}

// LogPhaseComplete logs the completion of a compilation phase
func LogPhaseComplete(phase string) {
	Info("Completed compilation phase", "phase", phase)
}

// LogLexing logs lexing activity
func LogLexing(file string, tokenCount int) {
	Debug("Lexing complete", "file", file, "tokens", tokenCount)
}

// LogSSAGeneration logs SSA generation
func LogSSAGeneration(file string, blockCount, instructionCount int) {
	Debug("SSA generation complete",
		"file", file,
		"blocks", blockCount,
		"instructions", instructionCount)
}

// LogImplicitZero logs a read of a variable with no reaching definition
func LogImplicitZero(l *slog.Logger, variable string, block int) {
	l.Warn("Variable read before assignment, using implicit zero",
		"variable", variable,
		"block", block)
}

// LogPhi logs a phi placed or rewritten at a join block
func LogPhi(l *slog.Logger, join int, variable string, id, x, y int) {
	l.Debug("Phi placed",
		"join", join,
		"variable", variable,
		"phi", id,
		"x", x,
		"y", y)
}

// LogDeadPhi logs a phi retired because both incoming values agree
func LogDeadPhi(l *slog.Logger, join int, variable string, id, value int) {
	l.Debug("Phi retired",
		"join", join,
		"variable", variable,
		"phi", id,
		"value", value)
}

// LogLoopFixup logs the outcome of a loop fixup traversal
func LogLoopFixup(l *slog.Logger, header int, blocks, spliced, rounds int) {
	l.Debug("Loop fixup complete",
		"header", header,
		"blocks", blocks,
		"spliced", spliced,
		"rounds", rounds)
}

// LogBackpatch logs a branch target being filled in
func LogBackpatch(l *slog.Logger, branch, slot, target, inst int) {
	l.Debug("Branch target resolved",
		"branch", branch,
		"slot", slot,
		"block", target,
		"target", inst)
}

// LogError logs a compilation error
func LogError(phase string, file string, line int, msg string) {
	Error("Compilation error",
		"phase", phase,
		"file", file,
		"line", line,
		"message", msg)
}

// LogWarning logs a compilation warning
func LogWarning(phase string, file string, line int, msg string) {
	Warn("Compilation warning",
		"phase", phase,
		"file", file,
		"line", line,
		"message", msg)
}

// LogCompilerStart logs compiler startup
func LogCompilerStart(args []string) {
	Info("smplc starting", "args", args)
}

// LogCompilerComplete logs compiler completion
func LogCompilerComplete(success bool, duration string) {
	if success {
		Info("Compilation successful", "duration", duration)
	} else {
		Error("Compilation failed", "duration", duration)
	}
}

// LogFileProcessing logs file processing start
func LogFileProcessing(file string) {
	Info("Processing file", "file", file)
}
