// Package logger defines the logging contract used across the planner.
// Implementations live under infra/logger.
package logger

// Logger is the leveled logging interface the core packages depend on.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw attaches structured fields to a debug message.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
