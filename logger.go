package accounts

import "log/slog"

// A Logger receives leveled, structured log records.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultLogger returns the process default slog logger scoped to the given group.
//
//nolint:ireturn // Deliberately an interface
func DefaultLogger(group string) Logger {
	if group == "" {
		return slog.Default()
	}

	return slog.Default().WithGroup(group)
}
