package occdemo

import (
	"log/slog"

	"github.com/SergeyYablokov/occdemo-sub001/internal/logging"
)

// SetLogger configures the logger for occdemo and all its sub-packages.
// By default nothing is logged. Pass nil to restore the silent default.
//
// SetLogger is safe for concurrent use.
//
// Log levels used by occdemo:
//   - [slog.LevelDebug]: allocations, framebuffer rebuilds, slot waits
//   - [slog.LevelInfo]: backend and adapter selection
//   - [slog.LevelWarn]: degraded passes, buffer resizes, slow fences
//   - [slog.LevelError]: configuration errors and failed programs
//
// Example:
//
//	occdemo.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return logging.L()
}
