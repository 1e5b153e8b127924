package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Services and handlers receive it
// by injection; nothing logs through a package-level default.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
