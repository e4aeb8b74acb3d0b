package logger

import (
	"log/slog"
	"os"
)

// New returns the service-wide structured logger. Local runs get text output,
// everything else ships JSON.
func New(appEnv string) *slog.Logger {
	if appEnv == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
