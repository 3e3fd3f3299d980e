// Command matchctl scores surveys, manages scoring policies and prepares
// admin credentials without a running server.
package main

import (
	"log/slog"
	"os"

	"github.com/ZanzyTHEbar/blind-match/internal/monitoring"
)

func main() {
	// Command output owns stdout.
	logger := monitoring.NewLoggerTo(os.Stderr, monitoring.ParseLevel(os.Getenv("BLINDMATCH_LOG_LEVEL")))
	slog.SetDefault(logger.Logger)

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("matchctl failed", "error", err)
		os.Exit(1)
	}
}
