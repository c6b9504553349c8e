package main

import (
	"io"
	"log/slog"

	"github.com/loykin/minermon/internal/config"
)

// setupLogging installs the configured logger as the slog default. Closing the result
// closes the log file and reinstates the previous default.
func setupLogging(cfg *config.Config, console io.Writer) io.Closer {
	prev := slog.Default()
	log, closer := cfg.LoggerConfig().NewSlogger(console)
	slog.SetDefault(log)
	return restoreLogger{prev: prev, file: closer}
}

type restoreLogger struct {
	prev *slog.Logger
	file io.Closer
}

func (r restoreLogger) Close() error {
	slog.SetDefault(r.prev)
	return r.file.Close()
}
