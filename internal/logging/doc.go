// Package logging provides per-module structured logging built on log/slog.
//
// Modules obtain a logger with GetLogger("acquire"), GetLogger("backend"),
// etc. Each module has its own runtime-adjustable level. Output goes to
// stdout (text or JSON), to the systemd journal when one is attached, and
// to an in-memory ring buffer that the HTTP API serves for log inspection.
//
// Initialize must be called once at startup with the resolved configuration;
// loggers created before Initialize use sane defaults and are upgraded in
// place when Initialize runs.
package logging
