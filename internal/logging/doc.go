// Package logging configures the process-wide slog logger for amannotes.
// Logs are JSON, written to a size-rotated file under ~/.amannotes/logs/
// and optionally mirrored to stderr. Stdio transports (MCP) must disable
// the stderr mirror.
package logging
