// Package logger provides structured logging capabilities.
//
// The logger package builds the zap loggers used by the MCP server and the
// launcher CLI. Entries go to stderr by default so that stdout stays
// reserved for the stdio transport and for relayed child output.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("workspace started", zap.Int("pid", pid))
package logger
