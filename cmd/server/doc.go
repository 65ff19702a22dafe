// Package main is the entry point for the workspace MCP server.
//
// The server exposes the sandboxed process supervisor as Model Context
// Protocol tools. Clients start children, optionally confined with
// bubblewrap on Linux or an AppContainer on Windows, and drive them through
// non-blocking reads, liveness polls, kill and free. The server supports
// both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
