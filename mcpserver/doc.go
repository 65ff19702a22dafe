// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the workspace process supervisor as MCP
// tools. Clients start a child with workspace_start and receive an opaque
// handle id, then drive it with workspace_read, workspace_is_running,
// workspace_kill and workspace_free. workspace_policy previews the sandbox
// command line for a launch without running anything.
//
// Handles live in a registry bounded by server.max_handles. Each entry is
// guarded by its own mutex because the MCP server runs tool handlers
// concurrently while process handles have a single owner.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, core)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
