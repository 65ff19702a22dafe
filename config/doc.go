// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and WORKSPACE_* environment variables. It
// covers the MCP server transport, logging, sandbox defaults and the
// launcher poll loop.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server transport: %s\n", cfg.Server.Transport)
package config
