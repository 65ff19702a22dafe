package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/isdmx/workspace/config"
	"github.com/isdmx/workspace/sandbox"
	"github.com/isdmx/workspace/workspace"
)

const (
	defaultReadBytes = 4096
	maxReadBytes     = 1 << 20

	// freeTimeout bounds how long workspace_free waits for a child to be reaped.
	freeTimeout = 5 * time.Second
)

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	core       *workspace.Core
	handles    *registry
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, core *workspace.Core) (*MCPServer, error) {
	if cfg.Server.MaxHandles <= 0 {
		return nil, fmt.Errorf("server.max_handles must be positive, got: %d", cfg.Server.MaxHandles)
	}

	s := &MCPServer{
		config:  cfg,
		logger:  logger,
		core:    core,
		handles: newRegistry(cfg.Server.MaxHandles),
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("server.max_handles", s.config.Server.MaxHandles),
		zap.String("sandbox.bwrap_path", s.config.Sandbox.BwrapPath),
		zap.Bool("sandbox.require_confinement", s.config.Sandbox.RequireConfinement),
		zap.String("sandbox.default_id", s.config.Sandbox.DefaultID),
		zap.Bool("sandbox.allow_network", s.config.Sandbox.AllowNetwork),
	)

	s.mcpServer = server.NewMCPServer("workspace-supervisor", "A sandboxed process supervisor")
	if cfg.Server.Transport == "http" {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	}

	s.registerStartTool()
	s.registerReadTool()
	s.registerIsRunningTool()
	s.registerKillTool()
	s.registerFreeTool()
	s.registerPolicyTool()

	return s, nil
}

func handleProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Handle id returned by workspace_start",
	}
}

func (s *MCPServer) registerStartTool() {
	tool := mcp.Tool{
		Name:        "workspace_start",
		Description: "Start a child process, optionally inside the platform sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command_line": map[string]any{
					"type":        "string",
					"description": "Command line, split with shell-like quoting rules",
				},
				"cwd": map[string]any{
					"type":        "string",
					"description": "Working directory (optional)",
				},
				"sandbox": map[string]any{
					"type":        "boolean",
					"description": "Confine the child with the platform sandbox",
				},
				"id": map[string]any{
					"type":        "string",
					"description": "Workspace id; names the AppContainer profile on Windows",
				},
				"allow_network": map[string]any{
					"type":        "boolean",
					"description": "Keep host network access inside the sandbox",
				},
				"env": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Extra KEY=VALUE environment entries",
				},
			},
			Required: []string{"command_line"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleStart)
}

func (s *MCPServer) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commandLine, err := request.RequireString("command_line")
	if err != nil {
		return nil, fmt.Errorf("command_line parameter is required: %w", err)
	}

	opts := &workspace.Options{
		CommandLine:  commandLine,
		Cwd:          request.GetString("cwd", ""),
		Sandbox:      request.GetBool("sandbox", false),
		ID:           request.GetString("id", s.config.Sandbox.DefaultID),
		AllowNetwork: request.GetBool("allow_network", s.config.Sandbox.AllowNetwork),
		Env:          request.GetStringSlice("env", nil),
	}

	if err := s.handles.reserve(); err != nil {
		return errorResult(err), nil
	}

	h, err := s.core.Launch(opts)
	if err != nil {
		s.logger.Warn("workspace start failed",
			zap.String("command_line", commandLine),
			zap.Bool("sandbox", opts.Sandbox),
			zap.Error(err))
		return errorResult(err), nil
	}

	id, err := s.handles.add(h, commandLine)
	if err != nil {
		// Lost a race for the last slot.
		_ = (&entry{handle: h}).release(ctx)
		return errorResult(err), nil
	}

	s.logger.Info("workspace started",
		zap.String("handle", id),
		zap.Int("pid", h.Pid()),
		zap.Stringer("confinement", h.Confinement()))

	result := map[string]any{
		"handle":      id,
		"pid":         h.Pid(),
		"argv":        h.Argv(),
		"confinement": h.Confinement().String(),
	}
	if reason := h.DegradedReason(); reason != nil {
		result["degraded_reason"] = reason.Error()
	}
	return jsonResult(result)
}

func (s *MCPServer) registerReadTool() {
	tool := mcp.Tool{
		Name:        "workspace_read",
		Description: "Read buffered output from a child without blocking; data is base64 when encoding is base64",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"handle": handleProperty(),
				"stream": map[string]any{
					"type":        "string",
					"description": "Output stream to read",
					"enum":        []string{"stdout", "stderr"},
				},
				"max_bytes": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Maximum bytes to return (default %d, at most %d)", defaultReadBytes, maxReadBytes),
				},
			},
			Required: []string{"handle"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRead)
}

func (s *MCPServer) handleRead(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("handle")
	if err != nil {
		return nil, fmt.Errorf("handle parameter is required: %w", err)
	}

	read := s.core.ReadStdout
	switch stream := request.GetString("stream", "stdout"); stream {
	case "stdout":
	case "stderr":
		read = s.core.ReadStderr
	default:
		return nil, fmt.Errorf("invalid stream: %s, must be one of: stdout, stderr", stream)
	}

	size := request.GetInt("max_bytes", defaultReadBytes)
	if size <= 0 || size > maxReadBytes {
		return nil, fmt.Errorf("invalid max_bytes: %d, must be between 1 and %d", size, maxReadBytes)
	}

	e, err := s.handles.get(id)
	if err != nil {
		return errorResult(err), nil
	}

	buf := make([]byte, size)
	e.mu.Lock()
	n := read(e.handle, buf)
	e.mu.Unlock()

	result := map[string]any{"status": "eof", "data": "", "encoding": "utf-8"}
	switch {
	case n > 0:
		result["status"] = "data"
		// Chunks are encoded independently, so a rune split across two
		// reads yields two base64 chunks.
		if chunk := buf[:n]; utf8.Valid(chunk) {
			result["data"] = string(chunk)
		} else {
			result["data"] = base64.StdEncoding.EncodeToString(chunk)
			result["encoding"] = "base64"
		}
	case n == workspace.ReadWouldBlock:
		result["status"] = "would_block"
	}
	return jsonResult(result)
}

func (s *MCPServer) registerIsRunningTool() {
	tool := mcp.Tool{
		Name:        "workspace_is_running",
		Description: "Report whether a child is running and its exit code once it has exited",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"handle": handleProperty()},
			Required:   []string{"handle"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleIsRunning)
}

func (s *MCPServer) handleIsRunning(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("handle")
	if err != nil {
		return nil, fmt.Errorf("handle parameter is required: %w", err)
	}

	e, err := s.handles.get(id)
	if err != nil {
		return errorResult(err), nil
	}

	var code int
	e.mu.Lock()
	running := s.core.IsRunning(e.handle, &code)
	signo, signaled := e.handle.Signal()
	e.mu.Unlock()

	result := map[string]any{
		"running":   running,
		"exit_code": code,
	}
	if signaled {
		result["signal"] = signo
	}
	return jsonResult(result)
}

func (s *MCPServer) registerKillTool() {
	tool := mcp.Tool{
		Name:        "workspace_kill",
		Description: "Request termination of a child; poll workspace_is_running to observe it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"handle": handleProperty()},
			Required:   []string{"handle"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleKill)
}

func (s *MCPServer) handleKill(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("handle")
	if err != nil {
		return nil, fmt.Errorf("handle parameter is required: %w", err)
	}

	e, err := s.handles.get(id)
	if err != nil {
		return errorResult(err), nil
	}

	e.mu.Lock()
	s.core.Kill(e.handle)
	e.mu.Unlock()

	s.logger.Info("workspace kill requested", zap.String("handle", id))
	return jsonResult(map[string]any{"handle": id, "kill_requested": true})
}

func (s *MCPServer) registerFreeTool() {
	tool := mcp.Tool{
		Name:        "workspace_free",
		Description: "Release a handle, stopping and reaping the child if it is still running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"handle": handleProperty()},
			Required:   []string{"handle"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleFree)
}

func (s *MCPServer) handleFree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("handle")
	if err != nil {
		return nil, fmt.Errorf("handle parameter is required: %w", err)
	}

	e, err := s.handles.remove(id)
	if err != nil {
		return errorResult(err), nil
	}

	ctx, cancel := context.WithTimeout(ctx, freeTimeout)
	defer cancel()

	if err := e.release(ctx); err != nil {
		s.logger.Warn("workspace free failed", zap.String("handle", id), zap.Error(err))
		return errorResult(err), nil
	}

	s.logger.Info("workspace freed", zap.String("handle", id), zap.String("command_line", e.command))
	return jsonResult(map[string]any{"handle": id, "freed": true})
}

func (s *MCPServer) registerPolicyTool() {
	tool := mcp.Tool{
		Name:        "workspace_policy",
		Description: "Show the sandbox command line a Linux launch would execute, without running it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"command_line": map[string]any{
					"type":        "string",
					"description": "Command line to wrap",
				},
				"cwd": map[string]any{
					"type":        "string",
					"description": "Working directory (optional)",
				},
				"allow_network": map[string]any{
					"type":        "boolean",
					"description": "Keep host network access inside the sandbox",
				},
			},
			Required: []string{"command_line"},
		},
	}

	s.mcpServer.AddTool(tool, s.handlePolicy)
}

func (s *MCPServer) handlePolicy(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commandLine, err := request.RequireString("command_line")
	if err != nil {
		return nil, fmt.Errorf("command_line parameter is required: %w", err)
	}

	argv, err := sandbox.Policy(commandLine, sandbox.BwrapPolicy{
		Binary:       s.config.Sandbox.BwrapPath,
		AllowNetwork: request.GetBool("allow_network", s.config.Sandbox.AllowNetwork),
		Cwd:          request.GetString("cwd", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return jsonResult(map[string]any{
		"argv":    argv,
		"command": shellquote.Join(argv...),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: err.Error(),
			},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	if s.httpServer == nil {
		return errors.New("HTTP transport is not configured")
	}
	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it is running, then terminates and
// releases every handle still in the registry.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	entries := s.handles.drain()
	for id, e := range entries {
		if releaseErr := e.release(ctx); releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("release %s: %w", id, releaseErr))
		}
	}

	s.logger.Info("MCP server stopped", zap.Int("released_handles", len(entries)))
	return err
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
