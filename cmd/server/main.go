package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/workspace/config"
	"github.com/isdmx/workspace/logger"
	"github.com/isdmx/workspace/mcpserver"
	"github.com/isdmx/workspace/process"
	"github.com/isdmx/workspace/workspace"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Process engine for the compiled-in platform backend
			process.NewEngineFromConfig,

			// Boundary over the engine
			workspace.New,

			// MCP Server
			mcpserver.New,
		),

		fx.Invoke(registerServer),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// registerServer serves the configured transport for the lifetime of the
// app. The app shuts down when the transport ends, and every live handle
// is released on stop.
func registerServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	engine *process.Engine,
	server *mcpserver.MCPServer,
) {
	serve := server.ServeStdio
	if cfg.Server.Transport == "http" {
		serve = server.ServeHTTP
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("process backend selected", zap.String("backend", engine.Backend()))
			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("MCP transport stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
