package process

import (
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/isdmx/workspace/cmdline"
	"github.com/isdmx/workspace/config"
	"github.com/isdmx/workspace/sandbox"
)

// Engine launches children through the platform backend.
type Engine struct {
	logger             *zap.Logger
	backend            backend
	bwrapPath          string
	requireConfinement bool
}

// EngineOption defines a functional option for Engine
type EngineOption func(*Engine)

// WithBwrapPath sets the bubblewrap executable used for sandboxed launches on Linux
func WithBwrapPath(path string) EngineOption {
	return func(e *Engine) {
		e.bwrapPath = path
	}
}

// WithRequireConfinement makes sandboxed launches fail instead of falling
// back to an unconfined child when the sandbox cannot be built
func WithRequireConfinement(require bool) EngineOption {
	return func(e *Engine) {
		e.requireConfinement = require
	}
}

// NewEngine creates an Engine for the current platform
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:    logger,
		bwrapPath: sandbox.DefaultBwrapBinary,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.backend = newBackend(e.logger, e.bwrapPath)
	return e
}

// NewEngineFromConfig creates an Engine from the sandbox section of the
// application configuration
func NewEngineFromConfig(logger *zap.Logger, cfg *config.Config) *Engine {
	return NewEngine(logger,
		WithBwrapPath(cfg.Sandbox.BwrapPath),
		WithRequireConfinement(cfg.Sandbox.RequireConfinement),
	)
}

// Backend names the compiled-in platform backend.
func (e *Engine) Backend() string {
	return e.backend.name()
}

// Launch starts a child process. On any failure it returns a nil handle and
// leaves no OS resources behind.
func (e *Engine) Launch(opts LaunchOptions) (*Handle, error) {
	argv := cmdline.Tokenize(opts.CommandLine)
	if len(argv) == 0 {
		return nil, ErrInvalidCommand
	}

	req := launchRequest{
		LaunchOptions:      opts,
		Argv:               argv,
		RequireConfinement: e.requireConfinement,
	}

	l, err := e.backend.launch(req)
	if err != nil {
		e.logger.Debug("process launch failed",
			zap.String("backend", e.backend.name()),
			zap.Strings("argv", argv),
			zap.Bool("sandbox", opts.Sandbox),
			zap.Error(err))
		return nil, fmt.Errorf("start %q: %w", argv[0], err)
	}

	if l.confinement == ConfinementDegraded {
		e.logger.Warn("sandbox unavailable, process runs unconfined",
			zap.String("id", opts.ID),
			zap.Int("pid", l.proc.pid()),
			zap.Error(l.degraded))
	}

	e.logger.Info("process launched",
		zap.String("backend", e.backend.name()),
		zap.Int("pid", l.proc.pid()),
		zap.String("command", shellquote.Join(l.argv...)),
		zap.String("cwd", opts.Cwd),
		zap.Stringer("confinement", l.confinement),
		zap.Bool("allow_network", opts.AllowNetwork))

	return newHandle(e.logger, l), nil
}
