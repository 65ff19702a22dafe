package workspace

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/isdmx/workspace/process"
)

// Read results other than a positive byte count.
const (
	// ReadWouldBlock means the channel has no data right now.
	ReadWouldBlock = -1
	// ReadEndOfStream means the channel is closed and drained, the read
	// failed, or the handle or buffer was unusable.
	ReadEndOfStream = 0
)

// ErrNoOptions is returned by Launch when no options are given.
var ErrNoOptions = errors.New("workspace: no start options")

// Options are the start parameters accepted at the boundary.
type Options struct {
	CommandLine  string
	Cwd          string
	Sandbox      bool
	ID           string
	AllowNetwork bool
	Env          []string
}

// Core dispatches boundary calls to a process engine.
type Core struct {
	logger *zap.Logger
	engine *process.Engine
}

// New creates a Core backed by engine.
func New(logger *zap.Logger, engine *process.Engine) *Core {
	return &Core{
		logger: logger,
		engine: engine,
	}
}

// Start launches a child. It returns nil when opts is nil, when the command
// line is empty, or when the OS refuses to create the process.
func (c *Core) Start(opts *Options) *process.Handle {
	h, err := c.Launch(opts)
	if err != nil {
		c.logger.Warn("start failed", zap.Error(err))
		return nil
	}
	return h
}

// Launch is Start with the failure cause returned to the caller.
func (c *Core) Launch(opts *Options) (*process.Handle, error) {
	if opts == nil {
		return nil, ErrNoOptions
	}

	return c.engine.Launch(process.LaunchOptions{
		CommandLine:  opts.CommandLine,
		Cwd:          opts.Cwd,
		Sandbox:      opts.Sandbox,
		ID:           opts.ID,
		AllowNetwork: opts.AllowNetwork,
		Env:          opts.Env,
	})
}

// ReadStdout copies available stdout bytes into buf. See ReadWouldBlock and
// ReadEndOfStream for the non-positive results.
func (c *Core) ReadStdout(h *process.Handle, buf []byte) int {
	return c.read(h, process.Stdout, buf)
}

// ReadStderr copies available stderr bytes into buf. See ReadStdout.
func (c *Core) ReadStderr(h *process.Handle, buf []byte) int {
	return c.read(h, process.Stderr, buf)
}

func (c *Core) read(h *process.Handle, ch process.Channel, buf []byte) int {
	if h == nil || len(buf) == 0 {
		return ReadEndOfStream
	}

	n, err := h.Read(ch, buf)
	switch {
	case n > 0:
		return n
	case errors.Is(err, process.ErrWouldBlock):
		return ReadWouldBlock
	case err == nil, errors.Is(err, io.EOF):
		return ReadEndOfStream
	default:
		c.logger.Debug("read failed",
			zap.Stringer("channel", ch),
			zap.Error(err))
		return ReadEndOfStream
	}
}

// IsRunning polls the child and stores its exit code in exitCode when it is
// non-nil. The code is process.ExitCodeUnknown while the child runs and for
// a nil handle.
func (c *Core) IsRunning(h *process.Handle, exitCode *int) bool {
	running, code := false, process.ExitCodeUnknown
	if h != nil {
		running, code = h.Poll()
	}
	if exitCode != nil {
		*exitCode = code
	}
	return running
}

// Kill requests termination. The result is observed through IsRunning.
func (c *Core) Kill(h *process.Handle) {
	if h == nil {
		return
	}
	if err := h.Kill(); err != nil {
		c.logger.Debug("kill failed", zap.Int("pid", h.Pid()), zap.Error(err))
	}
}

// Free releases the handle's OS resources. h must not be used afterwards.
func (c *Core) Free(h *process.Handle) {
	if h == nil {
		return
	}
	if err := h.Free(); err != nil {
		c.logger.Debug("free failed", zap.Int("pid", h.Pid()), zap.Error(err))
	}
}
