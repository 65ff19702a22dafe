package process

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stopPollInterval is how often Stop checks whether the child is gone.
const stopPollInterval = 10 * time.Millisecond

// Handle is a launched child process. It is created only for children
// whose creation and exec succeeded, and it owns the process reference and
// both output pipes until Free.
type Handle struct {
	logger *zap.Logger
	proc   osProcess

	argv        []string
	confinement Confinement
	degraded    error

	signalCodes bool

	running  bool
	exitCode int
	freed    bool
}

func newHandle(logger *zap.Logger, l launched) *Handle {
	return &Handle{
		logger:      logger,
		proc:        l.proc,
		argv:        l.argv,
		confinement: l.confinement,
		degraded:    l.degraded,
		signalCodes: l.signalCodes,
		running:     true,
		exitCode:    ExitCodeUnknown,
	}
}

// Pid returns the OS process id of the child. For sandboxed launches on
// Linux this is the bubblewrap process.
func (h *Handle) Pid() int {
	return h.proc.pid()
}

// Argv returns the argument vector that was executed, including any
// sandbox wrapper.
func (h *Handle) Argv() []string {
	return append([]string(nil), h.argv...)
}

// Confinement reports how the child is isolated.
func (h *Handle) Confinement() Confinement {
	return h.confinement
}

// DegradedReason returns why a requested sandbox was not applied, or nil.
func (h *Handle) DegradedReason() error {
	return h.degraded
}

// Read copies buffered output of ch into p without blocking.
//
// It returns n > 0 when data was copied, ErrWouldBlock when the child has
// not produced anything new, and io.EOF once the stream is closed and
// drained. io.EOF repeats on every later call. Output written before the
// child exited stays readable until Free.
func (h *Handle) Read(ch Channel, p []byte) (int, error) {
	if h.freed {
		return 0, ErrHandleFreed
	}
	if len(p) == 0 {
		return 0, nil
	}
	return h.proc.read(ch, p)
}

// ReadStdout reads from the child's standard output. See Read.
func (h *Handle) ReadStdout(p []byte) (int, error) {
	return h.Read(Stdout, p)
}

// ReadStderr reads from the child's standard error. See Read.
func (h *Handle) ReadStderr(p []byte) (int, error) {
	return h.Read(Stderr, p)
}

// Poll reports whether the child is still running. Once it has exited,
// the exit code is frozen and every later call returns the same values.
//
// Normal termination yields the process exit status. Termination by a
// signal yields SignalExitCode(signo). An unclassifiable status yields
// ExitCodeUnknown.
func (h *Handle) Poll() (running bool, exitCode int) {
	if h.freed || !h.running {
		return false, h.exitCode
	}

	exited, code, err := h.proc.poll()
	if !exited {
		return true, h.exitCode
	}

	h.running = false
	h.exitCode = code

	if err != nil {
		h.logger.Warn("process status query failed",
			zap.Int("pid", h.proc.pid()),
			zap.Error(err))
	}
	h.logger.Debug("process exited",
		zap.Int("pid", h.proc.pid()),
		zap.Int("exit_code", code))

	return false, code
}

// Running reports the last observed liveness without querying the OS.
func (h *Handle) Running() bool {
	return h.running
}

// ExitCode reports the last observed exit code without querying the OS.
func (h *Handle) ExitCode() int {
	return h.exitCode
}

// Signal reports the signal that terminated the child. ok is false while
// the child runs, after a normal exit, and on backends whose exit codes do
// not encode signals.
func (h *Handle) Signal() (signo int, ok bool) {
	if h.running || !h.signalCodes {
		return 0, false
	}
	return ExitSignal(h.exitCode)
}

// Kill asks the child to stop. It does not wait: callers observe the
// result with Poll. Kill is a no-op once the child is known to have exited.
func (h *Handle) Kill() error {
	if h.freed {
		return ErrHandleFreed
	}
	if !h.running {
		return nil
	}

	h.logger.Debug("terminating process", zap.Int("pid", h.proc.pid()))
	return h.proc.terminate()
}

// Stop terminates the child and waits until it has been reaped, so that
// Free leaves no zombie behind. It sends the same request as Kill first and
// forces termination once grace has elapsed. It returns the final exit
// code, or ctx.Err() if the child is still alive when ctx is done.
func (h *Handle) Stop(ctx context.Context, grace time.Duration) (int, error) {
	if h.freed {
		return ExitCodeUnknown, ErrHandleFreed
	}
	if running, code := h.Poll(); !running {
		return code, nil
	}
	if err := h.Kill(); err != nil {
		return ExitCodeUnknown, err
	}

	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	escalate := time.NewTimer(grace)
	defer escalate.Stop()

	for {
		if running, code := h.Poll(); !running {
			return code, nil
		}

		select {
		case <-ctx.Done():
			return ExitCodeUnknown, ctx.Err()
		case <-escalate.C:
			h.logger.Debug("forcing process termination",
				zap.Int("pid", h.proc.pid()),
				zap.Duration("grace", grace))
			if err := h.proc.forceKill(); err != nil {
				return ExitCodeUnknown, err
			}
		case <-ticker.C:
		}
	}
}

// Free releases the process reference and both output pipes. It does not
// stop a running child. Free must be called exactly once; later calls
// return ErrHandleFreed.
func (h *Handle) Free() error {
	if h.freed {
		return ErrHandleFreed
	}
	h.freed = true

	h.logger.Debug("releasing process handle",
		zap.Int("pid", h.proc.pid()),
		zap.Bool("running", h.running))
	return h.proc.release()
}
