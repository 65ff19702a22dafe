//go:build linux

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/isdmx/workspace/sandbox"
)

// linuxBackend launches children with fork/exec, wrapping sandboxed ones
// in bubblewrap.
type linuxBackend struct {
	logger    *zap.Logger
	bwrapPath string
}

func newBackend(logger *zap.Logger, bwrapPath string) backend {
	return &linuxBackend{logger: logger, bwrapPath: bwrapPath}
}

func (*linuxBackend) name() string {
	return "linux-namespaces"
}

func (b *linuxBackend) launch(req launchRequest) (launched, error) {
	argv := req.Argv
	dir := req.Cwd
	confinement := ConfinementNone

	if req.Sandbox {
		argv = sandbox.WrapCommand(sandbox.BwrapPolicy{
			Binary:       b.bwrapPath,
			AllowNetwork: req.AllowNetwork,
			Cwd:          req.Cwd,
		}, req.Argv)
		// bwrap binds the working directory and chdirs inside the sandbox.
		dir = ""
		confinement = ConfinementNamespaces
	}

	path, err := lookPath(argv[0])
	if err != nil {
		return launched{}, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	env := os.Environ()
	if len(req.Env) > 0 {
		env = append(env, req.Env...)
	}

	proc, err := spawn(path, argv, dir, env)
	if err != nil {
		return launched{}, err
	}

	return launched{
		proc:        proc,
		argv:        argv,
		confinement: confinement,
		signalCodes: true,
	}, nil
}

// lookPath resolves name the way execvp does: names containing a slash are
// used as given, anything else is searched in PATH.
func lookPath(name string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	path, err := exec.LookPath(name)
	if errors.Is(err, exec.ErrDot) {
		return path, nil
	}
	return path, err
}

// spawn creates the child with stdout and stderr connected to fresh pipes.
//
// syscall.ForkExec reports chdir and exec failures through a close-on-exec
// status pipe: the child writes its errno before exiting, and a successful
// exec closes the pipe so the parent's blocking read returns end-of-stream.
// A failed child is reaped before ForkExec returns, so an error here never
// leaves a process behind.
func spawn(path string, argv []string, dir string, env []string) (*linuxProcess, error) {
	var outPipe, errPipe [2]int

	if err := unix.Pipe2(outPipe[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("%w: create stdout pipe: %v", ErrLaunchFailed, err)
	}
	if err := unix.Pipe2(errPipe[:], unix.O_CLOEXEC); err != nil {
		closeFDs(outPipe[0], outPipe[1])
		return nil, fmt.Errorf("%w: create stderr pipe: %v", ErrLaunchFailed, err)
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		closeFDs(outPipe[0], outPipe[1], errPipe[0], errPipe[1])
		return nil, fmt.Errorf("%w: open %s: %v", ErrLaunchFailed, os.DevNull, err)
	}
	defer devNull.Close()

	pid, err := syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Dir:   dir,
		Env:   env,
		Files: []uintptr{devNull.Fd(), uintptr(outPipe[1]), uintptr(errPipe[1])},
	})

	// The child owns its own copies of the write ends.
	closeFDs(outPipe[1], errPipe[1])

	if err != nil {
		closeFDs(outPipe[0], errPipe[0])
		return nil, fmt.Errorf("%w: exec %s: %v", ErrLaunchFailed, argv[0], err)
	}

	for _, fd := range []int{outPipe[0], errPipe[0]} {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Kill(pid, unix.SIGKILL)
			var ws unix.WaitStatus
			_, _ = unix.Wait4(pid, &ws, 0, nil)
			closeFDs(outPipe[0], errPipe[0])
			return nil, fmt.Errorf("%w: set non-blocking: %v", ErrLaunchFailed, err)
		}
	}

	return &linuxProcess{
		id:     pid,
		stdout: outPipe[0],
		stderr: errPipe[0],
	}, nil
}

func closeFDs(fds ...int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// linuxProcess is a forked child and the read ends of its output pipes.
type linuxProcess struct {
	id     int
	stdout int
	stderr int
}

func (p *linuxProcess) pid() int {
	return p.id
}

func (p *linuxProcess) read(ch Channel, buf []byte) (int, error) {
	fd := p.stdout
	if ch == Stderr {
		fd = p.stderr
	}

	n, err := unix.Read(fd, buf)
	switch {
	case n > 0:
		return n, nil
	case err == nil:
		return 0, io.EOF
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, ErrWouldBlock
	default:
		return 0, fmt.Errorf("read %s: %w", ch, err)
	}
}

func (p *linuxProcess) poll() (bool, int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(p.id, &ws, unix.WNOHANG, nil)
	switch {
	case errors.Is(err, unix.EINTR):
		return false, ExitCodeUnknown, nil
	case err != nil:
		return true, ExitCodeUnknown, fmt.Errorf("wait4 %d: %w", p.id, err)
	case wpid == 0:
		return false, ExitCodeUnknown, nil
	}
	return true, decodeWaitStatus(ws), nil
}

// decodeWaitStatus maps a reaped child's status to an exit code.
func decodeWaitStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return SignalExitCode(int(ws.Signal()))
	default:
		return ExitCodeUnknown
	}
}

func (p *linuxProcess) terminate() error {
	err := unix.Kill(p.id, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *linuxProcess) forceKill() error {
	err := unix.Kill(p.id, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (p *linuxProcess) release() error {
	return multierr.Combine(
		unix.Close(p.stdout),
		unix.Close(p.stderr),
	)
}
