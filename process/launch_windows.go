//go:build windows

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/isdmx/workspace/sandbox"
)

// stillActive is the exit code GetExitCodeProcess reports for a live process.
const stillActive = 259

var procPeekNamedPipe = windows.NewLazySystemDLL("kernel32.dll").NewProc("PeekNamedPipe")

// windowsBackend launches children with CreateProcess, or with
// CreateProcessAsUser and an AppContainer token when sandboxed.
type windowsBackend struct {
	logger *zap.Logger
}

func newBackend(logger *zap.Logger, _ string) backend {
	return &windowsBackend{logger: logger}
}

func (*windowsBackend) name() string {
	return "windows-appcontainer"
}

func (b *windowsBackend) launch(req launchRequest) (launched, error) {
	confinement := ConfinementNone
	var (
		token    *sandbox.AppContainerToken
		degraded error
	)

	if req.Sandbox {
		t, err := sandbox.DeriveAppContainerToken(req.ID)
		switch {
		case err == nil:
			token = t
			defer token.Close()
			confinement = ConfinementAppContainer
		case req.RequireConfinement:
			return launched{}, fmt.Errorf("%w: %v", ErrConfinementRequired, err)
		default:
			confinement = ConfinementDegraded
			degraded = err
		}

		if !req.AllowNetwork {
			b.logger.Warn("network isolation is not implemented for AppContainer launches",
				zap.String("id", req.ID))
		}
	}

	proc, err := createProcess(req, token)
	if err != nil {
		return launched{}, err
	}

	return launched{
		proc:        proc,
		argv:        req.Argv,
		confinement: confinement,
		degraded:    degraded,
	}, nil
}

// createProcess starts the child with stdout and stderr redirected to new
// pipes. The parent keeps only the read ends.
func createProcess(req launchRequest, token *sandbox.AppContainerToken) (*windowsProcess, error) {
	// Windows programs parse their own command line, so the raw string is
	// passed through; tokenizing only validated that it is not empty.
	cmdLine, err := windows.UTF16FromString(req.CommandLine)
	if err != nil {
		return nil, fmt.Errorf("%w: encode command line: %v", ErrLaunchFailed, err)
	}

	var dir *uint16
	if req.Cwd != "" {
		if dir, err = windows.UTF16PtrFromString(req.Cwd); err != nil {
			return nil, fmt.Errorf("%w: encode cwd: %v", ErrLaunchFailed, err)
		}
	}

	var env *uint16
	if len(req.Env) > 0 {
		if env, err = environmentBlock(append(os.Environ(), req.Env...)); err != nil {
			return nil, fmt.Errorf("%w: encode environment: %v", ErrLaunchFailed, err)
		}
	}

	sa := &windows.SecurityAttributes{InheritHandle: 1}
	sa.Length = uint32(unsafe.Sizeof(*sa))

	var outRead, outWrite, errRead, errWrite windows.Handle
	if err := windows.CreatePipe(&outRead, &outWrite, sa, 0); err != nil {
		return nil, fmt.Errorf("%w: create stdout pipe: %v", ErrLaunchFailed, err)
	}
	if err := windows.CreatePipe(&errRead, &errWrite, sa, 0); err != nil {
		closeHandles(outRead, outWrite)
		return nil, fmt.Errorf("%w: create stderr pipe: %v", ErrLaunchFailed, err)
	}
	// The write ends are closed on every path below; the read ends only on failure.
	defer closeHandles(outWrite, errWrite)

	for _, h := range []windows.Handle{outRead, errRead} {
		if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, 0); err != nil {
			closeHandles(outRead, errRead)
			return nil, fmt.Errorf("%w: mark pipe non-inheritable: %v", ErrLaunchFailed, err)
		}
	}

	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		closeHandles(outRead, errRead)
		return nil, fmt.Errorf("%w: allocate attribute list: %v", ErrLaunchFailed, err)
	}
	defer attrs.Delete()

	inherited := []windows.Handle{outWrite, errWrite}
	if err := attrs.Update(
		windows.PROC_THREAD_ATTRIBUTE_HANDLE_LIST,
		unsafe.Pointer(&inherited[0]),
		uintptr(len(inherited))*unsafe.Sizeof(inherited[0]),
	); err != nil {
		closeHandles(outRead, errRead)
		return nil, fmt.Errorf("%w: restrict inherited handles: %v", ErrLaunchFailed, err)
	}

	si := &windows.StartupInfoEx{ProcThreadAttributeList: attrs.List()}
	si.Cb = uint32(unsafe.Sizeof(*si))
	si.Flags = windows.STARTF_USESTDHANDLES
	si.StdOutput = outWrite
	si.StdErr = errWrite

	flags := uint32(windows.CREATE_UNICODE_ENVIRONMENT | windows.EXTENDED_STARTUPINFO_PRESENT)
	var pi windows.ProcessInformation

	if token != nil {
		err = windows.CreateProcessAsUser(token.Token, nil, &cmdLine[0], nil, nil, true, flags, env, dir, &si.StartupInfo, &pi)
	} else {
		err = windows.CreateProcess(nil, &cmdLine[0], nil, nil, true, flags, env, dir, &si.StartupInfo, &pi)
	}
	if err != nil {
		closeHandles(outRead, errRead)
		return nil, fmt.Errorf("%w: create process %s: %v", ErrLaunchFailed, req.Argv[0], err)
	}
	_ = windows.CloseHandle(pi.Thread)

	return &windowsProcess{
		id:      int(pi.ProcessId),
		process: pi.Process,
		stdout:  outRead,
		stderr:  errRead,
	}, nil
}

// environmentBlock encodes env as a CREATE_UNICODE_ENVIRONMENT block.
func environmentBlock(env []string) (*uint16, error) {
	var block []uint16
	for _, kv := range env {
		u, err := windows.UTF16FromString(kv)
		if err != nil {
			return nil, err
		}
		block = append(block, u...)
	}
	block = append(block, 0)
	return &block[0], nil
}

func closeHandles(handles ...windows.Handle) {
	for _, h := range handles {
		if h != 0 && h != windows.InvalidHandle {
			_ = windows.CloseHandle(h)
		}
	}
}

// windowsProcess is a created child and the read ends of its output pipes.
type windowsProcess struct {
	id      int
	process windows.Handle
	stdout  windows.Handle
	stderr  windows.Handle
}

func (p *windowsProcess) pid() int {
	return p.id
}

func (p *windowsProcess) read(ch Channel, buf []byte) (int, error) {
	h := p.stdout
	if ch == Stderr {
		h = p.stderr
	}

	avail, err := peekNamedPipe(h)
	if err != nil {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("peek %s: %w", ch, err)
	}
	if avail == 0 {
		return 0, ErrWouldBlock
	}
	if uint64(len(buf)) > uint64(avail) {
		buf = buf[:avail]
	}

	var n uint32
	if err := windows.ReadFile(h, buf, &n, nil); err != nil && n == 0 {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) || errors.Is(err, windows.ERROR_NO_DATA) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("read %s: %w", ch, err)
	}
	return int(n), nil
}

// peekNamedPipe returns the number of bytes buffered in the pipe.
func peekNamedPipe(h windows.Handle) (uint32, error) {
	var avail uint32
	r, _, err := procPeekNamedPipe.Call(uintptr(h), 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	if r == 0 {
		return 0, err
	}
	return avail, nil
}

func (p *windowsProcess) poll() (bool, int, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(p.process, &code); err != nil {
		return true, ExitCodeUnknown, fmt.Errorf("query exit code of %d: %w", p.id, err)
	}
	if code == stillActive {
		return false, ExitCodeUnknown, nil
	}
	return true, int(int32(code)), nil
}

func (p *windowsProcess) terminate() error {
	return windows.TerminateProcess(p.process, 1)
}

// forceKill is the same call as terminate: TerminateProcess is already
// unconditional.
func (p *windowsProcess) forceKill() error {
	return windows.TerminateProcess(p.process, 1)
}

func (p *windowsProcess) release() error {
	return multierr.Combine(
		windows.CloseHandle(p.process),
		windows.CloseHandle(p.stdout),
		windows.CloseHandle(p.stderr),
	)
}
