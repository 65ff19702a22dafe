package process

import "errors"

var (
	// ErrInvalidCommand is returned when the command line tokenizes to nothing.
	ErrInvalidCommand = errors.New("invalid command: command line is empty")

	// ErrLaunchFailed wraps every OS-level failure to create the child,
	// including pipe allocation, fork and exec errors.
	ErrLaunchFailed = errors.New("launch failed")

	// ErrConfinementRequired is returned when a sandboxed launch was
	// requested, confinement is mandatory, and the sandbox could not be built.
	ErrConfinementRequired = errors.New("sandbox confinement required but unavailable")

	// ErrUnsupportedPlatform is returned by launches on platforms without a backend.
	ErrUnsupportedPlatform = errors.New("process launching is not supported on this platform")

	// ErrWouldBlock is returned by reads when no output is available yet.
	ErrWouldBlock = errors.New("no data available")

	// ErrHandleFreed is returned by operations on a handle after Free.
	ErrHandleFreed = errors.New("process handle already freed")
)
