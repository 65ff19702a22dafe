package process

// launchRequest is what the engine hands to the platform backend after
// validating and tokenizing the caller's options.
type launchRequest struct {
	LaunchOptions

	// Argv is the tokenized command line, never empty.
	Argv []string

	// RequireConfinement turns a sandbox that cannot be built into a
	// launch failure instead of an unconfined launch.
	RequireConfinement bool
}

// launched is a successfully created child as reported by a backend.
type launched struct {
	proc osProcess

	// argv is the vector actually executed, including any sandbox wrapper.
	argv []string

	confinement Confinement
	degraded    error

	// signalCodes reports whether negative exit codes from this backend
	// encode termination by signal.
	signalCodes bool
}

// backend creates children on one platform. Exactly one implementation is
// compiled in.
type backend interface {
	name() string
	launch(req launchRequest) (launched, error)
}

// osProcess is the backend-specific payload of a Handle: the process
// identity and the read ends of its output pipes.
type osProcess interface {
	pid() int

	// read copies available output from ch into p without blocking. It
	// returns ErrWouldBlock when nothing is buffered and io.EOF once the
	// write side is closed and drained.
	read(ch Channel, p []byte) (int, error)

	// poll checks for termination without blocking. When exited is true,
	// code is the decoded exit status. err carries diagnostics for a
	// status query that failed; the child is then reported as exited
	// with ExitCodeUnknown.
	poll() (exited bool, code int, err error)

	// terminate asks the child to stop; forceKill stops it unconditionally.
	terminate() error
	forceKill() error
	release() error
}
