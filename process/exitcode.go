package process

const (
	// ExitCodeUnknown is reported while the child runs, and when its
	// termination status cannot be classified.
	ExitCodeUnknown = -1

	// signalExitBase offsets signal numbers into negative exit codes.
	signalExitBase = -128
)

// SignalExitCode encodes termination by signal signo as a negative exit
// code, distinct from every normal 0-255 exit status.
func SignalExitCode(signo int) int {
	return signalExitBase + signo
}

// ExitSignal decodes an exit code produced by SignalExitCode. ok is false
// for normal exit statuses and for ExitCodeUnknown. Only codes from a
// backend that encodes signals are meaningful here; Handle.Signal applies
// that check.
func ExitSignal(code int) (signo int, ok bool) {
	if code >= 0 || code == ExitCodeUnknown || code <= signalExitBase {
		return 0, false
	}
	return code - signalExitBase, true
}
