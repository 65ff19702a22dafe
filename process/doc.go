// Package process launches supervised child processes and manages their
// lifecycle through an opaque Handle.
//
// A launch tokenizes the command line, optionally wraps it in the platform
// sandbox, and creates the child with its stdout and stderr connected to
// non-blocking pipes. Exactly one backend is compiled in: a Linux backend
// that confines children with bubblewrap namespaces, and a Windows backend
// that confines them with an AppContainer token. Other platforms build an
// unsupported backend that refuses every launch.
//
// The model is poll-driven. The engine starts no goroutines; callers read
// output and poll liveness from their own loop until the child exits, then
// release the handle with Free:
//
//	h, err := engine.Launch(process.LaunchOptions{CommandLine: "make test"})
//	if err != nil {
//	    return err
//	}
//	defer h.Free()
//	buf := make([]byte, 4096)
//	for {
//	    n, err := h.ReadStdout(buf)
//	    ...
//	    if running, code := h.Poll(); !running {
//	        ...
//	    }
//	}
//
// A Handle has a single owner and must not be used from several goroutines
// without external synchronization.
package process
