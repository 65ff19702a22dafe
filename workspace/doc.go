// Package workspace exposes the process engine through a flat, handle-based
// surface with integer sentinels.
//
// Core is the boundary consumed by embedding hosts: every entry point
// validates its inputs, dispatches to the process engine, and folds the
// engine's errors into the values the boundary contract defines. Nothing
// here returns an error; failures are logged and reported as a nil handle
// or a sentinel.
//
// Usage:
//
//	core := workspace.New(logger, process.NewEngine(logger))
//	h := core.Start(&workspace.Options{CommandLine: "make test", Sandbox: true, ID: "ws-1"})
//	if h == nil {
//	    return errors.New("start failed")
//	}
//	defer core.Free(h)
//
//	buf := make([]byte, 4096)
//	var code int
//	for core.IsRunning(h, &code) {
//	    if n := core.ReadStdout(h, buf); n > 0 {
//	        os.Stdout.Write(buf[:n])
//	    }
//	}
package workspace
