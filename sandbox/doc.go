// Package sandbox builds the confinement policies used to launch processes.
//
// The sandbox package does not start processes itself. It produces the
// inputs the process launcher needs to confine a child on each platform:
//
//   - On Linux, a bubblewrap (bwrap) argument vector that re-roots the child
//     on an empty tmpfs, exposes an allow-list of read-only host paths and
//     optionally isolates the network namespace. See BuildBwrapArgs.
//   - On Windows, a restricted token derived for an AppContainer profile
//     named after the logical workspace. See DeriveAppContainerToken.
//
// Policy construction is deterministic so that generated argument vectors
// can be compared byte-for-byte in tests and across releases.
//
// Usage:
//
//	argv := sandbox.WrapCommand(sandbox.BwrapPolicy{
//	    AllowNetwork: false,
//	    Cwd:          "/home/me/project",
//	}, []string{"python3", "main.py"})
package sandbox
