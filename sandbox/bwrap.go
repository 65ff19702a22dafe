package sandbox

import "github.com/isdmx/workspace/cmdline"

// DefaultBwrapBinary is the bubblewrap executable looked up on PATH when
// BwrapPolicy.Binary is empty.
const DefaultBwrapBinary = "bwrap"

// SandboxWorkdir is the neutral in-sandbox path the host working directory
// is bound to. The host path is never exposed inside the sandbox.
const SandboxWorkdir = "/app"

// BwrapPolicy describes a bubblewrap confinement.
type BwrapPolicy struct {
	// Binary is the bwrap executable. Empty means DefaultBwrapBinary.
	Binary string

	// AllowNetwork shares the host network namespace when true. Otherwise
	// the child gets a fresh network namespace with no connectivity.
	AllowNetwork bool

	// Cwd is the host directory to expose at SandboxWorkdir. Empty means
	// the child starts in the sandbox root.
	Cwd string
}

// optionalReadOnlyBinds are bound read-only when present on the host and
// silently skipped otherwise. They let common package managers and
// language runtimes resolve without exposing the rest of the filesystem.
var optionalReadOnlyBinds = []string{
	"/etc/resolv.conf",
	"/etc/hosts",
	"/etc/ssl/certs",
	"/etc/alternatives",
	"/etc/environment",
	"/opt",
	"/snap",
	"/usr/local",
}

// mergedUsrLinks recreates the merged-usr layout on top of the read-only /usr.
var mergedUsrLinks = [][2]string{
	{"usr/lib", "/lib"},
	{"usr/lib64", "/lib64"},
	{"usr/bin", "/bin"},
	{"usr/sbin", "/sbin"},
}

// BuildBwrapArgs returns the bwrap invocation prefix for policy, starting
// with the bwrap binary itself. The order of the generated flags is fixed.
func BuildBwrapArgs(policy BwrapPolicy) []string {
	binary := policy.Binary
	if binary == "" {
		binary = DefaultBwrapBinary
	}

	args := []string{binary}

	// Namespaces and session.
	args = append(args, "--unshare-all", "--new-session", "--die-with-parent")

	// Empty root, nothing from the host is visible unless bound below.
	args = append(args, "--tmpfs", "/")

	args = append(args, "--ro-bind", "/usr", "/usr")
	for _, link := range mergedUsrLinks {
		args = append(args, "--symlink", link[0], link[1])
	}

	args = append(args, "--proc", "/proc", "--dev", "/dev")
	args = append(args, "--tmpfs", "/tmp")

	for _, path := range optionalReadOnlyBinds {
		args = append(args, "--ro-bind-try", path, path)
	}

	if policy.AllowNetwork {
		args = append(args, "--share-net")
	} else {
		args = append(args, "--unshare-net")
	}

	args = append(args, "--cap-drop", "ALL")

	if policy.Cwd != "" {
		args = append(args, "--bind", policy.Cwd, SandboxWorkdir, "--chdir", SandboxWorkdir)
	}

	return args
}

// WrapCommand prepends the bwrap invocation for policy to argv. The
// command is appended verbatim.
func WrapCommand(policy BwrapPolicy, argv []string) []string {
	prefix := BuildBwrapArgs(policy)
	wrapped := make([]string, 0, len(prefix)+len(argv))
	wrapped = append(wrapped, prefix...)
	return append(wrapped, argv...)
}

// Policy tokenizes commandLine and wraps it for policy. It fails with
// ErrEmptyCommand when the command line has no tokens.
func Policy(commandLine string, policy BwrapPolicy) ([]string, error) {
	argv := cmdline.Tokenize(commandLine)
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return WrapCommand(policy, argv), nil
}
