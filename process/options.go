package process

// LaunchOptions describes a child process to start.
type LaunchOptions struct {
	// CommandLine is tokenized with cmdline.Tokenize before execution.
	CommandLine string

	// Cwd is the working directory. Empty inherits the caller's directory.
	Cwd string

	// Sandbox confines the child with the platform sandbox.
	Sandbox bool

	// ID is the logical workspace identifier. It names the AppContainer
	// profile on Windows and must be stable per workspace.
	ID string

	// AllowNetwork keeps host network access for a sandboxed child.
	// Ignored when Sandbox is false.
	AllowNetwork bool

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string
}

// Channel selects one of the child's output streams.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

func (c Channel) String() string {
	switch c {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Confinement reports how a launched child is isolated.
type Confinement int

const (
	// ConfinementNone means the child runs unconfined, as requested.
	ConfinementNone Confinement = iota
	// ConfinementNamespaces means the child runs inside a bubblewrap sandbox.
	ConfinementNamespaces
	// ConfinementAppContainer means the child runs under an AppContainer token.
	ConfinementAppContainer
	// ConfinementDegraded means a sandbox was requested but could not be
	// built, and the child runs unconfined. Handle.DegradedReason has the cause.
	ConfinementDegraded
)

func (c Confinement) String() string {
	switch c {
	case ConfinementNone:
		return "none"
	case ConfinementNamespaces:
		return "namespaces"
	case ConfinementAppContainer:
		return "appcontainer"
	case ConfinementDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Confined reports whether the child is actually isolated.
func (c Confinement) Confined() bool {
	return c == ConfinementNamespaces || c == ConfinementAppContainer
}
