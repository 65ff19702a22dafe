package process

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/workspace/config"
)

// stubBackend records launch requests and returns a canned result
type stubBackend struct {
	requests []launchRequest
	result   launched
	err      error
}

func (*stubBackend) name() string { return "stub" }

func (s *stubBackend) launch(req launchRequest) (launched, error) {
	s.requests = append(s.requests, req)
	return s.result, s.err
}

func newStubEngine(t *testing.T, stub *stubBackend, opts ...EngineOption) *Engine {
	t.Helper()
	e := NewEngine(zaptest.NewLogger(t), opts...)
	e.backend = stub
	return e
}

func TestEngineLaunchRejectsEmptyCommand(t *testing.T) {
	stub := &stubBackend{}
	e := newStubEngine(t, stub)

	for _, commandLine := range []string{"", "   ", "\t \t", `''`} {
		h, err := e.Launch(LaunchOptions{CommandLine: commandLine})
		assert.Nil(t, h, "command line %q", commandLine)
		assert.ErrorIs(t, err, ErrInvalidCommand, "command line %q", commandLine)
	}
	assert.Empty(t, stub.requests, "backend must not be reached")
}

func TestEngineLaunchPassesTokenizedRequest(t *testing.T) {
	stub := &stubBackend{
		result: launched{
			proc:        &fakeProcess{id: 7, exitAfter: 1},
			argv:        []string{"echo", "a b"},
			confinement: ConfinementNamespaces,
		},
	}
	e := newStubEngine(t, stub, WithRequireConfinement(true))

	h, err := e.Launch(LaunchOptions{
		CommandLine:  `echo "a b"`,
		Cwd:          "/work",
		Sandbox:      true,
		ID:           "ws",
		AllowNetwork: true,
		Env:          []string{"A=1"},
	})
	require.NoError(t, err)
	require.NotNil(t, h)

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Equal(t, []string{"echo", "a b"}, req.Argv)
	assert.Equal(t, "/work", req.Cwd)
	assert.True(t, req.Sandbox)
	assert.Equal(t, "ws", req.ID)
	assert.True(t, req.AllowNetwork)
	assert.Equal(t, []string{"A=1"}, req.Env)
	assert.True(t, req.RequireConfinement)

	assert.Equal(t, 7, h.Pid())
	assert.True(t, h.Running())
	assert.Equal(t, ConfinementNamespaces, h.Confinement())
}

func TestEngineLaunchFailureReturnsNoHandle(t *testing.T) {
	stub := &stubBackend{err: errors.Join(ErrLaunchFailed, errors.New("no such file"))}
	e := newStubEngine(t, stub)

	h, err := e.Launch(LaunchOptions{CommandLine: "missing-binary"})
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrLaunchFailed)
	assert.Contains(t, err.Error(), "missing-binary")
}

func TestEngineLaunchDegraded(t *testing.T) {
	reason := errors.New("profile creation failed")
	stub := &stubBackend{
		result: launched{
			proc:        &fakeProcess{id: 9, exitAfter: 1},
			argv:        []string{"cmd"},
			confinement: ConfinementDegraded,
			degraded:    reason,
		},
	}
	e := newStubEngine(t, stub)

	h, err := e.Launch(LaunchOptions{CommandLine: "cmd", Sandbox: true, ID: "ws"})
	require.NoError(t, err)
	assert.Equal(t, ConfinementDegraded, h.Confinement())
	assert.False(t, h.Confinement().Confined())
	assert.Equal(t, reason, h.DegradedReason())
}

func TestNewEngineFromConfig(t *testing.T) {
	cfg := &config.Config{
		Sandbox: config.SandboxConfig{
			BwrapPath:          "/usr/local/bin/bwrap",
			RequireConfinement: true,
		},
	}

	e := NewEngineFromConfig(zaptest.NewLogger(t), cfg)
	require.NotNil(t, e)
	assert.Equal(t, "/usr/local/bin/bwrap", e.bwrapPath)
	assert.True(t, e.requireConfinement)
	assert.NotEmpty(t, e.Backend())
}
