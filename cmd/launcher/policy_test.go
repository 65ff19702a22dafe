package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/workspace/cmdline"
)

// execute runs the launcher with args from an empty directory, so only
// configuration defaults apply.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestPolicyText(t *testing.T) {
	stdout, _, err := execute(t, "policy", "--log-level", "error", "--", "python3", "-c", "print('hi there')")
	require.NoError(t, err)

	argv := cmdline.Tokenize(strings.TrimSpace(stdout))
	require.NotEmpty(t, argv)
	assert.Equal(t, []string{"bwrap", "--unshare-all", "--new-session", "--die-with-parent"}, argv[:4])
	assert.Contains(t, argv, "--unshare-net")
	assert.Equal(t, []string{"python3", "-c", "print('hi there')"}, argv[len(argv)-3:])
}

func TestPolicyYAML(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := execute(t, "policy", "--log-level", "error", "--format", "yaml", "--allow-net", "--cwd", dir, "--", "make", "test")
	require.NoError(t, err)

	var doc policyDocument
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "bwrap", doc.Binary)
	assert.True(t, doc.AllowNetwork)
	assert.Equal(t, filepath.Clean(dir), doc.HostCwd)
	assert.Equal(t, "/app", doc.SandboxCwd)
	assert.Equal(t, []string{"make", "test"}, doc.Argv[len(doc.Argv)-2:])
	assert.Contains(t, doc.Argv, "--share-net")
}

func TestPolicyErrors(t *testing.T) {
	t.Run("NoCommand", func(t *testing.T) {
		_, _, err := execute(t, "policy")
		assert.Equal(t, exitNoCommand, exitCode(err))
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		_, _, err := execute(t, "policy", "--format", "json", "--", "ls")
		require.Error(t, err)
		assert.Equal(t, exitFatal, exitCode(err))
	})

	t.Run("ConflictingNetworkFlags", func(t *testing.T) {
		_, _, err := execute(t, "policy", "--no-net", "--allow-net", "--", "ls")
		require.Error(t, err)
		assert.Equal(t, exitFatal, exitCode(err))
	})
}
