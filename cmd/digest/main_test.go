package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHelpListsCommands(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	for _, name := range []string{"run", "resume", "batch"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestRunRequiresFeedURL(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})
	assert.Error(t, cmd.Execute())
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.toml")
	require.NoError(t, os.WriteFile(path, []byte("[research]\nfailure_policy = \"shrug\"\n"), 0o644))
	t.Setenv("GUEST_FAILURE_POLICY", "")

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "batch", filepath.Join(t.TempDir(), "feeds.txt")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_policy")
}
