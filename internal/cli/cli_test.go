package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLI(t *testing.T) {
	root := BuildCLI()
	assert.Equal(t, "raftd", root.Use)

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["status"])
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()
	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestShowStatusValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  id: A
  address: 127.0.0.1:7000
cluster:
  peers:
    B: 127.0.0.1:7001
`), 0644))

	assert.NoError(t, showStatus(path))
}

func TestShowStatusMissingFile(t *testing.T) {
	assert.Error(t, showStatus("/nonexistent/config.yaml"))
}
