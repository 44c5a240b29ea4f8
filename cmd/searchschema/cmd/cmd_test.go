package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config file using an embedded store under a
// temp dir and returns its path.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := "connect:\n" +
		"  type: embedded\n" +
		"  index_prefix: test\n" +
		"  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"schema_manager:\n" +
		"  retry:\n" +
		"    max_retries: 0\n" +
		"    jitter: false\n" +
		extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// runCmd executes the root command with args and returns stdout and stderr.
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cmd := NewRootCmd()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
