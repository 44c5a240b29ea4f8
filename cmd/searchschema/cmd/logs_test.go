package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLogFile(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"time":"2026-01-02T10:00:00.000Z","level":"INFO","msg":"serve_starting","engine":"embedded"}`,
		`{"time":"2026-01-02T10:00:01.000Z","level":"ERROR","msg":"schema_startup_attempt_failed","attempt":1}`,
		`{"time":"2026-01-02T10:00:02.000Z","level":"INFO","msg":"schema_startup_complete","attempts":2}`,
	}
	path := filepath.Join(t.TempDir(), "searchschema.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestLogs_Filters(t *testing.T) {
	path := writeLogFile(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all",
			args: nil,
			want: []string{"serve_starting", "schema_startup_attempt_failed", "schema_startup_complete"},
		},
		{
			name:    "level",
			args:    []string{"--level", "error"},
			want:    []string{"schema_startup_attempt_failed"},
			notWant: []string{"serve_starting"},
		},
		{
			name:    "event",
			args:    []string{"--event", "schema_startup_complete"},
			want:    []string{"schema_startup_complete"},
			notWant: []string{"schema_startup_attempt_failed"},
		},
		{
			name:    "grep",
			args:    []string{"--grep", "embedded"},
			want:    []string{"serve_starting"},
			notWant: []string{"schema_startup_complete"},
		},
		{
			name:    "lines",
			args:    []string{"-n", "1"},
			want:    []string{"schema_startup_complete"},
			notWant: []string{"serve_starting"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: viewing the log with filters
			out, stderr, err := runCmd(t, append([]string{"logs", "--file", path}, tt.args...)...)

			// Then: only matching entries are printed
			require.NoError(t, err)
			assert.Contains(t, stderr, path)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, out, w)
			}
		})
	}
}

func TestLogs_InvalidPattern(t *testing.T) {
	path := writeLogFile(t)

	_, _, err := runCmd(t, "logs", "--file", path, "--grep", "[")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid grep pattern")
}

func TestLogs_MissingFile(t *testing.T) {
	_, _, err := runCmd(t, "logs", "--file", filepath.Join(t.TempDir(), "none.log"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}
