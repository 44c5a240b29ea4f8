package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/pkg/version"
)

func TestStatus_BeforeMigrate(t *testing.T) {
	// Given: an empty embedded store
	path := writeTestConfig(t, "")

	// When: checking status
	out, _, err := runCmd(t, "--config", path, "status")

	// Then: the schema is reported missing
	require.NoError(t, err)
	assert.Contains(t, out, "Schema Status: test")
	assert.Contains(t, out, "not ready")
	assert.Contains(t, out, "not recorded")
	assert.Contains(t, out, "✗ test-analytics-")
}

func TestStatus_CheckFailsWhenNotReady(t *testing.T) {
	path := writeTestConfig(t, "")

	_, _, err := runCmd(t, "--config", path, "status", "--check")

	assert.ErrorIs(t, err, errNotReady)
}

func TestMigrate_ThenStatusIsReady(t *testing.T) {
	// Given: an empty embedded store
	path := writeTestConfig(t, "")

	// When: migrating
	out, _, err := runCmd(t, "--config", path, "migrate")

	// Then: one successful pass is shown and the version recorded
	require.NoError(t, err)
	assert.Contains(t, out, "Schema passes")
	assert.Contains(t, out, "last succeeded")
	assert.Contains(t, out, "Schema is up to date")

	out, _, err = runCmd(t, "--config", path, "status", "--json", "--check")
	require.NoError(t, err)

	var st struct {
		Ready          bool     `json:"ready"`
		SchemaVersion  string   `json:"schema_version"`
		MissingIndices []string `json:"missing_indices"`
		Resources      []string `json:"resources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Ready)
	assert.Equal(t, version.Short(), st.SchemaVersion)
	assert.Empty(t, st.MissingIndices)
	assert.NotEmpty(t, st.Resources)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	path := writeTestConfig(t, "")

	_, _, err := runCmd(t, "--config", path, "migrate")
	require.NoError(t, err)
	out, _, err := runCmd(t, "--config", path, "migrate")

	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
	assert.NotContains(t, out, "created=")
}

func TestMigrate_DisabledSchemaManagement(t *testing.T) {
	// Given: schema management switched off
	path := writeTestConfig(t, "")
	t.Setenv("SEARCHSCHEMA_CREATE_SCHEMA", "false")

	// When: migrating
	out, _, err := runCmd(t, "--config", path, "migrate")

	// Then: nothing is created
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")
}

func TestTruncate_RequiresConfirmation(t *testing.T) {
	path := writeTestConfig(t, "")

	_, _, err := runCmd(t, "--config", path, "truncate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestTruncate_AfterMigrate(t *testing.T) {
	// Given: a migrated store
	path := writeTestConfig(t, "")
	_, _, err := runCmd(t, "--config", path, "migrate")
	require.NoError(t, err)

	// When: truncating
	out, _, err := runCmd(t, "--config", path, "truncate", "--yes")

	// Then: the managed indices are listed
	require.NoError(t, err)
	assert.Contains(t, out, "Truncated")
	assert.Contains(t, out, "- test-analytics-")
}

func TestDeleteArchived_NothingArchived(t *testing.T) {
	path := writeTestConfig(t, "")
	_, _, err := runCmd(t, "--config", path, "migrate")
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"delete", []string{"--config", path, "delete-archived"}},
		{"dry run", []string{"--config", path, "delete-archived", "--dry-run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := runCmd(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, "No archived indices")
		})
	}
}

func TestMigrate_WritesProfiles(t *testing.T) {
	// Given: a config and profile destinations
	path := writeTestConfig(t, "")
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	// When: migrating with profiling enabled
	_, _, err := runCmd(t, "--config", path, "migrate", "--cpu-profile", cpu, "--mem-profile", heap)

	// Then: both profiles are written
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
