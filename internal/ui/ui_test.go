package ui

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/schema"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

func TestIsTTY_NonFileWriter(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestNoColorFor(t *testing.T) {
	// A buffer is never a terminal, so output is always plain.
	assert.True(t, NoColorFor(&bytes.Buffer{}, false))
	assert.True(t, NoColorFor(os.Stdout, true))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		width  int
		want   string
	}{
		{"empty", nil, 3, "   "},
		{"scaled to peak", []float64{0, 7, 14}, 3, "▁▄█"},
		{"keeps most recent", []float64{14, 0, 7, 14}, 3, "▁▄█"},
		{"padded", []float64{5}, 3, "  █"},
		{"zero width", []float64{1}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.values, tt.width))
		})
	}
}

func sampleStatus() StatusInfo {
	return StatusInfo{
		IndexPrefix:   "analytics",
		Engine:        "embedded",
		SchemaVersion: "3.14.0",
		Resources: []string{
			"analytics-analytics-report-1.1.0_",
			"analytics-analytics-tenant-1.0.0_",
		},
		Status: schema.Status{
			Enabled:        true,
			Ready:          false,
			MissingIndices: []string{"analytics-analytics-report-1.1.0_"},
			PendingFields: map[string][]string{
				"analytics-analytics-tenant-1.0.0_": {"region", "tier"},
			},
			ValidationError: "found 2 distinct differences",
			ErrorCode:       "ERR_402_SCHEMA_AMBIGUOUS",
		},
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given a status with a missing index, pending fields and an error
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	// When it is rendered without color
	require.NoError(t, r.Render(sampleStatus()))

	// Then every part is reported
	out := buf.String()
	assert.Contains(t, out, "Schema Status: analytics")
	assert.Contains(t, out, "3.14.0")
	assert.Contains(t, out, "not ready")
	assert.Contains(t, out, "✗ analytics-analytics-report-1.1.0_")
	assert.Contains(t, out, "✓ analytics-analytics-tenant-1.0.0_")
	assert.Contains(t, out, "analytics-analytics-tenant-1.0.0_: region, tier")
	assert.Contains(t, out, "ERR_402_SCHEMA_AMBIGUOUS")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_Render_UnrecordedVersion(t *testing.T) {
	var buf bytes.Buffer
	info := StatusInfo{IndexPrefix: "analytics", Status: schema.Status{Enabled: false, Ready: true}}

	require.NoError(t, NewStatusRenderer(&buf, true).Render(info))

	assert.Contains(t, buf.String(), "not recorded")
	assert.Contains(t, buf.String(), "disabled")
	assert.Contains(t, buf.String(), "ready")
}

func TestStatusRenderer_RenderJSON_InlinesStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStatusRenderer(&buf, true).RenderJSON(sampleStatus()))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "analytics", parsed["index_prefix"])
	assert.Equal(t, false, parsed["ready"])
	assert.Equal(t, "ERR_402_SCHEMA_AMBIGUOUS", parsed["error_code"])
	assert.Len(t, parsed["resources"], 2)
}

func TestHistoryRenderer_Render(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	passes := []telemetry.Pass{
		{Attempt: 1, StartedAt: start, Duration: 40 * time.Millisecond, ErrorCode: "ERR_302_STORE_UNAVAILABLE", Error: "connection refused"},
		{Attempt: 2, StartedAt: start.Add(time.Second), Duration: 120 * time.Millisecond, Succeeded: true, Created: []string{"a", "b"}, FieldsAdded: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, NewHistoryRenderer(&buf, true).Render(passes))

	out := buf.String()
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "failed ERR_302_STORE_UNAVAILABLE connection refused")
	assert.Contains(t, out, "created=2 fields_added=3")
	assert.Contains(t, out, "2 passes, 1 failed, last succeeded")
}

func TestHistoryRenderer_Render_LastFailed(t *testing.T) {
	passes := []telemetry.Pass{{Attempt: 1, ErrorCode: "ERR_403_SCHEMA_INCOMPATIBLE"}}

	var buf bytes.Buffer
	require.NoError(t, NewHistoryRenderer(&buf, true).Render(passes))

	assert.Contains(t, buf.String(), "last failed with ERR_403_SCHEMA_INCOMPATIBLE")
}

func TestHistoryRenderer_Empty(t *testing.T) {
	var buf bytes.Buffer
	r := NewHistoryRenderer(&buf, true)

	require.NoError(t, r.Render(nil))
	assert.Contains(t, buf.String(), "No schema passes recorded.")

	buf.Reset()
	require.NoError(t, r.RenderJSON(nil))
	assert.Equal(t, "[]\n", buf.String())
}
