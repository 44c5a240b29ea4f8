package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Icons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Successf("created %d indices", 3) }, "✅ created 3 indices\n"},
		{"warning", func(w *Writer) { w.Warning("schema management disabled") }, "⚠️  schema management disabled\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %s", "ERR_402") }, "❌ failed: ERR_402\n"},
		{"no icon", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.write(New(&buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_List(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.List([]string{"a_", "b_"}, "nothing")
	w.List(nil, "nothing")
	w.List(nil, "")

	assert.Equal(t, "   - a_\n   - b_\n   nothing\n", buf.String())
}

func TestWriter_Code(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Code("version: 1\nconnect:\n")

	assert.Equal(t, "\n  version: 1\n  connect:\n\n", buf.String())
}
