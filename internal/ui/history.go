package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

// HistoryRenderer prints schema startup passes, oldest first.
type HistoryRenderer struct {
	out    io.Writer
	styles Styles
}

// NewHistoryRenderer creates a history renderer.
func NewHistoryRenderer(out io.Writer, noColor bool) *HistoryRenderer {
	return &HistoryRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes one line per pass plus a duration sparkline and a summary.
func (r *HistoryRenderer) Render(passes []telemetry.Pass) error {
	var sb strings.Builder

	if len(passes) == 0 {
		sb.WriteString(r.styles.Dim.Render("No schema passes recorded."))
		sb.WriteString("\n")
		_, err := io.WriteString(r.out, sb.String())
		return err
	}

	durations := make([]float64, len(passes))
	for i, p := range passes {
		durations[i] = float64(p.Duration)
	}
	fmt.Fprintf(&sb, "%s  %s\n\n",
		r.styles.Header.Render("Schema passes"),
		r.styles.Sparkline.Render(Sparkline(durations, 30)))

	failures := 0
	for _, p := range passes {
		result := r.styles.Success.Render("ok    ")
		if !p.Succeeded {
			failures++
			result = r.styles.Error.Render("failed")
		}

		fmt.Fprintf(&sb, "  #%-3d %s %8s %s", p.Attempt,
			r.styles.Label.Render(p.StartedAt.Format("15:04:05")),
			p.Duration.Round(time.Millisecond), result)
		switch {
		case !p.Succeeded:
			fmt.Fprintf(&sb, " %s %s", p.ErrorCode, r.styles.Dim.Render(p.Error))
		case len(p.Created) > 0 || p.FieldsAdded > 0:
			fmt.Fprintf(&sb, " created=%d fields_added=%d", len(p.Created), p.FieldsAdded)
		}
		sb.WriteString("\n")
	}

	last := passes[len(passes)-1]
	sb.WriteString("\n")
	if last.Succeeded {
		fmt.Fprintf(&sb, "%d passes, %d failed, last succeeded\n", len(passes), failures)
	} else {
		sb.WriteString(r.styles.Warning.Render(fmt.Sprintf("%d passes, %d failed, last failed with %s", len(passes), failures, last.ErrorCode)))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(r.out, sb.String())
	return err
}

// RenderJSON outputs the passes as JSON.
func (r *HistoryRenderer) RenderJSON(passes []telemetry.Pass) error {
	if passes == nil {
		passes = []telemetry.Pass{}
	}
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(passes)
}
