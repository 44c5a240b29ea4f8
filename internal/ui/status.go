package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Aman-CERP/searchschema/internal/schema"
)

// StatusInfo is everything `searchschema status` reports.
type StatusInfo struct {
	IndexPrefix string `json:"index_prefix"`
	Engine      string `json:"engine"`
	// SchemaVersion is the version stored by the last migrate, if any.
	SchemaVersion string `json:"schema_version,omitempty"`
	// Resources are the qualified names of the current index and template versions.
	Resources []string `json:"resources"`
	schema.Status
}

// StatusRenderer displays schema status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n\n", r.styles.Header.Render("Schema Status: "+info.IndexPrefix))
	r.field(&sb, "Engine", info.Engine)
	version := info.SchemaVersion
	if version == "" {
		version = r.styles.Dim.Render("not recorded")
	}
	r.field(&sb, "Schema version", version)
	if info.Enabled {
		r.field(&sb, "Management", "enabled")
	} else {
		r.field(&sb, "Management", r.styles.Warning.Render("disabled"))
	}
	if info.Ready {
		r.field(&sb, "State", r.styles.Success.Render("ready"))
	} else {
		r.field(&sb, "State", r.styles.Error.Render("not ready"))
	}
	sb.WriteString("\n")

	missing := make(map[string]bool, len(info.MissingIndices)+len(info.MissingTemplates))
	for _, n := range info.MissingIndices {
		missing[n] = true
	}
	for _, n := range info.MissingTemplates {
		missing[n] = true
	}

	fmt.Fprintf(&sb, "  Resources (%d):\n", len(info.Resources))
	for _, name := range info.Resources {
		if missing[name] {
			fmt.Fprintf(&sb, "    %s %s\n", r.styles.Error.Render("✗"), name)
			continue
		}
		fmt.Fprintf(&sb, "    %s %s\n", r.styles.Success.Render("✓"), name)
	}

	if len(info.PendingFields) > 0 {
		names := make([]string, 0, len(info.PendingFields))
		for n := range info.PendingFields {
			names = append(names, n)
		}
		sort.Strings(names)

		sb.WriteString("\n  Pending fields:\n")
		for _, n := range names {
			fmt.Fprintf(&sb, "    %s: %s\n", n, strings.Join(info.PendingFields[n], ", "))
		}
	}

	if info.ValidationError != "" {
		sb.WriteString("\n")
		body := fmt.Sprintf("%s\n%s", info.ErrorCode, info.ValidationError)
		sb.WriteString(r.styles.Panel.Render(r.styles.Error.Render(body)))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(r.out, sb.String())
	return err
}

func (r *StatusRenderer) field(sb *strings.Builder, label, value string) {
	fmt.Fprintf(sb, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-15s", label+":")), value)
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}
