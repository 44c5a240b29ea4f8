// Package engine defines the document-store contract the schema manager
// works against. Implementations live in the embedded and elasticsearch
// subpackages.
package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// MappingSource selects whether GetMappings reads indices or templates.
type MappingSource int

const (
	// SourceIndex reads the mappings of physical indices.
	SourceIndex MappingSource = iota
	// SourceIndexTemplate reads the mappings stored in index templates.
	SourceIndexTemplate
)

// String returns the source name.
func (s MappingSource) String() string {
	if s == SourceIndexTemplate {
		return "index_template"
	}
	return "index"
}

// Setting keys understood by every implementation.
const (
	SettingNumberOfShards   = "index.number_of_shards"
	SettingNumberOfReplicas = "index.number_of_replicas"
	SettingLifecycleName    = "index.lifecycle.name"
)

// IndexSettings are the configured settings applied on creation.
type IndexSettings struct {
	NumberOfShards   int
	NumberOfReplicas int
	// TemplatePriority only applies to templates.
	TemplatePriority int
	// LifecyclePolicy, when set, attaches the retention policy to templates.
	LifecyclePolicy string
}

// Merge combines descriptor settings with configured ones. Configured shard
// and replica counts win over values declared in the schema.
func (s IndexSettings) Merge(declared map[string]any) map[string]any {
	out := make(map[string]any, len(declared)+3)
	for k, v := range declared {
		out[k] = v
	}
	out[SettingNumberOfShards] = strconv.Itoa(s.NumberOfShards)
	out[SettingNumberOfReplicas] = strconv.Itoa(s.NumberOfReplicas)
	if s.LifecyclePolicy != "" {
		out[SettingLifecycleName] = s.LifecyclePolicy
	}
	return out
}

// Client is the document-store contract. Every method is safe for
// concurrent use.
type Client interface {
	// CreateIndex creates the descriptor's current index. Creating an index
	// that already exists is not an error.
	CreateIndex(ctx context.Context, d descriptor.Descriptor, settings IndexSettings) error

	// CreateIndexTemplate stores the template. With createOnly an existing
	// template is left untouched; without it the template is replaced.
	CreateIndexTemplate(ctx context.Context, t *descriptor.Template, settings IndexSettings, createOnly bool) error

	// PutMapping adds properties to the descriptor's indices. Templates
	// target every index matching their pattern.
	PutMapping(ctx context.Context, d descriptor.Descriptor, props []mapping.Property) error

	// GetMappings returns the mappings of every index (or template) whose
	// name matches the comma-separated wildcard pattern.
	GetMappings(ctx context.Context, pattern string, source MappingSource) (map[string]mapping.IndexMapping, error)

	// PutSettings applies dynamic settings to the descriptors' indices.
	PutSettings(ctx context.Context, ds []descriptor.Descriptor, settings map[string]string) error

	// UpdateIndexTemplateSettings rewrites the settings stored in a template.
	// Existing indices are not touched.
	UpdateIndexTemplateSettings(ctx context.Context, t *descriptor.Template, settings IndexSettings) error

	// PutIndexLifeCyclePolicy installs or replaces a delete-after policy.
	PutIndexLifeCyclePolicy(ctx context.Context, name, minAge string) error

	IndexExists(ctx context.Context, name string) (bool, error)
	GetDocument(ctx context.Context, index, id string) (doc map[string]any, found bool, err error)
	UpsertDocument(ctx context.Context, index, id string, doc map[string]any) error
	DeleteIndex(ctx context.Context, name string) error
	// TruncateIndex removes every document but keeps the index and mapping.
	TruncateIndex(ctx context.Context, name string) error
	// ListIndices returns the sorted names of indices matching pattern.
	ListIndices(ctx context.Context, pattern string) ([]string, error)
	IsHealthy(ctx context.Context) bool
	Close() error
}

// MatchPattern reports whether name matches a comma-separated list of
// wildcard expressions. '*' matches any run of characters. An expression
// starting with '-' excludes names matched so far.
func MatchPattern(pattern, name string) bool {
	matched := false
	for _, expr := range strings.Split(pattern, ",") {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if strings.HasPrefix(expr, "-") {
			if matched && wildcard(expr[1:], name) {
				matched = false
			}
			continue
		}
		if wildcard(expr, name) {
			matched = true
		}
	}
	return matched
}

// wildcard matches name against a single '*' expression.
func wildcard(expr, name string) bool {
	parts := strings.Split(expr, "*")
	if len(parts) == 1 {
		return expr == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(name, p)
		if i < 0 {
			return false
		}
		name = name[i+len(p):]
	}
	return strings.HasSuffix(name, last) && len(name) >= len(last)
}

// JoinPatterns builds one comma-separated pattern from many.
func JoinPatterns(patterns ...string) string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// Targets returns the physical names a descriptor-level operation applies
// to. A template covers its index pattern. A plain index covers its
// qualified name, which must exist, plus every physical index sharing that
// prefix, so timestamped or rolled-over copies read back by the validator
// receive the same updates.
func Targets(ds ...descriptor.Descriptor) []string {
	out := make([]string, 0, 2*len(ds))
	for _, d := range ds {
		if t, ok := d.(*descriptor.Template); ok {
			out = append(out, t.IndexPattern())
			continue
		}
		out = append(out, d.QualifiedName(), LivePattern(d))
	}
	return out
}

// LivePattern matches every physical index of a descriptor.
func LivePattern(d descriptor.Descriptor) string {
	if t, ok := d.(*descriptor.Template); ok {
		return t.IndexPattern()
	}
	return d.QualifiedName() + "*"
}
