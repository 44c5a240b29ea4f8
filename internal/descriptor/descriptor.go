// Package descriptor defines the desired indices and index templates.
//
// A descriptor names one logical index and carries its declarative schema.
// Physical names follow {prefix}-{component}-{name}-{version}_ so that every
// version of one logical index shares the prefix matched by
// AllVersionsPattern.
package descriptor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Descriptor is the desired definition of one logical index or template.
type Descriptor interface {
	// Name is the logical index name, e.g. "process-instance".
	Name() string
	Component() string
	Version() string
	// QualifiedName is the physical name of the current version.
	QualifiedName() string
	Alias() string
	// AllVersionsPattern matches the physical name of any version.
	AllVersionsPattern() *regexp.Regexp
	// Schema is the raw declarative schema, mappings plus optional settings.
	Schema() []byte
	// Mappings is the "mappings" object of the schema.
	Mappings() json.RawMessage
	// Settings holds index settings declared next to the mappings, flattened
	// to dotted keys such as "index.refresh_interval".
	Settings() map[string]any
	IsTemplate() bool
}

// schemaFile is the on-disk shape of a schema.
type schemaFile struct {
	Mappings json.RawMessage `json:"mappings"`
	Settings map[string]any  `json:"settings"`
}

// Index is a plain index descriptor.
type Index struct {
	prefix    string
	component string
	name      string
	version   string
	schema    []byte
	mappings  json.RawMessage
	settings  map[string]any
	pattern   *regexp.Regexp
}

var namePart = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
var versionPart = regexp.MustCompile(`^\d[0-9.]*$`)

// NewIndex validates the naming parts and parses the schema.
// The schema is either {"mappings": {...}, "settings": {...}} or a bare
// mappings object.
func NewIndex(prefix, component, name, version string, schema []byte) (*Index, error) {
	if prefix != "" && !namePart.MatchString(prefix) {
		return nil, fmt.Errorf("invalid index prefix %q", prefix)
	}
	if !namePart.MatchString(component) {
		return nil, fmt.Errorf("invalid component %q", component)
	}
	if !namePart.MatchString(name) {
		return nil, fmt.Errorf("invalid index name %q", name)
	}
	if !versionPart.MatchString(version) {
		return nil, fmt.Errorf("invalid version %q for %s", version, name)
	}

	var file schemaFile
	if err := json.Unmarshal(schema, &file); err != nil {
		return nil, fmt.Errorf("parse schema of %s: %w", name, err)
	}
	mappings := file.Mappings
	if len(mappings) == 0 {
		mappings = json.RawMessage(schema)
		file.Settings = nil
	}

	idx := &Index{
		prefix:    prefix,
		component: component,
		name:      name,
		version:   version,
		schema:    schema,
		mappings:  mappings,
		settings:  normalizeSettings(file.Settings),
	}
	idx.pattern = regexp.MustCompile("^" + regexp.QuoteMeta(idx.base()) + `\d.*`)
	return idx, nil
}

// base is the name shared by all versions, including the trailing dash.
func (i *Index) base() string {
	parts := []string{i.component, i.name}
	if i.prefix != "" {
		parts = append([]string{i.prefix}, parts...)
	}
	return strings.Join(parts, "-") + "-"
}

func (i *Index) Name() string      { return i.name }
func (i *Index) Component() string { return i.component }
func (i *Index) Version() string   { return i.version }
func (i *Index) Schema() []byte    { return i.schema }
func (i *Index) IsTemplate() bool  { return false }

func (i *Index) QualifiedName() string {
	return i.base() + i.version + "_"
}

func (i *Index) Alias() string {
	return i.QualifiedName() + "alias"
}

func (i *Index) AllVersionsPattern() *regexp.Regexp {
	return i.pattern
}

func (i *Index) Mappings() json.RawMessage {
	return i.mappings
}

// Settings returns a copy of the declared settings.
func (i *Index) Settings() map[string]any {
	out := make(map[string]any, len(i.settings))
	for k, v := range i.settings {
		out[k] = v
	}
	return out
}

func (i *Index) String() string {
	return i.QualifiedName()
}

// Template is an index template descriptor. Indices whose names match
// IndexPattern pick up its mappings and settings on creation.
type Template struct {
	*Index
	composedOf []string
}

// NewTemplate builds a template descriptor.
func NewTemplate(prefix, component, name, version string, schema []byte, composedOf ...string) (*Template, error) {
	idx, err := NewIndex(prefix, component, name, version, schema)
	if err != nil {
		return nil, err
	}
	return &Template{Index: idx, composedOf: composedOf}, nil
}

func (t *Template) IsTemplate() bool { return true }

// TemplateName is the name the template is stored under.
func (t *Template) TemplateName() string {
	return t.QualifiedName() + "template"
}

// IndexPattern matches the bootstrap index and any rollover of it.
func (t *Template) IndexPattern() string {
	return t.QualifiedName() + "*"
}

// ComposedOf lists component templates the template is composed of.
func (t *Template) ComposedOf() []string {
	return append([]string(nil), t.composedOf...)
}

// normalizeSettings flattens nested settings into dotted keys and prefixes
// them with "index." the way the store normalises them.
func normalizeSettings(in map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range flatten("", in) {
		if !strings.HasPrefix(k, "index.") {
			k = "index." + k
		}
		out[k] = v
	}
	return out
}

func flatten(prefix string, in map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for fk, fv := range flatten(key, nested) {
				out[fk] = fv
			}
			continue
		}
		out[key] = v
	}
	return out
}

var (
	_ Descriptor = (*Index)(nil)
	_ Descriptor = (*Template)(nil)
)
