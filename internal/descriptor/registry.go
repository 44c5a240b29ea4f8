package descriptor

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed schemas/*.json
var schemas embed.FS

// Component is the component segment of every built-in descriptor.
const Component = "analytics"

// MetadataIndexName is the logical name of the schema metadata index.
const MetadataIndexName = "metadata"

type entry struct {
	name     string
	version  string
	template bool
}

// builtins lists the analytics indices and templates. Bump the version of an
// entry when its mapping changes incompatibly; additive changes keep it.
var builtins = []entry{
	{name: MetadataIndexName, version: "1.0.0"},
	{name: "process-definition", version: "1.2.0"},
	{name: "decision-definition", version: "1.0.0"},
	{name: "tenant", version: "1.0.0"},
	{name: "report", version: "1.1.0"},
	{name: "process-instance", version: "1.3.0", template: true},
	{name: "flownode-instance", version: "1.1.0", template: true},
	{name: "variable", version: "1.0.0", template: true},
	{name: "incident", version: "1.0.0", template: true},
	{name: "event", version: "1.0.0", template: true},
}

// Registry is the full set of descriptors for one index prefix.
type Registry struct {
	Indices   []Descriptor
	Templates []*Template
	metadata  *Index
}

// Analytics builds the built-in descriptor set for prefix.
func Analytics(prefix string) (*Registry, error) {
	reg := &Registry{}
	for _, e := range builtins {
		schema, err := schemas.ReadFile("schemas/" + e.name + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", e.name, err)
		}
		if e.template {
			t, err := NewTemplate(prefix, Component, e.name, e.version, schema)
			if err != nil {
				return nil, err
			}
			reg.Templates = append(reg.Templates, t)
			continue
		}
		idx, err := NewIndex(prefix, Component, e.name, e.version, schema)
		if err != nil {
			return nil, err
		}
		if e.name == MetadataIndexName {
			reg.metadata = idx
		}
		reg.Indices = append(reg.Indices, idx)
	}
	return reg, nil
}

// Metadata returns the schema metadata index descriptor.
func (r *Registry) Metadata() *Index {
	return r.metadata
}

// All returns indices followed by templates.
func (r *Registry) All() []Descriptor {
	all := make([]Descriptor, 0, len(r.Indices)+len(r.Templates))
	all = append(all, r.Indices...)
	for _, t := range r.Templates {
		all = append(all, t)
	}
	return all
}

// QualifiedNames returns the sorted physical names of the current versions.
func (r *Registry) QualifiedNames() []string {
	names := make([]string, 0, len(r.Indices)+len(r.Templates))
	for _, d := range r.All() {
		names = append(names, d.QualifiedName())
	}
	sort.Strings(names)
	return names
}

// Lookup finds a descriptor by logical name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	for _, d := range r.All() {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}
