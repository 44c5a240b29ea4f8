// Package mapping models the field schema of one index or template and
// computes structural differences between two of them.
//
// A mapping is either desired (parsed from a descriptor's declarative
// schema) or observed (read back from the live store). Type definitions
// are opaque: they are decoded JSON values compared by deep equality and
// forwarded to the store untouched.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Dynamic governs whether the store accepts fields absent from the mapping.
type Dynamic string

const (
	// DynamicStrict rejects documents carrying unknown fields.
	DynamicStrict Dynamic = "strict"
	// DynamicFalse accepts unknown fields but does not index them.
	DynamicFalse Dynamic = "false"
	// DynamicTrue adds unknown fields to the mapping on write.
	DynamicTrue Dynamic = "true"
)

// ParseDynamic normalises a decoded "dynamic" value.
// Missing values take the store default, which is true.
func ParseDynamic(v any) (Dynamic, error) {
	switch t := v.(type) {
	case nil:
		return DynamicTrue, nil
	case bool:
		if t {
			return DynamicTrue, nil
		}
		return DynamicFalse, nil
	case string:
		switch Dynamic(t) {
		case DynamicStrict, DynamicFalse, DynamicTrue:
			return Dynamic(t), nil
		case "":
			return DynamicTrue, nil
		case "runtime":
			// Runtime fields are searchable without being mapped, so they behave
			// like true for drift purposes.
			return DynamicTrue, nil
		}
	}
	return "", fmt.Errorf("invalid dynamic value %v", v)
}

// UnmarshalJSON accepts both the string and the boolean form.
func (d *Dynamic) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseDynamic(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Property is one top-level field and its type definition.
type Property struct {
	Name           string
	TypeDefinition any
}

// IndexMapping is the field set and dynamic flag of one physical index or
// template. Properties are kept sorted by name.
type IndexMapping struct {
	IndexName  string
	Dynamic    Dynamic
	Properties []Property
}

// New builds an IndexMapping, sorting the properties by name.
func New(indexName string, dynamic Dynamic, props ...Property) IndexMapping {
	sorted := make([]Property, len(props))
	copy(sorted, props)
	SortProperties(sorted)
	if dynamic == "" {
		dynamic = DynamicTrue
	}
	return IndexMapping{IndexName: indexName, Dynamic: dynamic, Properties: sorted}
}

// Clone returns a copy that does not share the property slice.
func (m IndexMapping) Clone() IndexMapping {
	if m.Properties != nil {
		props := make([]Property, len(m.Properties))
		copy(props, m.Properties)
		m.Properties = props
	}
	return m
}

// IsDynamic reports whether the store will add unknown fields on its own.
func (m *IndexMapping) IsDynamic() bool {
	return m != nil && m.Dynamic == DynamicTrue
}

// PropertyMap returns the mapping as name -> type definition.
func (m *IndexMapping) PropertyMap() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m.Properties))
	for _, p := range m.Properties {
		out[p.Name] = p.TypeDefinition
	}
	return out
}

// HasProperty reports whether a top-level field with the given name exists.
func (m *IndexMapping) HasProperty(name string) bool {
	if m == nil {
		return false
	}
	i := sort.Search(len(m.Properties), func(i int) bool { return m.Properties[i].Name >= name })
	return i < len(m.Properties) && m.Properties[i].Name == name
}

// WithProperties returns a copy with extra properties merged in. Existing
// names are replaced.
func (m IndexMapping) WithProperties(extra []Property) IndexMapping {
	merged := m.PropertyMap()
	for _, p := range extra {
		merged[p.Name] = p.TypeDefinition
	}
	return New(m.IndexName, m.Dynamic, PropertiesFromMap(merged)...)
}

// mappingBody is the store's JSON shape for a mapping.
type mappingBody struct {
	Dynamic    any                        `json:"dynamic,omitempty"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// FromJSON parses a declarative schema. Both the bare form
// {"dynamic": ..., "properties": {...}} and the wrapped form
// {"mappings": {...}} are accepted.
func FromJSON(indexName string, raw []byte) (IndexMapping, error) {
	var wrapper struct {
		Mappings json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return IndexMapping{}, fmt.Errorf("parse mapping for %s: %w", indexName, err)
	}
	if len(wrapper.Mappings) > 0 && !bytes.Equal(wrapper.Mappings, []byte("null")) {
		raw = wrapper.Mappings
	}

	var body mappingBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return IndexMapping{}, fmt.Errorf("parse mapping for %s: %w", indexName, err)
	}

	dynamic, err := ParseDynamic(body.Dynamic)
	if err != nil {
		return IndexMapping{}, fmt.Errorf("parse mapping for %s: %w", indexName, err)
	}

	props := make([]Property, 0, len(body.Properties))
	for name, def := range body.Properties {
		var v any
		if err := json.Unmarshal(def, &v); err != nil {
			return IndexMapping{}, fmt.Errorf("parse property %s of %s: %w", name, indexName, err)
		}
		props = append(props, Property{Name: name, TypeDefinition: v})
	}

	return New(indexName, dynamic, props...), nil
}

// MarshalJSON renders the mapping in the store's shape.
func (m IndexMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"dynamic":    string(m.Dynamic),
		"properties": m.PropertyMap(),
	})
}

// PropertiesJSON renders a property list as a put-mapping body.
func PropertiesJSON(props []Property) ([]byte, error) {
	out := make(map[string]any, len(props))
	for _, p := range props {
		out[p.Name] = p.TypeDefinition
	}
	return json.Marshal(map[string]any{"properties": out})
}

// PropertiesFromMap converts name -> type definition into sorted properties.
func PropertiesFromMap(m map[string]any) []Property {
	props := make([]Property, 0, len(m))
	for name, def := range m {
		props = append(props, Property{Name: name, TypeDefinition: def})
	}
	SortProperties(props)
	return props
}

// SortProperties sorts properties in place by name.
func SortProperties(props []Property) {
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
}

// Names returns the property names in order.
func Names(props []Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}
