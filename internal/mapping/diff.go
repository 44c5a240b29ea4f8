package mapping

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// PropertyDifference is a field present on both sides with different
// type definitions.
type PropertyDifference struct {
	Name  string
	Left  Property
	Right Property
}

// Difference is the structural diff of two mappings. Left is the desired
// mapping, right is the observed one.
type Difference struct {
	Equal        bool
	OnlyOnLeft   []Property
	OnlyOnRight  []Property
	InCommon     []Property
	Differing    []PropertyDifference
	LeftDynamic  bool
	RightDynamic bool
}

// Diff partitions the property names of left and right into left-only,
// right-only and common, then compares common type definitions by deep
// equality. A nil mapping has no properties and is not dynamic.
func Diff(left, right *IndexMapping) Difference {
	l := left.PropertyMap()
	r := right.PropertyMap()

	d := Difference{
		LeftDynamic:  left.IsDynamic(),
		RightDynamic: right.IsDynamic(),
	}

	for name, lv := range l {
		rv, ok := r[name]
		switch {
		case !ok:
			d.OnlyOnLeft = append(d.OnlyOnLeft, Property{Name: name, TypeDefinition: lv})
		case reflect.DeepEqual(lv, rv):
			d.InCommon = append(d.InCommon, Property{Name: name, TypeDefinition: lv})
		default:
			d.Differing = append(d.Differing, PropertyDifference{
				Name:  name,
				Left:  Property{Name: name, TypeDefinition: lv},
				Right: Property{Name: name, TypeDefinition: rv},
			})
		}
	}
	for name, rv := range r {
		if _, ok := l[name]; !ok {
			d.OnlyOnRight = append(d.OnlyOnRight, Property{Name: name, TypeDefinition: rv})
		}
	}

	SortProperties(d.OnlyOnLeft)
	SortProperties(d.OnlyOnRight)
	SortProperties(d.InCommon)
	sort.Slice(d.Differing, func(i, j int) bool { return d.Differing[i].Name < d.Differing[j].Name })

	d.Equal = len(d.OnlyOnLeft) == 0 && len(d.OnlyOnRight) == 0 && len(d.Differing) == 0
	return d
}

// Key returns a canonical identity for the difference. Two differences
// with the same key describe the same drift regardless of the order in
// which properties were discovered. encoding/json sorts map keys, so the
// encoding is stable for nested type definitions too.
func (d Difference) Key() string {
	differing := make([]map[string]any, len(d.Differing))
	for i, pd := range d.Differing {
		differing[i] = map[string]any{"name": pd.Name, "left": pd.Left.TypeDefinition, "right": pd.Right.TypeDefinition}
	}
	b, err := json.Marshal(map[string]any{
		"only_on_left":  propertyList(d.OnlyOnLeft),
		"only_on_right": propertyList(d.OnlyOnRight),
		"differing":     differing,
		"left_dynamic":  d.LeftDynamic,
		"right_dynamic": d.RightDynamic,
	})
	if err != nil {
		// Decoded JSON always re-encodes; anything else falls back to %v.
		return fmt.Sprintf("%v", d)
	}
	return string(b)
}

func propertyList(props []Property) []map[string]any {
	out := make([]map[string]any, len(props))
	for i, p := range props {
		out[i] = map[string]any{"name": p.Name, "type": p.TypeDefinition}
	}
	return out
}

// String renders the difference for logs and error messages.
func (d Difference) String() string {
	if d.Equal {
		return "equal"
	}
	var parts []string
	if len(d.OnlyOnLeft) > 0 {
		parts = append(parts, "only in descriptor: "+strings.Join(Names(d.OnlyOnLeft), ","))
	}
	if len(d.OnlyOnRight) > 0 {
		parts = append(parts, "only in store: "+strings.Join(Names(d.OnlyOnRight), ","))
	}
	if len(d.Differing) > 0 {
		diffs := make([]string, len(d.Differing))
		for i, pd := range d.Differing {
			diffs[i] = fmt.Sprintf("%s (want %s, have %s)", pd.Name, compact(pd.Left.TypeDefinition), compact(pd.Right.TypeDefinition))
		}
		parts = append(parts, "differing: "+strings.Join(diffs, ", "))
	}
	return fmt.Sprintf("{%s; dynamic left=%t right=%t}", strings.Join(parts, "; "), d.LeftDynamic, d.RightDynamic)
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
