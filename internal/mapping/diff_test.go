package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func kw() map[string]any   { return map[string]any{"type": "keyword"} }
func long() map[string]any { return map[string]any{"type": "long"} }

func TestDiff_SameMappingIsEqual(t *testing.T) {
	m := New("idx", DynamicStrict,
		Property{Name: "a", TypeDefinition: kw()},
		Property{Name: "nested", TypeDefinition: map[string]any{
			"type":       "nested",
			"properties": map[string]any{"x": kw(), "y": long()},
		}},
	)

	d := Diff(&m, &m)

	assert.True(t, d.Equal)
	assert.Empty(t, d.OnlyOnLeft)
	assert.Empty(t, d.OnlyOnRight)
	assert.Empty(t, d.Differing)
	assert.Len(t, d.InCommon, 2)
	assert.Equal(t, "equal", d.String())
}

func TestDiff_NilIsEmpty(t *testing.T) {
	right := New("idx", DynamicStrict, Property{Name: "a", TypeDefinition: kw()}, Property{Name: "b", TypeDefinition: long()})

	d := Diff(nil, &right)
	assert.False(t, d.Equal)
	assert.Equal(t, right.Properties, d.OnlyOnRight)
	assert.Empty(t, d.OnlyOnLeft)
	assert.False(t, d.LeftDynamic)

	d = Diff(&right, nil)
	assert.Equal(t, right.Properties, d.OnlyOnLeft)
	assert.Empty(t, d.OnlyOnRight)

	d = Diff(nil, nil)
	assert.True(t, d.Equal)
}

func TestDiff_Partitions(t *testing.T) {
	left := New("want", DynamicStrict,
		Property{Name: "common", TypeDefinition: kw()},
		Property{Name: "new", TypeDefinition: kw()},
		Property{Name: "retyped", TypeDefinition: kw()},
	)
	right := New("have", DynamicTrue,
		Property{Name: "common", TypeDefinition: kw()},
		Property{Name: "old", TypeDefinition: kw()},
		Property{Name: "retyped", TypeDefinition: long()},
	)

	d := Diff(&left, &right)

	assert.False(t, d.Equal)
	assert.Equal(t, []string{"new"}, Names(d.OnlyOnLeft))
	assert.Equal(t, []string{"old"}, Names(d.OnlyOnRight))
	assert.Equal(t, []string{"common"}, Names(d.InCommon))
	if assert.Len(t, d.Differing, 1) {
		assert.Equal(t, "retyped", d.Differing[0].Name)
		assert.Equal(t, kw(), d.Differing[0].Left.TypeDefinition)
		assert.Equal(t, long(), d.Differing[0].Right.TypeDefinition)
	}
	assert.False(t, d.LeftDynamic)
	assert.True(t, d.RightDynamic)

	s := d.String()
	assert.Contains(t, s, "only in descriptor: new")
	assert.Contains(t, s, "only in store: old")
	assert.Contains(t, s, `retyped (want {"type":"keyword"}, have {"type":"long"})`)
}

func TestDiff_KeyIsOrderIndependent(t *testing.T) {
	// Given: the same drift observed on two indices whose properties were
	// listed in a different order
	left := New("want", DynamicStrict, Property{Name: "a", TypeDefinition: kw()}, Property{Name: "b", TypeDefinition: kw()}, Property{Name: "c", TypeDefinition: kw()})
	r1 := IndexMapping{IndexName: "one", Dynamic: DynamicStrict, Properties: []Property{{Name: "a", TypeDefinition: kw()}}}
	r2 := IndexMapping{IndexName: "two", Dynamic: DynamicStrict, Properties: []Property{{Name: "a", TypeDefinition: map[string]any{"type": "keyword"}}}}

	// Then: the keys match
	assert.Equal(t, Diff(&left, &r1).Key(), Diff(&left, &r2).Key())
}

func TestDiff_KeyDistinguishesDrift(t *testing.T) {
	left := New("want", DynamicStrict, Property{Name: "a", TypeDefinition: kw()})
	withB := New("one", DynamicStrict, Property{Name: "a", TypeDefinition: kw()}, Property{Name: "b", TypeDefinition: kw()})
	withC := New("two", DynamicStrict, Property{Name: "a", TypeDefinition: kw()}, Property{Name: "c", TypeDefinition: kw()})

	assert.NotEqual(t, Diff(&left, &withB).Key(), Diff(&left, &withC).Key())
}

func TestDiff_NumericTypeDefinitionsCompareStructurally(t *testing.T) {
	// Decoded JSON numbers are float64 on both sides.
	a, _ := FromJSON("a", []byte(`{"properties":{"v":{"type":"scaled_float","scaling_factor":100}}}`))
	b, _ := FromJSON("b", []byte(`{"properties":{"v":{"scaling_factor":100,"type":"scaled_float"}}}`))

	assert.True(t, Diff(&a, &b).Equal)
}
