package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

const strictSchema = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"count":{"type":"long"}}},"settings":{"refresh_interval":"5s"}}`

func newMemClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := Open("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newIndex(t *testing.T, name, schema string) *descriptor.Index {
	t.Helper()
	idx, err := descriptor.NewIndex("test", "analytics", name, "1.0.0", []byte(schema))
	require.NoError(t, err)
	return idx
}

func newTemplate(t *testing.T, name, schema string) *descriptor.Template {
	t.Helper()
	tpl, err := descriptor.NewTemplate("test", "analytics", name, "1.0.0", []byte(schema))
	require.NoError(t, err)
	return tpl
}

var defaults = engine.IndexSettings{NumberOfShards: 1, NumberOfReplicas: 0}

func TestCreateIndex_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)

	// When: creating the same index twice
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	// Then: one index exists with the declared mapping and merged settings
	names, err := c.ListIndices(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{idx.QualifiedName()}, names)

	exists, err := c.IndexExists(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = c.IndexExists(ctx, idx.Alias())
	require.NoError(t, err)
	assert.True(t, exists, "alias resolves")

	mappings, err := c.GetMappings(ctx, idx.QualifiedName()+"*", engine.SourceIndex)
	require.NoError(t, err)
	m := mappings[idx.QualifiedName()]
	assert.Equal(t, mapping.DynamicStrict, m.Dynamic)
	assert.Equal(t, []string{"count", "id"}, mapping.Names(m.Properties))

	settings, err := c.IndexSettings(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, "1", settings[engine.SettingNumberOfShards])
	assert.Equal(t, "0", settings[engine.SettingNumberOfReplicas])
	assert.Equal(t, "5s", settings["index.refresh_interval"])
}

func TestCreateIndexTemplate_CreateOnlyKeepsExisting(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	tpl := newTemplate(t, "events", strictSchema)
	require.NoError(t, c.CreateIndexTemplate(ctx, tpl, defaults, true))

	// Given: a changed schema under the same template name
	changed := newTemplate(t, "events", `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"extra":{"type":"keyword"}}}}`)

	// When: creating with createOnly
	require.NoError(t, c.CreateIndexTemplate(ctx, changed, defaults, true))
	got, err := c.GetMappings(ctx, tpl.TemplateName(), engine.SourceIndexTemplate)
	require.NoError(t, err)

	// Then: the original template is untouched
	original := got[tpl.TemplateName()]
	assert.False(t, original.HasProperty("extra"))

	// When: upserting
	require.NoError(t, c.CreateIndexTemplate(ctx, changed, defaults, false))
	got, err = c.GetMappings(ctx, tpl.TemplateName(), engine.SourceIndexTemplate)
	require.NoError(t, err)

	// Then: the template is replaced
	replaced := got[tpl.TemplateName()]
	assert.True(t, replaced.HasProperty("extra"))
	assert.Equal(t, tpl.TemplateName(), replaced.IndexName)
}

func TestPutMapping_AddsAndRejectsConflicts(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	// When: adding a new property
	err := c.PutMapping(ctx, idx, []mapping.Property{{Name: "extra", TypeDefinition: map[string]any{"type": "keyword"}}})
	require.NoError(t, err)

	got, err := c.GetMappings(ctx, idx.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	m := got[idx.QualifiedName()]
	assert.True(t, m.HasProperty("extra"))

	// When: retyping an existing property
	err = c.PutMapping(ctx, idx, []mapping.Property{{Name: "id", TypeDefinition: map[string]any{"type": "long"}}})

	// Then: the store rejects it
	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeMappingRejected, schemaerrors.GetCode(err))
}

func TestPutMapping_TemplateTargetsMatchingIndices(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	tpl := newTemplate(t, "events", strictSchema)
	require.NoError(t, c.CreateIndexTemplate(ctx, tpl, defaults, true))
	require.NoError(t, c.CreateIndex(ctx, tpl, defaults))
	require.NoError(t, c.UpsertDocument(ctx, tpl.QualifiedName()+"2024", "1", map[string]any{"id": "a"}))

	err := c.PutMapping(ctx, tpl, []mapping.Property{{Name: "extra", TypeDefinition: map[string]any{"type": "keyword"}}})
	require.NoError(t, err)

	got, err := c.GetMappings(ctx, tpl.IndexPattern(), engine.SourceIndex)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for name, m := range got {
		assert.True(t, m.HasProperty("extra"), name)
	}
}

func TestPutMapping_PlainIndexReachesRolledOverCopies(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "events", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))
	require.NoError(t, c.CreateIndexTemplate(ctx, newTemplate(t, "events", strictSchema), defaults, true))
	require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName()+"2024", "1", map[string]any{"id": "a"}))

	err := c.PutMapping(ctx, idx, []mapping.Property{{Name: "extra", TypeDefinition: map[string]any{"type": "keyword"}}})
	require.NoError(t, err)

	got, err := c.GetMappings(ctx, engine.LivePattern(idx), engine.SourceIndex)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for name, m := range got {
		assert.True(t, m.HasProperty("extra"), name)
	}
}

func TestPutMapping_MissingConcreteIndex(t *testing.T) {
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)

	err := c.PutMapping(context.Background(), idx, []mapping.Property{{Name: "x", TypeDefinition: "y"}})

	assert.Equal(t, schemaerrors.ErrCodeIndexNotFound, schemaerrors.GetCode(err))
}

func TestPutSettings_ReplicasChangeShardsAreFinal(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	require.NoError(t, c.PutSettings(ctx, []descriptor.Descriptor{idx}, map[string]string{engine.SettingNumberOfReplicas: "5"}))
	settings, err := c.IndexSettings(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, "5", settings[engine.SettingNumberOfReplicas])

	err = c.PutSettings(ctx, []descriptor.Descriptor{idx}, map[string]string{engine.SettingNumberOfShards: "5"})
	assert.Error(t, err)
}

func TestUpdateIndexTemplateSettings(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	tpl := newTemplate(t, "events", strictSchema)

	// Missing template
	err := c.UpdateIndexTemplateSettings(ctx, tpl, defaults)
	assert.Equal(t, schemaerrors.ErrCodeIndexNotFound, schemaerrors.GetCode(err))

	require.NoError(t, c.CreateIndexTemplate(ctx, tpl, defaults, true))
	require.NoError(t, c.UpdateIndexTemplateSettings(ctx, tpl, engine.IndexSettings{
		NumberOfShards: 5, NumberOfReplicas: 5, TemplatePriority: 20, LifecyclePolicy: "retention",
	}))

	settings, priority, err := c.TemplateSettings(ctx, tpl.TemplateName())
	require.NoError(t, err)
	assert.Equal(t, "5", settings[engine.SettingNumberOfShards])
	assert.Equal(t, "5", settings[engine.SettingNumberOfReplicas])
	assert.Equal(t, "retention", settings[engine.SettingLifecycleName])
	assert.Equal(t, 20, priority)
}

func TestUpsertDocument_StrictRejectsUnknownFields(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "a", "count": 3}))

	err := c.UpsertDocument(ctx, idx.QualifiedName(), "2", map[string]any{"id": "b", "surprise": true})
	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeMappingRejected, schemaerrors.GetCode(err))
	assert.Contains(t, err.Error(), "surprise")
}

func TestUpsertDocument_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "a"}))
	require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "b"}))

	doc, found, err := c.GetDocument(ctx, idx.QualifiedName(), "1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", doc["id"])

	_, found, err = c.GetDocument(ctx, idx.QualifiedName(), "missing")
	require.NoError(t, err)
	assert.False(t, found)

	count, err := c.DocCount(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestUpsertDocument_AutoCreatesFromTemplate(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	tpl := newTemplate(t, "events", strictSchema)
	require.NoError(t, c.CreateIndexTemplate(ctx, tpl, defaults, true))

	// When: writing to a name the template's pattern matches
	rollover := tpl.QualifiedName() + "2024-01-01"
	require.NoError(t, c.UpsertDocument(ctx, rollover, "1", map[string]any{"id": "a"}))

	// Then: the index carries the template mapping
	got, err := c.GetMappings(ctx, rollover, engine.SourceIndex)
	require.NoError(t, err)
	m := got[rollover]
	assert.Equal(t, mapping.DynamicStrict, m.Dynamic)
	assert.True(t, m.HasProperty("count"))
}

func TestUpsertDocument_DynamicIndexLearnsFields(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)

	require.NoError(t, c.UpsertDocument(ctx, "scratch", "1", map[string]any{"name": "x", "n": float64(2), "ratio": 0.5, "ok": true}))

	got, err := c.GetMappings(ctx, "scratch", engine.SourceIndex)
	require.NoError(t, err)
	scratch := got["scratch"]
	props := scratch.PropertyMap()
	assert.Equal(t, map[string]any{"type": "keyword"}, props["name"])
	assert.Equal(t, map[string]any{"type": "long"}, props["n"])
	assert.Equal(t, map[string]any{"type": "float"}, props["ratio"])
	assert.Equal(t, map[string]any{"type": "boolean"}, props["ok"])
}

func TestTruncateIndex_KeepsMapping(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName(), id, map[string]any{"id": id}))
	}

	require.NoError(t, c.TruncateIndex(ctx, idx.QualifiedName()))

	count, err := c.DocCount(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.Zero(t, count)
	_, found, err := c.GetDocument(ctx, idx.QualifiedName(), "1")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := c.IndexExists(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteIndex(t *testing.T) {
	ctx := context.Background()
	c := newMemClient(t)
	idx := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))

	require.NoError(t, c.DeleteIndex(ctx, idx.QualifiedName()))

	exists, err := c.IndexExists(ctx, idx.QualifiedName())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, schemaerrors.ErrCodeIndexNotFound, schemaerrors.GetCode(c.DeleteIndex(ctx, idx.QualifiedName())))
}

func TestOnDisk_PersistsAcrossReopenAndLocks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := newIndex(t, "plain", strictSchema)

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.CreateIndex(ctx, idx, defaults))
	require.NoError(t, c.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "a"}))

	// Given: the store is open, a second open is refused
	_, err = Open(dir)
	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeStoreLocked, schemaerrors.GetCode(err))
	assert.True(t, schemaerrors.IsRetryable(err))

	require.NoError(t, c.Close())

	// When: reopening
	c2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()

	// Then: catalog and documents survived
	doc, found, err := c2.GetDocument(ctx, idx.QualifiedName(), "1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", doc["id"])
}

func TestClosedClient(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.False(t, c.IsHealthy(context.Background()))
	_, err = c.ListIndices(context.Background(), "*")
	assert.Equal(t, schemaerrors.ErrCodeStoreUnavailable, schemaerrors.GetCode(err))
}

func TestParseMinAge(t *testing.T) {
	tests := map[string]time.Duration{
		"30d":   30 * 24 * time.Hour,
		"12h":   12 * time.Hour,
		"5m":    5 * time.Minute,
		"10s":   10 * time.Second,
		"500ms": 500 * time.Millisecond,
	}
	for in, want := range tests {
		got, err := ParseMinAge(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "30", "d", "-1d", "1w"} {
		_, err := ParseMinAge(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newMemClient(t, WithClock(func() time.Time { return now }))

	tpl := newTemplate(t, "events", strictSchema)
	withPolicy := defaults
	withPolicy.LifecyclePolicy = "retention"
	require.NoError(t, c.PutIndexLifeCyclePolicy(ctx, "retention", "30d"))
	require.NoError(t, c.CreateIndexTemplate(ctx, tpl, withPolicy, true))
	require.NoError(t, c.CreateIndex(ctx, tpl, defaults))
	plain := newIndex(t, "plain", strictSchema)
	require.NoError(t, c.CreateIndex(ctx, plain, defaults))

	// When: less than the minimum age has passed
	now = now.Add(29 * 24 * time.Hour)
	deleted, err := c.ApplyRetention(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	// When: the minimum age has passed
	now = now.Add(2 * 24 * time.Hour)
	deleted, err = c.ApplyRetention(ctx)

	// Then: only the index attached to the policy is removed
	require.NoError(t, err)
	assert.Equal(t, []string{tpl.QualifiedName()}, deleted)
	exists, err := c.IndexExists(ctx, plain.QualifiedName())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPutIndexLifeCyclePolicy_RejectsBadAge(t *testing.T) {
	c := newMemClient(t)
	err := c.PutIndexLifeCyclePolicy(context.Background(), "p", "forever")
	assert.Equal(t, schemaerrors.ErrCodeConfigInvalid, schemaerrors.GetCode(err))
}
