package schema

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

const (
	indexSchema       = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"name":{"type":"keyword"}}}}`
	indexSchemaAdded  = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"name":{"type":"keyword"},"email":{"type":"keyword"}}}}`
	tplSchema         = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"ts":{"type":"date"}}}}`
	tplSchemaAdded    = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"},"ts":{"type":"date"},"score":{"type":"double"}}},"settings":{"index":{"refresh_interval":"5s"}}}`
	tplSchemaReplicas = `{"mappings":{"dynamic":"strict","properties":{"id":{"type":"keyword"}}},"settings":{"index":{"number_of_shards":7,"number_of_replicas":7}}}`
)

// testConfig returns a config with fast retries.
func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Connect.IndexPrefix = "test"
	cfg.SchemaManager.Retry.InitialDelay = "1ms"
	cfg.SchemaManager.Retry.MaxDelay = "5ms"
	cfg.SchemaManager.Retry.Jitter = false
	return cfg
}

func newManager(client engine.Client, indices []descriptor.Descriptor, templates []*descriptor.Template, cfg *config.Config, opts ...ManagerOption) *Manager {
	return NewManager(client, indices, templates, cfg, opts...)
}

func TestStartup_CreatesEverythingAndIsRepeatable(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, []*descriptor.Template{tpl}, testConfig())

	// Given: an empty store
	assert.False(t, m.IsSchemaReadyForUse(ctx))

	// When: starting up
	require.NoError(t, m.Startup(ctx))

	// Then: the index has its full mapping
	mappings, err := client.GetMappings(ctx, idx.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	got := mappings[idx.QualifiedName()]
	assert.Equal(t, []string{"id", "name"}, mapping.Names(got.Properties))
	assert.Equal(t, mapping.DynamicStrict, got.Dynamic)

	// And: the template and its bootstrap index exist
	templates, err := client.GetMappings(ctx, tpl.TemplateName(), engine.SourceIndexTemplate)
	require.NoError(t, err)
	assert.Contains(t, templates, tpl.TemplateName())
	names, err := client.ListIndices(ctx, tpl.IndexPattern())
	require.NoError(t, err)
	assert.Equal(t, []string{tpl.QualifiedName()}, names)

	assert.True(t, m.IsSchemaReadyForUse(ctx))
	assert.True(t, m.IsAllIndicesExist(ctx))

	// When: starting again with data in place
	require.NoError(t, client.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "1", "name": "a"}))
	require.NoError(t, m.Startup(ctx))

	// Then: nothing was destroyed
	_, found, err := client.GetDocument(ctx, idx.QualifiedName(), "1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, m.IsSchemaReadyForUse(ctx))
	assert.Empty(t, client.putMappings, "no mapping update was needed")
}

func TestStartup_DisabledDoesNothing(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.SchemaManager.CreateSchema = false
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, cfg)

	require.NoError(t, m.Startup(ctx))

	names, err := client.ListIndices(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, int32(0), client.getMappings.Load())
	assert.True(t, m.IsSchemaReadyForUse(ctx), "externally managed schema is always ready")
}

func TestStartup_AppendsNewFields(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()

	// Given: a schema created by an older release
	oldIdx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	oldTpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	require.NoError(t, newManager(client, []descriptor.Descriptor{oldIdx}, []*descriptor.Template{oldTpl}, cfg).Startup(ctx))

	// When: the new release adds fields under the same versions
	newIdx := mustIndex(t, "tenant", "1.0.0", indexSchemaAdded)
	newTpl := mustTemplate(t, "event", "1.0.0", tplSchemaAdded)
	m := newManager(client, []descriptor.Descriptor{newIdx}, []*descriptor.Template{newTpl}, cfg)
	assert.False(t, m.IsSchemaReadyForUse(ctx))
	require.NoError(t, m.Startup(ctx))

	// Then: the index got exactly the new field
	assert.Equal(t, []string{"email"}, client.putMappings[newIdx.QualifiedName()])
	mappings, err := client.GetMappings(ctx, newIdx.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	idxMapping := mappings[newIdx.QualifiedName()]
	assert.True(t, idxMapping.HasProperty("email"))

	// And: the template was rewritten and its index updated
	assert.Equal(t, []string{newTpl.TemplateName()}, client.templateUpserts)
	templates, err := client.GetMappings(ctx, newTpl.TemplateName(), engine.SourceIndexTemplate)
	require.NoError(t, err)
	tplMapping := templates[newTpl.TemplateName()]
	assert.True(t, tplMapping.HasProperty("score"))
	mappings, err = client.GetMappings(ctx, newTpl.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	bootstrap := mappings[newTpl.QualifiedName()]
	assert.True(t, bootstrap.HasProperty("score"))

	// And: template settings changed, existing index settings did not
	tplSettings, _, err := client.store().TemplateSettings(ctx, newTpl.TemplateName())
	require.NoError(t, err)
	assert.Equal(t, "5s", tplSettings["index.refresh_interval"])
	idxSettings, err := client.store().IndexSettings(ctx, newTpl.QualifiedName())
	require.NoError(t, err)
	assert.NotContains(t, idxSettings, "index.refresh_interval")

	assert.True(t, m.IsSchemaReadyForUse(ctx))
}

func TestStartup_AppendsFieldsToEveryPhysicalIndex(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()

	// Given: a plain index plus a strict rolled-over copy sharing its name
	oldIdx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	require.NoError(t, newManager(client, []descriptor.Descriptor{oldIdx}, nil, cfg).Startup(ctx))
	rollover := mustTemplate(t, "tenant", "1.0.0", indexSchema)
	require.NoError(t, client.store().CreateIndexTemplate(ctx, rollover, engine.IndexSettings{NumberOfShards: 1}, true))
	copyName := oldIdx.QualifiedName() + "2024"
	require.NoError(t, client.UpsertDocument(ctx, copyName, "1", map[string]any{"id": "1"}))

	// When: a release adds a field to the plain descriptor
	newIdx := mustIndex(t, "tenant", "1.0.0", indexSchemaAdded)
	m := newManager(client, []descriptor.Descriptor{newIdx}, nil, cfg)
	require.NoError(t, m.InitializeSchema(ctx))

	// Then: both physical indices carry the field
	mappings, err := client.GetMappings(ctx, engine.LivePattern(newIdx), engine.SourceIndex)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	for name, live := range mappings {
		assert.True(t, live.HasProperty("email"), name)
	}

	// And: the schema has converged, so further passes change nothing
	assert.True(t, m.IsSchemaReadyForUse(ctx))
	require.NoError(t, m.InitializeSchema(ctx))
	assert.Equal(t, []string{"email"}, client.putMappings[newIdx.QualifiedName()])
}

func TestStartup_OlderManagerAfterNewerOne(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()

	// Given: the newer schema is already in place
	newIdx := mustIndex(t, "tenant", "1.0.0", indexSchemaAdded)
	newTpl := mustTemplate(t, "event", "1.0.0", tplSchemaAdded)
	require.NoError(t, newManager(client, []descriptor.Descriptor{newIdx}, []*descriptor.Template{newTpl}, cfg).Startup(ctx))

	// When: an older instance starts
	oldIdx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	oldTpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	old := newManager(client, []descriptor.Descriptor{oldIdx}, []*descriptor.Template{oldTpl}, cfg)

	// Then: it succeeds without removing anything
	require.NoError(t, old.InitializeSchema(ctx))
	mappings, err := client.GetMappings(ctx, newIdx.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	got := mappings[newIdx.QualifiedName()]
	assert.True(t, got.HasProperty("email"))
}

func TestStartup_RetriesUntilStoreIsReachable(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	client.failReads.Store(3)
	history := telemetry.NewHistory(10)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, testConfig(), WithHistory(history), WithMetrics(metrics))

	require.NoError(t, m.Startup(ctx))

	passes := history.Passes()
	require.Len(t, passes, 4)
	for _, p := range passes[:3] {
		assert.False(t, p.Succeeded)
		assert.Equal(t, schemaerrors.ErrCodeStoreUnavailable, p.ErrorCode)
	}
	assert.True(t, passes[3].Succeeded)
	assert.Equal(t, []string{idx.QualifiedName()}, passes[3].Created)
	assert.Equal(t, 0, history.ConsecutiveFailures())
}

func TestStartup_RetriesPanicsInCreation(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	client.panicCreates.Store(1)
	history := telemetry.NewHistory(10)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, testConfig(), WithHistory(history))

	require.NoError(t, m.Startup(ctx))

	passes := history.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, schemaerrors.ErrCodeCreationPanic, passes[0].ErrorCode)
	assert.True(t, m.IsAllIndicesExist(ctx))
}

func TestStartup_StopsWhenContextEnds(t *testing.T) {
	client := newRecordingClient(t)
	client.failReads.Store(1 << 30)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := m.Startup(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, client.getMappings.Load(), int32(1), "kept retrying until cancelled")
}

func TestStartup_AmbiguousSchemaKeepsFailing(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.SchemaManager.Retry.MaxRetries = 2

	// Given: two live copies of the current version that drifted differently
	ab := mustIndex(t, "tenant", "1.0.0", `{"mappings":{"dynamic":"strict","properties":{"a":{"type":"keyword"},"b":{"type":"keyword"}}}}`)
	require.NoError(t, client.CreateIndex(ctx, ab, engine.IndexSettings{NumberOfShards: 1}))
	ac := mustTemplate(t, "tenant", "1.0.0", `{"mappings":{"dynamic":"strict","properties":{"a":{"type":"keyword"},"c":{"type":"keyword"}}}}`)
	require.NoError(t, client.CreateIndexTemplate(ctx, ac, engine.IndexSettings{NumberOfShards: 1}, true))
	require.NoError(t, client.UpsertDocument(ctx, ab.QualifiedName()+"copy", "1", map[string]any{"a": "x"}))

	history := telemetry.NewHistory(10)
	desired := mustIndex(t, "tenant", "1.0.0", `{"mappings":{"dynamic":"strict","properties":{"a":{"type":"keyword"}}}}`)
	m := newManager(client, []descriptor.Descriptor{desired}, nil, cfg, WithHistory(history))

	// When: starting with bounded retries
	err := m.Startup(ctx)

	// Then: every pass fails the same way
	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeSchemaAmbiguous, schemaerrors.GetCode(err))
	assert.Equal(t, 3, history.ConsecutiveFailures())
	assert.False(t, m.IsSchemaReadyForUse(ctx))
}

func TestInitializeSchema_CreationTimeout(t *testing.T) {
	client := newRecordingClient(t)
	client.blockCreates.Store(true)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, testConfig(), WithCreationTimeout(20*time.Millisecond))

	err := m.InitializeSchema(context.Background())

	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeCreationFailed, schemaerrors.GetCode(err))
}

func TestInitializeSchema_CreatesIndexForExistingTemplate(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)

	// Given: the template exists without any index
	require.NoError(t, client.CreateIndexTemplate(ctx, tpl, engine.IndexSettings{NumberOfShards: 1}, true))
	m := newManager(client, nil, []*descriptor.Template{tpl}, testConfig())

	require.NoError(t, m.InitializeSchema(ctx))

	exists, err := client.IndexExists(ctx, tpl.QualifiedName())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInitializeSchema_SettingsFollowConfig(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.Index.NumberOfShards = 1
	cfg.Index.NumberOfReplicas = 0
	cfg.Index.ReplicasByIndexName = map[string]int{"orders": 2}

	tenant := mustIndex(t, "tenant", "1.0.0", indexSchema)
	orders := mustIndex(t, "orders", "1.0.0", indexSchema)
	tpl := mustTemplate(t, "event", "1.0.0", tplSchemaReplicas)
	m := newManager(client, []descriptor.Descriptor{tenant, orders}, []*descriptor.Template{tpl}, cfg)

	// Given: a first startup
	require.NoError(t, m.InitializeSchema(ctx))

	// Then: configured counts win over the schema's own settings
	tplSettings, _, err := client.store().TemplateSettings(ctx, tpl.TemplateName())
	require.NoError(t, err)
	assert.Equal(t, "1", tplSettings[engine.SettingNumberOfShards])
	assert.Equal(t, "0", tplSettings[engine.SettingNumberOfReplicas])

	// And: replicas are applied with one request per distinct count
	require.Len(t, client.putSettings, 2)
	assert.Equal(t, "0", client.putSettings[0].Settings[engine.SettingNumberOfReplicas])
	assert.ElementsMatch(t, engine.Targets(tenant, tpl), client.putSettings[0].Targets)
	assert.Equal(t, "2", client.putSettings[1].Settings[engine.SettingNumberOfReplicas])
	assert.Equal(t, engine.Targets(orders), client.putSettings[1].Targets)

	// When: the operator raises shards and replicas
	cfg.Index.NumberOfShards = 5
	cfg.Index.NumberOfReplicas = 5
	m = newManager(client, []descriptor.Descriptor{tenant, orders}, []*descriptor.Template{tpl}, cfg)
	require.NoError(t, m.InitializeSchema(ctx))

	// Then: existing indices get the replicas but keep their shards
	settings, err := client.store().IndexSettings(ctx, tenant.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, "5", settings[engine.SettingNumberOfReplicas])
	assert.Equal(t, "1", settings[engine.SettingNumberOfShards])
	settings, err = client.store().IndexSettings(ctx, orders.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, "2", settings[engine.SettingNumberOfReplicas])

	// And: the template carries both new counts
	tplSettings, _, err = client.store().TemplateSettings(ctx, tpl.TemplateName())
	require.NoError(t, err)
	assert.Equal(t, "5", tplSettings[engine.SettingNumberOfShards])
	assert.Equal(t, "5", tplSettings[engine.SettingNumberOfReplicas])
}

func TestInitializeSchema_ShardOverrideAppliesOnCreation(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.Index.ShardsByIndexName = map[string]int{"tenant": 3}
	tenant := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{tenant}, nil, cfg)

	require.NoError(t, m.InitializeSchema(ctx))

	settings, err := client.store().IndexSettings(ctx, tenant.QualifiedName())
	require.NoError(t, err)
	assert.Equal(t, "3", settings[engine.SettingNumberOfShards])
}

func TestInitializeSchema_RetentionPolicy(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.Retention.Enabled = true
	cfg.Retention.PolicyName = "history_retention"
	cfg.Retention.MinimumAge = "7d"
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	m := newManager(client, nil, []*descriptor.Template{tpl}, cfg)

	require.NoError(t, m.InitializeSchema(ctx))

	assert.Equal(t, []string{"history_retention@7d"}, client.policies)
	tplSettings, _, err := client.store().TemplateSettings(ctx, tpl.TemplateName())
	require.NoError(t, err)
	assert.Equal(t, "history_retention", tplSettings[engine.SettingLifecycleName])
	require.Len(t, client.templateSettings, 1)
	assert.Equal(t, "history_retention", client.templateSettings[0].Settings.LifecyclePolicy)
}

func TestStartup_ConcurrentManagers(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	cfg := testConfig()
	cfg.Retention.Enabled = true
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := newManager(client, []descriptor.Descriptor{idx}, []*descriptor.Template{tpl}, cfg)
			errs[i] = m.Startup(ctx)
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestUpdateSchemaMappingsAndInitialiseResources(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, nil, testConfig())

	require.NoError(t, m.InitialiseResources(ctx))
	require.NoError(t, m.InitialiseResources(ctx), "creating existing resources is harmless")

	err := m.UpdateSchemaMappings(ctx, map[descriptor.Descriptor][]mapping.Property{
		idx: {
			{Name: "foo", TypeDefinition: map[string]any{"type": "text"}},
			{Name: "bar", TypeDefinition: map[string]any{"type": "keyword"}},
		},
	})
	require.NoError(t, err)

	mappings, err := client.GetMappings(ctx, idx.QualifiedName(), engine.SourceIndex)
	require.NoError(t, err)
	live := mappings[idx.QualifiedName()]
	got := live.PropertyMap()
	assert.Equal(t, map[string]any{"type": "text"}, got["foo"])
	assert.Equal(t, map[string]any{"type": "keyword"}, got["bar"])
}

func TestTruncateIndices(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	m := newManager(client, []descriptor.Descriptor{idx}, []*descriptor.Template{tpl}, testConfig())
	require.NoError(t, m.Startup(ctx))

	require.NoError(t, client.UpsertDocument(ctx, idx.QualifiedName(), "1", map[string]any{"id": "1"}))
	require.NoError(t, client.UpsertDocument(ctx, tpl.QualifiedName()+"2026-10", "1", map[string]any{"id": "1"}))

	truncated, err := m.TruncateIndices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{tpl.QualifiedName(), tpl.QualifiedName() + "2026-10", idx.QualifiedName()}, truncated)

	for _, name := range truncated {
		n, err := client.store().DocCount(ctx, name)
		require.NoError(t, err)
		assert.Zero(t, n, name)
	}
	assert.True(t, m.IsSchemaReadyForUse(ctx), "mappings survive truncation")
}

func TestDeleteArchivedIndices(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	old := mustTemplate(t, "event", "0.9.0", tplSchema)
	current := mustTemplate(t, "event", "1.0.0", tplSchema)
	other := mustIndex(t, "tenant", "1.0.0", indexSchema)

	// Given: indices of an older template version next to the current ones
	require.NoError(t, client.CreateIndex(ctx, old, engine.IndexSettings{NumberOfShards: 1}))
	m := newManager(client, []descriptor.Descriptor{other}, []*descriptor.Template{current}, testConfig())
	require.NoError(t, m.Startup(ctx))

	archived, err := m.ArchivedIndices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{old.QualifiedName()}, archived)

	// When: deleting archived indices
	require.NoError(t, m.DeleteArchivedIndices(ctx))

	// Then: only the old version is gone
	names, err := client.ListIndices(ctx, "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{current.QualifiedName(), other.QualifiedName()}, names)
}

func TestIsAllIndicesExist(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	a := mustIndex(t, "tenant", "1.0.0", indexSchema)
	b := mustIndex(t, "orders", "1.0.0", indexSchema)
	m := newManager(client, []descriptor.Descriptor{a, b}, nil, testConfig())

	assert.False(t, m.IsAllIndicesExist(ctx))
	require.NoError(t, client.CreateIndex(ctx, a, engine.IndexSettings{NumberOfShards: 1}))
	assert.False(t, m.IsAllIndicesExist(ctx))
	require.NoError(t, client.CreateIndex(ctx, b, engine.IndexSettings{NumberOfShards: 1}))
	assert.True(t, m.IsAllIndicesExist(ctx))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	idx := mustIndex(t, "tenant", "1.0.0", indexSchema)
	tpl := mustTemplate(t, "event", "1.0.0", tplSchema)
	require.NoError(t, client.CreateIndex(ctx, idx, engine.IndexSettings{NumberOfShards: 1}))

	added := mustIndex(t, "tenant", "1.0.0", indexSchemaAdded)
	m := newManager(client, []descriptor.Descriptor{added}, []*descriptor.Template{tpl}, testConfig())

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.False(t, st.Ready)
	assert.Equal(t, []string{tpl.QualifiedName()}, st.MissingIndices)
	assert.Equal(t, []string{tpl.TemplateName()}, st.MissingTemplates)
	assert.Equal(t, map[string][]string{added.QualifiedName(): {"email"}}, st.PendingFields)
	assert.Empty(t, st.ValidationError)
}
