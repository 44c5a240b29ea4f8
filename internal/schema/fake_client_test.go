package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	"github.com/Aman-CERP/searchschema/internal/engine/embedded"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// settingsCall is one recorded PutSettings request.
type settingsCall struct {
	Targets  []string
	Settings map[string]string
}

// templateSettingsCall is one recorded UpdateIndexTemplateSettings request.
type templateSettingsCall struct {
	Template string
	Settings engine.IndexSettings
}

// recordingClient wraps a real client, records selected calls and injects
// failures.
type recordingClient struct {
	engine.Client

	mu               sync.Mutex
	putSettings      []settingsCall
	templateSettings []templateSettingsCall
	policies         []string
	putMappings      map[string][]string
	templateUpserts  []string

	// failReads fails this many GetMappings calls with a network error.
	failReads atomic.Int32
	// panicCreates panics inside this many CreateIndex calls.
	panicCreates atomic.Int32
	// blockCreates makes CreateIndex wait for its context.
	blockCreates atomic.Bool
	getMappings  atomic.Int32
}

func newRecordingClient(t *testing.T) *recordingClient {
	t.Helper()
	c, err := embedded.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &recordingClient{Client: c, putMappings: map[string][]string{}}
}

func (r *recordingClient) store() *embedded.Client {
	return r.Client.(*embedded.Client)
}

func (r *recordingClient) GetMappings(ctx context.Context, pattern string, source engine.MappingSource) (map[string]mapping.IndexMapping, error) {
	r.getMappings.Add(1)
	if r.failReads.Load() > 0 {
		r.failReads.Add(-1)
		return nil, schemaerrors.NetworkError("connection refused", nil)
	}
	return r.Client.GetMappings(ctx, pattern, source)
}

func (r *recordingClient) CreateIndex(ctx context.Context, d descriptor.Descriptor, s engine.IndexSettings) error {
	if r.panicCreates.Load() > 0 {
		r.panicCreates.Add(-1)
		panic("boom")
	}
	if r.blockCreates.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.Client.CreateIndex(ctx, d, s)
}

func (r *recordingClient) CreateIndexTemplate(ctx context.Context, t *descriptor.Template, s engine.IndexSettings, createOnly bool) error {
	if !createOnly {
		r.mu.Lock()
		r.templateUpserts = append(r.templateUpserts, t.TemplateName())
		r.mu.Unlock()
	}
	return r.Client.CreateIndexTemplate(ctx, t, s, createOnly)
}

func (r *recordingClient) PutMapping(ctx context.Context, d descriptor.Descriptor, props []mapping.Property) error {
	r.mu.Lock()
	r.putMappings[d.QualifiedName()] = append(r.putMappings[d.QualifiedName()], mapping.Names(props)...)
	r.mu.Unlock()
	return r.Client.PutMapping(ctx, d, props)
}

func (r *recordingClient) PutSettings(ctx context.Context, ds []descriptor.Descriptor, settings map[string]string) error {
	r.mu.Lock()
	r.putSettings = append(r.putSettings, settingsCall{Targets: engine.Targets(ds...), Settings: settings})
	r.mu.Unlock()
	return r.Client.PutSettings(ctx, ds, settings)
}

func (r *recordingClient) UpdateIndexTemplateSettings(ctx context.Context, t *descriptor.Template, s engine.IndexSettings) error {
	r.mu.Lock()
	r.templateSettings = append(r.templateSettings, templateSettingsCall{Template: t.TemplateName(), Settings: s})
	r.mu.Unlock()
	return r.Client.UpdateIndexTemplateSettings(ctx, t, s)
}

func (r *recordingClient) PutIndexLifeCyclePolicy(ctx context.Context, name, minAge string) error {
	r.mu.Lock()
	r.policies = append(r.policies, name+"@"+minAge)
	r.mu.Unlock()
	return r.Client.PutIndexLifeCyclePolicy(ctx, name, minAge)
}
