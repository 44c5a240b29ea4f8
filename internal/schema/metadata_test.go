package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

func TestMetadataStore_SchemaVersion(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	reg, err := descriptor.Analytics("test")
	require.NoError(t, err)
	meta := reg.Metadata()
	store := NewMetadataStore(client, meta.QualifiedName())

	// Given: no metadata index yet
	first, err := store.IsFirstRun(ctx)
	require.NoError(t, err)
	assert.True(t, first)

	// When: the index exists but holds no marker
	require.NoError(t, client.CreateIndex(ctx, meta, engine.IndexSettings{NumberOfShards: 1}))
	_, found, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	// When: storing versions
	require.NoError(t, store.StoreSchemaVersion(ctx, "1.2.0"))
	require.NoError(t, store.StoreSchemaVersion(ctx, "1.3.0"))

	// Then: the latest one is read back
	version, found, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1.3.0", version)

	first, err = store.IsFirstRun(ctx)
	require.NoError(t, err)
	assert.False(t, first)

	doc, _, err := client.GetDocument(ctx, meta.QualifiedName(), SchemaVersionDocID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": SchemaVersionDocID, "value": "1.3.0"}, doc)
}

func TestMetadataStore_RejectsEmptyVersion(t *testing.T) {
	store := NewMetadataStore(newRecordingClient(t), "meta")
	err := store.StoreSchemaVersion(context.Background(), "")
	assert.Equal(t, schemaerrors.ErrCodeInvalidDescriptor, schemaerrors.GetCode(err))
}

func TestMetadataStore_StrictMetadataRejectsExtraFields(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient(t)
	reg, err := descriptor.Analytics("test")
	require.NoError(t, err)
	meta := reg.Metadata()
	require.NoError(t, client.CreateIndex(ctx, meta, engine.IndexSettings{NumberOfShards: 1}))

	err = client.UpsertDocument(ctx, meta.QualifiedName(), "x", map[string]any{"id": "x", "other": 1})
	assert.Equal(t, schemaerrors.ErrCodeMappingRejected, schemaerrors.GetCode(err))
}
