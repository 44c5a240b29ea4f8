package schema

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

// SchemaVersionDocID is the id of the document holding the schema version.
const SchemaVersionDocID = "schema-version"

// MetadataStore reads and writes bookkeeping documents in the metadata
// index.
type MetadataStore struct {
	client engine.Client
	index  string
}

// NewMetadataStore creates a store over the named metadata index.
func NewMetadataStore(client engine.Client, index string) *MetadataStore {
	return &MetadataStore{client: client, index: index}
}

// Index returns the metadata index name.
func (s *MetadataStore) Index() string {
	return s.index
}

// SchemaVersion returns the stored schema version. found is false when the
// metadata index or the marker document does not exist yet.
func (s *MetadataStore) SchemaVersion(ctx context.Context) (version string, found bool, err error) {
	exists, err := s.client.IndexExists(ctx, s.index)
	if err != nil {
		return "", false, fmt.Errorf("check metadata index: %w", err)
	}
	if !exists {
		return "", false, nil
	}

	doc, found, err := s.client.GetDocument(ctx, s.index, SchemaVersionDocID)
	if err != nil {
		return "", false, fmt.Errorf("read schema version: %w", err)
	}
	if !found {
		return "", false, nil
	}

	value, ok := doc["value"].(string)
	if !ok {
		return "", false, schemaerrors.StoreError("schema version marker has no string value", nil).
			WithDetail("index", s.index)
	}
	return value, true, nil
}

// StoreSchemaVersion writes the schema version marker.
func (s *MetadataStore) StoreSchemaVersion(ctx context.Context, version string) error {
	if version == "" {
		return schemaerrors.ValidationError(schemaerrors.ErrCodeInvalidDescriptor, "schema version must not be empty")
	}
	doc := map[string]any{"id": SchemaVersionDocID, "value": version}
	if err := s.client.UpsertDocument(ctx, s.index, SchemaVersionDocID, doc); err != nil {
		return fmt.Errorf("store schema version: %w", err)
	}
	return nil
}

// IsFirstRun reports whether no schema version has been stored yet.
func (s *MetadataStore) IsFirstRun(ctx context.Context) (bool, error) {
	_, found, err := s.SchemaVersion(ctx)
	if err != nil {
		return false, err
	}
	return !found, nil
}
