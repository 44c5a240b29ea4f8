package embedded

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	blevemapping "github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// sourcePrefix namespaces stored document sources in bleve's internal store.
const sourcePrefix = "_source:"

// documentStore holds the documents of one physical index in bleve. The
// original JSON source of every document is kept next to it as an internal
// value so reads return exactly what was written.
type documentStore struct {
	index bleve.Index
	path  string
}

// openDocumentStore opens or creates the bleve index for one physical
// index. An empty path keeps it in memory.
func openDocumentStore(path string, m mapping.IndexMapping) (*documentStore, error) {
	im := bleveMapping(m)

	if path == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &documentStore{index: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, im)
	} else if err == bleve.ErrorIndexMetaCorrupt {
		slog.Warn("document_store_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("document store corrupted at %s and cannot remove: %w", path, removeErr)
		}
		idx, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open document store %s: %w", path, err)
	}
	return &documentStore{index: idx, path: path}, nil
}

// bleveMapping translates the declared field types into bleve field
// mappings. Fields added later fall back to bleve's dynamic defaults.
func bleveMapping(m mapping.IndexMapping) *blevemapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	for _, p := range m.Properties {
		def, _ := p.TypeDefinition.(map[string]any)
		typ, _ := def["type"].(string)
		switch typ {
		case "keyword":
			doc.AddFieldMappingsAt(p.Name, bleve.NewKeywordFieldMapping())
		case "text":
			doc.AddFieldMappingsAt(p.Name, bleve.NewTextFieldMapping())
		case "long", "integer", "short", "byte", "double", "float", "half_float", "scaled_float", "unsigned_long":
			doc.AddFieldMappingsAt(p.Name, bleve.NewNumericFieldMapping())
		case "boolean":
			doc.AddFieldMappingsAt(p.Name, bleve.NewBooleanFieldMapping())
		case "date":
			doc.AddFieldMappingsAt(p.Name, bleve.NewDateTimeFieldMapping())
		case "object", "nested", "":
			if enabled, ok := def["enabled"].(bool); ok && !enabled {
				doc.AddSubDocumentMapping(p.Name, bleve.NewDocumentDisabledMapping())
			}
		}
	}

	im.DefaultMapping = doc
	return im
}

func sourceKey(id string) []byte {
	return []byte(sourcePrefix + id)
}

func (s *documentStore) put(id string, doc map[string]any) error {
	src, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}
	batch := s.index.NewBatch()
	if err := batch.Index(id, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	batch.SetInternal(sourceKey(id), src)
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (s *documentStore) get(id string) (map[string]any, bool, error) {
	src, err := s.index.GetInternal(sourceKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("read document %s: %w", id, err)
	}
	if src == nil {
		return nil, false, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(src, &doc); err != nil {
		return nil, false, fmt.Errorf("decode document %s: %w", id, err)
	}
	return doc, true, nil
}

// allIDs returns every document ID in the store.
func (s *documentStore) allIDs() ([]string, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}
	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// truncate deletes every document and its stored source.
func (s *documentStore) truncate() (int, error) {
	ids, err := s.allIDs()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
		batch.DeleteInternal(sourceKey(id))
	}
	if err := s.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return len(ids), nil
}

func (s *documentStore) count() (uint64, error) {
	return s.index.DocCount()
}

func (s *documentStore) close() error {
	return s.index.Close()
}

// destroy closes the store and removes its files.
func (s *documentStore) destroy() error {
	if err := s.close(); err != nil {
		return err
	}
	if s.path == "" {
		return nil
	}
	return os.RemoveAll(s.path)
}
