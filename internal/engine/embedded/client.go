// Package embedded is a single-process document store that honours the
// engine.Client contract without an external cluster.
//
// Index, template and policy definitions live in a SQLite catalog. The
// documents of every physical index live in their own bleve index. A file
// lock on the data directory keeps a second process from opening it.
package embedded

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// Client is the embedded engine.Client.
type Client struct {
	mu      sync.RWMutex
	dir     string
	catalog *catalog
	docs    map[string]*documentStore
	lock    *flock.Flock
	logger  *slog.Logger
	now     func() time.Time
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the time source. Used for retention tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Open opens the store at dir. An empty dir keeps everything in memory.
func Open(dir string, opts ...Option) (*Client, error) {
	c := &Client{
		dir:    dir,
		docs:   make(map[string]*documentStore),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, schemaerrors.StoreError("failed to create data directory", err).WithDetail("path", dir)
		}
		c.lock = flock.New(filepath.Join(dir, ".lock"))
		acquired, err := c.lock.TryLock()
		if err != nil {
			return nil, schemaerrors.StoreError("failed to acquire data directory lock", err).WithDetail("path", dir)
		}
		if !acquired {
			return nil, schemaerrors.New(schemaerrors.ErrCodeStoreLocked, "data directory is in use by another process", nil).
				WithDetail("path", dir).
				WithSuggestion("stop the other searchschema process or point connect.data_dir elsewhere")
		}
	}

	cat, err := openCatalog(dir)
	if err != nil {
		c.unlock()
		if _, ok := err.(*corruptCatalogError); ok {
			return nil, schemaerrors.New(schemaerrors.ErrCodeCorruptCatalog, "embedded catalog is corrupt", err).
				WithDetail("path", dir).
				WithSuggestion("move the data directory aside and run searchschema migrate")
		}
		return nil, schemaerrors.StoreError("failed to open catalog", err)
	}
	c.catalog = cat

	c.logger.Info("embedded_store_opened",
		slog.String("data_dir", dir),
		slog.Bool("in_memory", dir == ""))
	return c, nil
}

func (c *Client) unlock() {
	if c.lock != nil {
		_ = c.lock.Unlock()
	}
}

func (c *Client) checkOpen() error {
	if c.closed {
		return schemaerrors.New(schemaerrors.ErrCodeStoreUnavailable, "embedded store is closed", nil)
	}
	return nil
}

// docPath is where the bleve index of a physical index lives.
func (c *Client) docPath(name string) string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, "indices", name+".bleve")
}

// documents returns the open document store of an index, opening it lazily.
// Must be called with the write lock held.
func (c *Client) documents(rec indexRecord) (*documentStore, error) {
	if ds, ok := c.docs[rec.Name]; ok {
		return ds, nil
	}
	ds, err := openDocumentStore(c.docPath(rec.Name), rec.Mapping)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to open document store", err).WithDetail("index", rec.Name)
	}
	c.docs[rec.Name] = ds
	return ds, nil
}

// createIndexLocked inserts an index row and its document store.
func (c *Client) createIndexLocked(ctx context.Context, name, alias string, m mapping.IndexMapping, settings map[string]any) (bool, error) {
	m.IndexName = name
	rec := indexRecord{Name: name, Alias: alias, Mapping: m, Settings: settings, CreatedAt: c.now()}
	created, err := c.catalog.insertIndex(ctx, rec)
	if err != nil {
		return false, schemaerrors.StoreError("failed to create index", err).WithDetail("index", name)
	}
	if !created {
		return false, nil
	}
	if _, err := c.documents(rec); err != nil {
		return false, err
	}
	c.logger.Debug("embedded_index_created", slog.String("index", name))
	return true, nil
}

// CreateIndex implements engine.Client.
func (c *Client) CreateIndex(ctx context.Context, d descriptor.Descriptor, settings engine.IndexSettings) error {
	m, err := mapping.FromJSON(d.QualifiedName(), d.Mappings())
	if err != nil {
		return schemaerrors.New(schemaerrors.ErrCodeInvalidMapping, "descriptor mapping is invalid", err).WithDetail("index", d.QualifiedName())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	merged := settings.Merge(d.Settings())
	delete(merged, engine.SettingLifecycleName)
	if t, ok := d.(*descriptor.Template); ok {
		// The template's own settings apply to its bootstrap index.
		if rec, found, err := c.catalog.template(ctx, t.TemplateName()); err == nil && found {
			for k, v := range rec.Settings {
				if _, set := merged[k]; !set {
					merged[k] = v
				}
			}
		}
	}

	_, err = c.createIndexLocked(ctx, d.QualifiedName(), d.Alias(), m, merged)
	return err
}

// CreateIndexTemplate implements engine.Client.
func (c *Client) CreateIndexTemplate(ctx context.Context, t *descriptor.Template, settings engine.IndexSettings, createOnly bool) error {
	m, err := mapping.FromJSON(t.TemplateName(), t.Mappings())
	if err != nil {
		return schemaerrors.New(schemaerrors.ErrCodeInvalidMapping, "template mapping is invalid", err).WithDetail("template", t.TemplateName())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	rec := templateRecord{
		Name:          t.TemplateName(),
		IndexPatterns: []string{t.IndexPattern()},
		Priority:      settings.TemplatePriority,
		Mapping:       m,
		Settings:      settings.Merge(t.Settings()),
	}
	if err := c.catalog.putTemplate(ctx, rec, createOnly); err != nil {
		return schemaerrors.StoreError("failed to store template", err).WithDetail("template", t.TemplateName())
	}
	return nil
}

// matchingIndices returns the catalog rows matching any of the targets.
// A concrete target that matches nothing is an index-not-found error.
func (c *Client) matchingIndices(ctx context.Context, targets []string) ([]indexRecord, error) {
	all, err := c.catalog.indices(ctx)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read catalog", err)
	}

	var out []indexRecord
	seen := make(map[string]bool, len(all))
	for _, target := range targets {
		found := false
		for _, rec := range all {
			if !engine.MatchPattern(target, rec.Name) {
				continue
			}
			found = true
			if !seen[rec.Name] {
				seen[rec.Name] = true
				out = append(out, rec)
			}
		}
		if !found && !strings.Contains(target, "*") {
			return nil, indexNotFound(target)
		}
	}
	return out, nil
}

func indexNotFound(name string) error {
	return schemaerrors.New(schemaerrors.ErrCodeIndexNotFound, "no such index ["+name+"]", nil).WithDetail("index", name)
}

// PutMapping implements engine.Client. Changing the definition of an
// existing field is rejected.
func (c *Client) PutMapping(ctx context.Context, d descriptor.Descriptor, props []mapping.Property) error {
	if len(props) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	recs, err := c.matchingIndices(ctx, engine.Targets(d))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		existing := rec.Mapping.PropertyMap()
		for _, p := range props {
			if cur, ok := existing[p.Name]; ok && !reflect.DeepEqual(cur, p.TypeDefinition) {
				return schemaerrors.New(schemaerrors.ErrCodeMappingRejected, "mapper for ["+p.Name+"] conflicts with existing mapping", nil).
					WithDetail("index", rec.Name).
					WithDetail("field", p.Name)
			}
		}
		rec.Mapping = rec.Mapping.WithProperties(props)
		if err := c.catalog.updateIndex(ctx, rec); err != nil {
			return schemaerrors.StoreError("failed to update mapping", err).WithDetail("index", rec.Name)
		}
	}
	return nil
}

// GetMappings implements engine.Client.
func (c *Client) GetMappings(ctx context.Context, pattern string, source engine.MappingSource) (map[string]mapping.IndexMapping, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	out := make(map[string]mapping.IndexMapping)
	if source == engine.SourceIndexTemplate {
		recs, err := c.catalog.templates(ctx)
		if err != nil {
			return nil, schemaerrors.StoreError("failed to read templates", err)
		}
		for _, rec := range recs {
			if engine.MatchPattern(pattern, rec.Name) {
				m := rec.Mapping
				m.IndexName = rec.Name
				out[rec.Name] = m
			}
		}
		return out, nil
	}

	recs, err := c.catalog.indices(ctx)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read indices", err)
	}
	for _, rec := range recs {
		if engine.MatchPattern(pattern, rec.Name) {
			out[rec.Name] = rec.Mapping
		}
	}
	return out, nil
}

// PutSettings implements engine.Client. The shard count of an existing
// index is final.
func (c *Client) PutSettings(ctx context.Context, ds []descriptor.Descriptor, settings map[string]string) error {
	if len(ds) == 0 || len(settings) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	recs, err := c.matchingIndices(ctx, engine.Targets(ds...))
	if err != nil {
		return err
	}
	for _, rec := range recs {
		for k, v := range settings {
			if k == engine.SettingNumberOfShards && fmt.Sprint(rec.Settings[k]) != v {
				return schemaerrors.StoreError("can't update non dynamic setting ["+k+"]", nil).WithDetail("index", rec.Name)
			}
			rec.Settings[k] = v
		}
		if err := c.catalog.updateIndex(ctx, rec); err != nil {
			return schemaerrors.StoreError("failed to update settings", err).WithDetail("index", rec.Name)
		}
	}
	return nil
}

// UpdateIndexTemplateSettings implements engine.Client.
func (c *Client) UpdateIndexTemplateSettings(ctx context.Context, t *descriptor.Template, settings engine.IndexSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	rec, found, err := c.catalog.template(ctx, t.TemplateName())
	if err != nil {
		return schemaerrors.StoreError("failed to read template", err)
	}
	if !found {
		return schemaerrors.New(schemaerrors.ErrCodeIndexNotFound, "index template ["+t.TemplateName()+"] not found", nil).
			WithDetail("template", t.TemplateName())
	}

	for k, v := range settings.Merge(t.Settings()) {
		rec.Settings[k] = v
	}
	rec.Priority = settings.TemplatePriority
	if err := c.catalog.putTemplate(ctx, rec, false); err != nil {
		return schemaerrors.StoreError("failed to update template settings", err).WithDetail("template", rec.Name)
	}
	return nil
}

// PutIndexLifeCyclePolicy implements engine.Client.
func (c *Client) PutIndexLifeCyclePolicy(ctx context.Context, name, minAge string) error {
	if _, err := ParseMinAge(minAge); err != nil {
		return schemaerrors.New(schemaerrors.ErrCodeConfigInvalid, "invalid lifecycle minimum age", err).WithDetail("min_age", minAge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.catalog.putPolicy(ctx, policyRecord{Name: name, MinAge: minAge, UpdatedAt: c.now()}); err != nil {
		return schemaerrors.StoreError("failed to store lifecycle policy", err).WithDetail("policy", name)
	}
	return nil
}

// IndexExists implements engine.Client. Aliases resolve to their index.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	_, found, err := c.catalog.index(ctx, name)
	if err != nil {
		return false, schemaerrors.StoreError("failed to read catalog", err)
	}
	return found, nil
}

// GetDocument implements engine.Client.
func (c *Client) GetDocument(ctx context.Context, index, id string) (map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}

	rec, found, err := c.catalog.index(ctx, index)
	if err != nil {
		return nil, false, schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return nil, false, indexNotFound(index)
	}
	ds, err := c.documents(rec)
	if err != nil {
		return nil, false, err
	}
	doc, ok, err := ds.get(id)
	if err != nil {
		return nil, false, schemaerrors.StoreError("failed to read document", err).WithDetail("index", rec.Name)
	}
	return doc, ok, nil
}

// UpsertDocument implements engine.Client. A missing index is created from
// the highest-priority matching template, or with a dynamic mapping when no
// template matches. Strict mappings reject unknown fields; dynamic ones
// learn them.
func (c *Client) UpsertDocument(ctx context.Context, index, id string, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	rec, found, err := c.catalog.index(ctx, index)
	if err != nil {
		return schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		if rec, err = c.autoCreateLocked(ctx, index); err != nil {
			return err
		}
	}

	unknown := unknownFields(rec.Mapping, doc)
	if len(unknown) > 0 {
		switch rec.Mapping.Dynamic {
		case mapping.DynamicStrict:
			return schemaerrors.New(schemaerrors.ErrCodeMappingRejected,
				fmt.Sprintf("mapping set to strict, dynamic introduction of [%s] within [_doc] is not allowed", unknown[0].Name), nil).
				WithDetail("index", rec.Name)
		case mapping.DynamicTrue:
			rec.Mapping = rec.Mapping.WithProperties(unknown)
			if err := c.catalog.updateIndex(ctx, rec); err != nil {
				return schemaerrors.StoreError("failed to update mapping", err).WithDetail("index", rec.Name)
			}
		}
	}

	ds, err := c.documents(rec)
	if err != nil {
		return err
	}
	if err := ds.put(id, doc); err != nil {
		return schemaerrors.StoreError("failed to write document", err).WithDetail("index", rec.Name)
	}
	return nil
}

// autoCreateLocked creates an index on first write.
func (c *Client) autoCreateLocked(ctx context.Context, name string) (indexRecord, error) {
	tpls, err := c.catalog.templates(ctx)
	if err != nil {
		return indexRecord{}, schemaerrors.StoreError("failed to read templates", err)
	}

	var best *templateRecord
	for i := range tpls {
		for _, p := range tpls[i].IndexPatterns {
			if engine.MatchPattern(p, name) && (best == nil || tpls[i].Priority > best.Priority) {
				best = &tpls[i]
			}
		}
	}

	m := mapping.New(name, mapping.DynamicTrue)
	settings := engine.IndexSettings{NumberOfShards: 1, NumberOfReplicas: 1}.Merge(nil)
	if best != nil {
		m = best.Mapping
		settings = best.Settings
		c.logger.Debug("embedded_index_from_template",
			slog.String("index", name),
			slog.String("template", best.Name))
	}
	if _, err := c.createIndexLocked(ctx, name, "", m, settings); err != nil {
		return indexRecord{}, err
	}
	rec, _, err := c.catalog.index(ctx, name)
	if err != nil {
		return indexRecord{}, schemaerrors.StoreError("failed to read catalog", err)
	}
	return rec, nil
}

// unknownFields returns the document's top-level fields missing from m
// with a type inferred from their value.
func unknownFields(m mapping.IndexMapping, doc map[string]any) []mapping.Property {
	var out []mapping.Property
	for name, v := range doc {
		if m.HasProperty(name) {
			continue
		}
		out = append(out, mapping.Property{Name: name, TypeDefinition: inferType(v)})
	}
	mapping.SortProperties(out)
	return out
}

func inferType(v any) map[string]any {
	switch t := v.(type) {
	case bool:
		return map[string]any{"type": "boolean"}
	case float64:
		if t == float64(int64(t)) {
			return map[string]any{"type": "long"}
		}
		return map[string]any{"type": "float"}
	case int, int32, int64:
		return map[string]any{"type": "long"}
	case map[string]any:
		return map[string]any{"type": "object"}
	default:
		return map[string]any{"type": "keyword"}
	}
}

// DeleteIndex implements engine.Client.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.deleteIndexLocked(ctx, name)
}

func (c *Client) deleteIndexLocked(ctx context.Context, name string) error {
	rec, found, err := c.catalog.index(ctx, name)
	if err != nil {
		return schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return indexNotFound(name)
	}

	if ds, ok := c.docs[rec.Name]; ok {
		if err := ds.destroy(); err != nil {
			return schemaerrors.StoreError("failed to remove documents", err).WithDetail("index", rec.Name)
		}
		delete(c.docs, rec.Name)
	} else if p := c.docPath(rec.Name); p != "" {
		if err := os.RemoveAll(p); err != nil {
			return schemaerrors.StoreError("failed to remove documents", err).WithDetail("index", rec.Name)
		}
	}
	if err := c.catalog.deleteIndex(ctx, rec.Name); err != nil {
		return schemaerrors.StoreError("failed to delete index", err).WithDetail("index", rec.Name)
	}
	c.logger.Debug("embedded_index_deleted", slog.String("index", rec.Name))
	return nil
}

// TruncateIndex implements engine.Client.
func (c *Client) TruncateIndex(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}

	rec, found, err := c.catalog.index(ctx, name)
	if err != nil {
		return schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return indexNotFound(name)
	}
	ds, err := c.documents(rec)
	if err != nil {
		return err
	}
	n, err := ds.truncate()
	if err != nil {
		return schemaerrors.StoreError("failed to truncate index", err).WithDetail("index", rec.Name)
	}
	c.logger.Debug("embedded_index_truncated", slog.String("index", rec.Name), slog.Int("documents", n))
	return nil
}

// ListIndices implements engine.Client.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	recs, err := c.catalog.indices(ctx)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read catalog", err)
	}
	var names []string
	for _, rec := range recs {
		if engine.MatchPattern(pattern, rec.Name) {
			names = append(names, rec.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DocCount returns the number of documents in an index.
func (c *Client) DocCount(ctx context.Context, index string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	rec, found, err := c.catalog.index(ctx, index)
	if err != nil {
		return 0, schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return 0, indexNotFound(index)
	}
	ds, err := c.documents(rec)
	if err != nil {
		return 0, err
	}
	return ds.count()
}

// IndexSettings returns the stored settings of an index as strings.
func (c *Client) IndexSettings(ctx context.Context, index string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	rec, found, err := c.catalog.index(ctx, index)
	if err != nil {
		return nil, schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return nil, indexNotFound(index)
	}
	return stringify(rec.Settings), nil
}

// TemplateSettings returns the stored settings and priority of a template.
func (c *Client) TemplateSettings(ctx context.Context, name string) (map[string]string, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(); err != nil {
		return nil, 0, err
	}
	rec, found, err := c.catalog.template(ctx, name)
	if err != nil {
		return nil, 0, schemaerrors.StoreError("failed to read catalog", err)
	}
	if !found {
		return nil, 0, schemaerrors.New(schemaerrors.ErrCodeIndexNotFound, "index template ["+name+"] not found", nil)
	}
	return stringify(rec.Settings), rec.Priority, nil
}

func stringify(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// IsHealthy implements engine.Client.
func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.catalog.ping(ctx) == nil
}

// Close implements engine.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for name, ds := range c.docs {
		if err := ds.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	c.docs = nil
	if err := c.catalog.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.unlock()
	return firstErr
}

var _ engine.Client = (*Client)(nil)
