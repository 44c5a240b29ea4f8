// Package elasticsearch implements engine.Client against an Elasticsearch
// cluster using the official go-elasticsearch client.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// Config configures the cluster connection.
type Config struct {
	Addresses      []string
	Username       string
	Password       string
	RequestTimeout time.Duration
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
	// BreakerOptions tune the circuit breaker guarding every request.
	BreakerOptions []schemaerrors.CircuitBreakerOption
}

// Client is the Elasticsearch engine.Client.
type Client struct {
	es      *elasticsearch.Client
	breaker *schemaerrors.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a client. No request is sent until the first call.
func New(cfg Config) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
		// The schema manager owns retries and backoff.
		DisableRetry: true,
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, schemaerrors.ConfigError("failed to create elasticsearch client", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		es:      es,
		breaker: schemaerrors.NewCircuitBreaker("elasticsearch", cfg.BreakerOptions...),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Breaker exposes the circuit breaker state for status reporting.
func (c *Client) Breaker() *schemaerrors.CircuitBreaker {
	return c.breaker
}

// esError is the error body the cluster returns.
type esError struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// response is a fully read response.
type response struct {
	status int
	body   []byte
}

func (r response) isError() bool { return r.status > 299 }

// errorType returns the error type from the body, if any.
func (r response) errorType() string {
	var e esError
	if json.Unmarshal(r.body, &e) == nil {
		return e.Error.Type
	}
	return ""
}

func (r response) reason() string {
	var e esError
	if json.Unmarshal(r.body, &e) == nil && e.Error.Reason != "" {
		return e.Error.Reason
	}
	return strings.TrimSpace(string(r.body))
}

// unavailableError marks failures that count against the breaker.
type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return e.err.Error() }
func (e *unavailableError) Unwrap() error { return e.err }

func countable(err error) bool {
	var u *unavailableError
	return errors.As(err, &u)
}

// do runs one request through the circuit breaker with a per-request
// timeout and reads the body. Transport failures and 5xx responses are
// returned as retryable errors; other statuses are left to the caller.
func (c *Client) do(ctx context.Context, op string, call func(ctx context.Context) (*esapi.Response, error)) (response, error) {
	var out response
	err := c.breaker.Execute(func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		res, err := call(reqCtx)
		if err != nil {
			return &unavailableError{err: err}
		}
		defer func() { _ = res.Body.Close() }()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return &unavailableError{err: fmt.Errorf("read response: %w", err)}
		}
		out = response{status: res.StatusCode, body: body}
		if res.StatusCode >= 500 {
			return &unavailableError{err: fmt.Errorf("%s: %s", res.Status(), out.reason())}
		}
		return nil
	}, countable)

	if err == nil {
		return out, nil
	}
	if errors.Is(err, schemaerrors.ErrCircuitOpen) {
		return out, schemaerrors.NetworkError("elasticsearch circuit breaker is open", err).WithDetail("operation", op)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return out, schemaerrors.New(schemaerrors.ErrCodeStoreTimeout, "elasticsearch request timed out", err).WithDetail("operation", op)
	}
	return out, schemaerrors.NetworkError("elasticsearch request failed", err).WithDetail("operation", op)
}

// requestError turns a 4xx response into a store error.
func requestError(op, target string, r response) error {
	code := schemaerrors.ErrCodeStoreRequest
	switch {
	case r.status == http.StatusNotFound:
		code = schemaerrors.ErrCodeIndexNotFound
	case r.errorType() == "illegal_argument_exception" && strings.Contains(r.reason(), "mapper"):
		code = schemaerrors.ErrCodeMappingRejected
	case r.errorType() == "strict_dynamic_mapping_exception" || r.errorType() == "document_parsing_exception" || r.errorType() == "mapper_parsing_exception":
		code = schemaerrors.ErrCodeMappingRejected
	}
	return schemaerrors.New(code, r.reason(), nil).
		WithDetail("operation", op).
		WithDetail("target", target).
		WithDetail("status", strconv.Itoa(r.status))
}

func encode(v any) (*bytes.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, schemaerrors.InternalError("failed to encode request body", err)
	}
	return bytes.NewReader(b), nil
}

func settingsBody(settings map[string]any) map[string]any {
	if settings == nil {
		return map[string]any{}
	}
	return settings
}

// CreateIndex implements engine.Client.
func (c *Client) CreateIndex(ctx context.Context, d descriptor.Descriptor, settings engine.IndexSettings) error {
	merged := settings.Merge(d.Settings())
	delete(merged, engine.SettingLifecycleName)
	body, err := encode(map[string]any{
		"aliases":  map[string]any{d.Alias(): map[string]any{"is_write_index": false}},
		"mappings": d.Mappings(),
		"settings": merged,
	})
	if err != nil {
		return err
	}

	name := d.QualifiedName()
	res, err := c.do(ctx, "create_index", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.Create(name,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(body))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		if res.errorType() == "resource_already_exists_exception" {
			c.logger.Debug("es_index_already_exists", slog.String("index", name))
			return nil
		}
		return requestError("create_index", name, res)
	}
	return nil
}

// templateBody renders the composable template request.
func templateBody(t *descriptor.Template, settings map[string]any, priority int) map[string]any {
	body := map[string]any{
		"index_patterns": []string{t.IndexPattern()},
		"priority":       priority,
		"template": map[string]any{
			"aliases":  map[string]any{t.Alias(): map[string]any{}},
			"mappings": t.Mappings(),
			"settings": settingsBody(settings),
		},
	}
	if composed := t.ComposedOf(); len(composed) > 0 {
		body["composed_of"] = composed
	}
	return body
}

// CreateIndexTemplate implements engine.Client.
func (c *Client) CreateIndexTemplate(ctx context.Context, t *descriptor.Template, settings engine.IndexSettings, createOnly bool) error {
	body, err := encode(templateBody(t, settings.Merge(t.Settings()), settings.TemplatePriority))
	if err != nil {
		return err
	}

	name := t.TemplateName()
	res, err := c.do(ctx, "put_index_template", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutIndexTemplate(name, body,
			c.es.Indices.PutIndexTemplate.WithContext(ctx),
			c.es.Indices.PutIndexTemplate.WithCreate(createOnly))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		if createOnly && res.status == http.StatusBadRequest && strings.Contains(res.reason(), "already exists") {
			c.logger.Debug("es_template_already_exists", slog.String("template", name))
			return nil
		}
		return requestError("put_index_template", name, res)
	}
	return nil
}

// PutMapping implements engine.Client.
func (c *Client) PutMapping(ctx context.Context, d descriptor.Descriptor, props []mapping.Property) error {
	if len(props) == 0 {
		return nil
	}
	raw, err := mapping.PropertiesJSON(props)
	if err != nil {
		return schemaerrors.InternalError("failed to encode properties", err)
	}

	targets := engine.Targets(d)
	res, err := c.do(ctx, "put_mapping", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutMapping(targets, bytes.NewReader(raw),
			c.es.Indices.PutMapping.WithContext(ctx))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("put_mapping", strings.Join(targets, ","), res)
	}
	return nil
}

// GetMappings implements engine.Client.
func (c *Client) GetMappings(ctx context.Context, pattern string, source engine.MappingSource) (map[string]mapping.IndexMapping, error) {
	if source == engine.SourceIndexTemplate {
		return c.templateMappings(ctx, pattern)
	}

	res, err := c.do(ctx, "get_mapping", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.GetMapping(
			c.es.Indices.GetMapping.WithContext(ctx),
			c.es.Indices.GetMapping.WithIndex(pattern),
			c.es.Indices.GetMapping.WithAllowNoIndices(true),
			c.es.Indices.GetMapping.WithIgnoreUnavailable(true))
	})
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusNotFound {
		return map[string]mapping.IndexMapping{}, nil
	}
	if res.isError() {
		return nil, requestError("get_mapping", pattern, res)
	}

	var parsed map[string]struct {
		Mappings json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return nil, schemaerrors.StoreError("failed to decode mappings", err)
	}

	out := make(map[string]mapping.IndexMapping, len(parsed))
	for name, entry := range parsed {
		m, err := mapping.FromJSON(name, entry.Mappings)
		if err != nil {
			return nil, schemaerrors.New(schemaerrors.ErrCodeInvalidMapping, "live mapping is unreadable", err).WithDetail("index", name)
		}
		out[name] = m
	}
	return out, nil
}

// indexTemplate is one entry of the get-index-template response.
type indexTemplate struct {
	Name          string `json:"name"`
	IndexTemplate struct {
		IndexPatterns []string `json:"index_patterns"`
		ComposedOf    []string `json:"composed_of,omitempty"`
		Priority      int      `json:"priority"`
		Template      struct {
			Aliases  map[string]any  `json:"aliases,omitempty"`
			Mappings json.RawMessage `json:"mappings,omitempty"`
			Settings map[string]any  `json:"settings,omitempty"`
		} `json:"template"`
	} `json:"index_template"`
}

// listTemplates reads all composable templates. Name filtering happens
// locally since the endpoint takes one name or wildcard only.
func (c *Client) listTemplates(ctx context.Context) ([]indexTemplate, error) {
	res, err := c.do(ctx, "get_index_template", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.GetIndexTemplate(c.es.Indices.GetIndexTemplate.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusNotFound {
		return nil, nil
	}
	if res.isError() {
		return nil, requestError("get_index_template", "*", res)
	}

	var parsed struct {
		IndexTemplates []indexTemplate `json:"index_templates"`
	}
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return nil, schemaerrors.StoreError("failed to decode index templates", err)
	}
	return parsed.IndexTemplates, nil
}

func (c *Client) templateMappings(ctx context.Context, pattern string) (map[string]mapping.IndexMapping, error) {
	tpls, err := c.listTemplates(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]mapping.IndexMapping)
	for _, t := range tpls {
		if !engine.MatchPattern(pattern, t.Name) {
			continue
		}
		raw := t.IndexTemplate.Template.Mappings
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}
		m, err := mapping.FromJSON(t.Name, raw)
		if err != nil {
			return nil, schemaerrors.New(schemaerrors.ErrCodeInvalidMapping, "live template mapping is unreadable", err).WithDetail("template", t.Name)
		}
		out[t.Name] = m
	}
	return out, nil
}

// PutSettings implements engine.Client.
func (c *Client) PutSettings(ctx context.Context, ds []descriptor.Descriptor, settings map[string]string) error {
	if len(ds) == 0 || len(settings) == 0 {
		return nil
	}
	body, err := encode(settings)
	if err != nil {
		return err
	}

	targets := engine.Targets(ds...)
	res, err := c.do(ctx, "put_settings", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutSettings(body,
			c.es.Indices.PutSettings.WithContext(ctx),
			c.es.Indices.PutSettings.WithIndex(targets...))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("put_settings", strings.Join(targets, ","), res)
	}
	return nil
}

// UpdateIndexTemplateSettings implements engine.Client. The stored
// template is read back, its settings replaced and the template rewritten.
func (c *Client) UpdateIndexTemplateSettings(ctx context.Context, t *descriptor.Template, settings engine.IndexSettings) error {
	tpls, err := c.listTemplates(ctx)
	if err != nil {
		return err
	}
	var current *indexTemplate
	for i := range tpls {
		if tpls[i].Name == t.TemplateName() {
			current = &tpls[i]
			break
		}
	}
	if current == nil {
		return schemaerrors.New(schemaerrors.ErrCodeIndexNotFound, "index template ["+t.TemplateName()+"] not found", nil).
			WithDetail("template", t.TemplateName())
	}

	merged := flattenSettings("", current.IndexTemplate.Template.Settings)
	for k, v := range settings.Merge(t.Settings()) {
		merged[k] = v
	}

	inner := map[string]any{"settings": merged}
	if len(current.IndexTemplate.Template.Aliases) > 0 {
		inner["aliases"] = current.IndexTemplate.Template.Aliases
	}
	if len(current.IndexTemplate.Template.Mappings) > 0 {
		inner["mappings"] = current.IndexTemplate.Template.Mappings
	}
	body := map[string]any{
		"index_patterns": current.IndexTemplate.IndexPatterns,
		"priority":       settings.TemplatePriority,
		"template":       inner,
	}
	if len(current.IndexTemplate.ComposedOf) > 0 {
		body["composed_of"] = current.IndexTemplate.ComposedOf
	}
	reader, err := encode(body)
	if err != nil {
		return err
	}

	name := t.TemplateName()
	res, err := c.do(ctx, "put_index_template", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.PutIndexTemplate(name, reader, c.es.Indices.PutIndexTemplate.WithContext(ctx))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("put_index_template", name, res)
	}
	return nil
}

// flattenSettings turns the nested settings the cluster returns into
// dotted keys so they can be merged with configured values.
func flattenSettings(prefix string, in map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for fk, fv := range flattenSettings(key, nested) {
				out[fk] = fv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// PutIndexLifeCyclePolicy implements engine.Client.
func (c *Client) PutIndexLifeCyclePolicy(ctx context.Context, name, minAge string) error {
	body, err := encode(map[string]any{
		"policy": map[string]any{
			"phases": map[string]any{
				"delete": map[string]any{
					"min_age": minAge,
					"actions": map[string]any{"delete": map[string]any{}},
				},
			},
		},
	})
	if err != nil {
		return err
	}

	res, err := c.do(ctx, "put_lifecycle", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.ILM.PutLifecycle(name,
			c.es.ILM.PutLifecycle.WithContext(ctx),
			c.es.ILM.PutLifecycle.WithBody(body))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("put_lifecycle", name, res)
	}
	return nil
}

// IndexExists implements engine.Client.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.do(ctx, "index_exists", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	})
	if err != nil {
		return false, err
	}
	switch res.status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, requestError("index_exists", name, res)
	}
}

// GetDocument implements engine.Client.
func (c *Client) GetDocument(ctx context.Context, index, id string) (map[string]any, bool, error) {
	res, err := c.do(ctx, "get_document", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Get(index, id, c.es.Get.WithContext(ctx))
	})
	if err != nil {
		return nil, false, err
	}

	var parsed struct {
		Found  bool           `json:"found"`
		Source map[string]any `json:"_source"`
	}
	if res.status == http.StatusNotFound {
		// A missing document answers 404 with found=false; a missing
		// index answers 404 with an error body.
		if res.errorType() != "" {
			return nil, false, requestError("get_document", index, res)
		}
		return nil, false, nil
	}
	if res.isError() {
		return nil, false, requestError("get_document", index, res)
	}
	if err := json.Unmarshal(res.body, &parsed); err != nil {
		return nil, false, schemaerrors.StoreError("failed to decode document", err)
	}
	return parsed.Source, parsed.Found, nil
}

// UpsertDocument implements engine.Client. The write is refreshed before
// returning so a following read sees it.
func (c *Client) UpsertDocument(ctx context.Context, index, id string, doc map[string]any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.do(ctx, "index_document", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Index(index, body,
			c.es.Index.WithContext(ctx),
			c.es.Index.WithDocumentID(id),
			c.es.Index.WithRefresh("true"))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("index_document", index, res)
	}
	return nil
}

// DeleteIndex implements engine.Client.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	res, err := c.do(ctx, "delete_index", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("delete_index", name, res)
	}
	return nil
}

// TruncateIndex implements engine.Client.
func (c *Client) TruncateIndex(ctx context.Context, name string) error {
	body, err := encode(map[string]any{"query": map[string]any{"match_all": map[string]any{}}})
	if err != nil {
		return err
	}
	res, err := c.do(ctx, "delete_by_query", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.DeleteByQuery([]string{name}, body,
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithRefresh(true),
			c.es.DeleteByQuery.WithConflicts("proceed"))
	})
	if err != nil {
		return err
	}
	if res.isError() {
		return requestError("delete_by_query", name, res)
	}
	return nil
}

// ListIndices implements engine.Client.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.do(ctx, "cat_indices", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Cat.Indices(
			c.es.Cat.Indices.WithContext(ctx),
			c.es.Cat.Indices.WithIndex(pattern),
			c.es.Cat.Indices.WithFormat("json"),
			c.es.Cat.Indices.WithH("index"))
	})
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusNotFound {
		return nil, nil
	}
	if res.isError() {
		return nil, requestError("cat_indices", pattern, res)
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.Unmarshal(res.body, &rows); err != nil {
		return nil, schemaerrors.StoreError("failed to decode index list", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Index)
	}
	sort.Strings(names)
	return names, nil
}

// IsHealthy implements engine.Client. A red cluster is unhealthy.
func (c *Client) IsHealthy(ctx context.Context) bool {
	res, err := c.do(ctx, "cluster_health", func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	})
	if err != nil || res.isError() {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(res.body, &health); err != nil {
		return false
	}
	return health.Status == "green" || health.Status == "yellow"
}

// Close implements engine.Client. The HTTP client holds no resources that
// need releasing.
func (c *Client) Close() error {
	return nil
}

var _ engine.Client = (*Client)(nil)
