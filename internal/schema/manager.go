package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/mapping"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

// Manager converges the live schema towards the descriptors. It holds no
// state between calls besides its collaborators, so every method may be
// called repeatedly.
type Manager struct {
	client    engine.Client
	indices   []descriptor.Descriptor
	templates []*descriptor.Template
	cfg       *config.Config

	validator       *Validator
	logger          *slog.Logger
	metrics         *telemetry.Metrics
	history         *telemetry.History
	creationTimeout time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records pass and startup metrics.
func WithMetrics(metrics *telemetry.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHistory records every initialization pass.
func WithHistory(h *telemetry.History) ManagerOption {
	return func(m *Manager) { m.history = h }
}

// WithCreationTimeout overrides schema_manager.creation_timeout.
func WithCreationTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.creationTimeout = d }
}

// NewManager creates a manager for the given plain index and template
// descriptors.
func NewManager(client engine.Client, indices []descriptor.Descriptor, templates []*descriptor.Template, cfg *config.Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	m := &Manager{
		client:    client,
		indices:   indices,
		templates: templates,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.creationTimeout <= 0 {
		m.creationTimeout = cfg.SchemaManager.CreationTimeoutDuration()
	}
	m.validator = NewValidator(m.logger, mapping.NewCache(mapping.DefaultCacheSize))
	return m
}

// History returns the pass history, nil when none was configured.
func (m *Manager) History() *telemetry.History {
	return m.history
}

// Startup converges the schema, retrying every failure with backoff until
// it succeeds or ctx ends. It does nothing when schema management is
// disabled.
func (m *Manager) Startup(ctx context.Context) error {
	if !m.cfg.SchemaManager.CreateSchema {
		m.logger.Info("schema_startup_skipped", slog.String("reason", "create_schema disabled"))
		return nil
	}

	start := time.Now()
	rc := m.cfg.SchemaManager.Retry
	attempt := 0
	retryCfg := schemaerrors.RetryConfig{
		MaxRetries:   rc.MaxRetries,
		InitialDelay: rc.InitialDelayDuration(),
		MaxDelay:     rc.MaxDelayDuration(),
		Multiplier:   rc.Multiplier,
		Jitter:       rc.Jitter,
		OnRetry: func(n int, err error, wait time.Duration) {
			attrs := append([]any{
				slog.Int("attempt", n),
				slog.Duration("retry_in", wait),
			}, schemaerrors.LogAttrs(err)...)
			m.logger.Error("schema_startup_attempt_failed", attrs...)
		},
	}

	err := schemaerrors.Retry(ctx, retryCfg, func() error {
		attempt++
		return m.runPass(ctx, attempt)
	})
	if err != nil {
		m.logger.Error("schema_startup_failed",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		return err
	}

	elapsed := time.Since(start)
	m.metrics.ObserveStartup(elapsed)
	m.logger.Info("schema_startup_complete",
		slog.Int("attempts", attempt),
		slog.Duration("duration", elapsed))
	return nil
}

// passReport collects what one pass changed.
type passReport struct {
	created     []string
	fieldsAdded int
}

// runPass runs one initialization pass and records its outcome. Panics
// are turned into errors before they reach the retry loop.
func (m *Manager) runPass(ctx context.Context, attempt int) (err error) {
	start := time.Now()
	report := &passReport{}
	defer func() {
		if r := recover(); r != nil {
			err = schemaerrors.New(schemaerrors.ErrCodeCreationPanic, fmt.Sprintf("panic during schema initialization: %v", r), nil)
		}
		elapsed := time.Since(start)
		pass := telemetry.Pass{
			Attempt:     attempt,
			StartedAt:   start,
			Duration:    elapsed,
			Succeeded:   err == nil,
			Created:     report.created,
			FieldsAdded: report.fieldsAdded,
		}
		code := ""
		if err != nil {
			code = schemaerrors.GetCode(err)
			if code == "" {
				code = schemaerrors.ErrCodeInternal
			}
			pass.ErrorCode = code
			pass.Error = err.Error()
		}
		m.metrics.ObservePass(elapsed, code)
		m.history.Record(pass)
	}()

	return m.initializeSchema(ctx, report)
}

// InitializeSchema runs one pass of the pipeline without retrying.
func (m *Manager) InitializeSchema(ctx context.Context) error {
	return m.initializeSchema(ctx, &passReport{})
}

func (m *Manager) initializeSchema(ctx context.Context, report *passReport) error {
	live, err := m.readLive(ctx)
	if err != nil {
		return err
	}

	newFields, err := m.validate(live)
	if err != nil {
		return err
	}

	tasks := m.missingResources(live)
	if len(tasks) > 0 {
		m.logger.Info("schema_creating_resources", slog.Int("count", len(tasks)))
		if err := m.runCreations(ctx, tasks); err != nil {
			return err
		}
		for _, t := range tasks {
			report.created = append(report.created, t.name)
		}
	}

	if err := m.UpdateSchemaMappings(ctx, newFields); err != nil {
		return err
	}
	for _, props := range newFields {
		report.fieldsAdded += len(props)
	}

	if err := m.updateSettings(ctx); err != nil {
		return err
	}

	if m.cfg.Retention.Enabled {
		if err := m.client.PutIndexLifeCyclePolicy(ctx, m.cfg.Retention.PolicyName, m.cfg.Retention.MinimumAge); err != nil {
			return fmt.Errorf("install retention policy %s: %w", m.cfg.Retention.PolicyName, err)
		}
		m.logger.Info("schema_retention_policy_installed",
			slog.String("policy", m.cfg.Retention.PolicyName),
			slog.String("minimum_age", m.cfg.Retention.MinimumAge))
	}
	return nil
}

// liveSchema is what the store currently holds for the managed descriptors.
type liveSchema struct {
	indices   map[string]mapping.IndexMapping
	templates map[string]mapping.IndexMapping
}

// readLive fetches live index mappings with one query for all descriptors
// and template mappings with a second one.
func (m *Manager) readLive(ctx context.Context) (liveSchema, error) {
	live := liveSchema{
		indices:   map[string]mapping.IndexMapping{},
		templates: map[string]mapping.IndexMapping{},
	}

	patterns := make([]string, 0, len(m.indices)+len(m.templates))
	for _, d := range m.indices {
		patterns = append(patterns, engine.LivePattern(d))
	}
	for _, t := range m.templates {
		patterns = append(patterns, engine.LivePattern(t))
	}
	if len(patterns) > 0 {
		indices, err := m.client.GetMappings(ctx, engine.JoinPatterns(patterns...), engine.SourceIndex)
		if err != nil {
			return live, fmt.Errorf("read index mappings: %w", err)
		}
		live.indices = indices
	}

	if len(m.templates) > 0 {
		names := make([]string, len(m.templates))
		for i, t := range m.templates {
			names[i] = t.TemplateName()
		}
		templates, err := m.client.GetMappings(ctx, engine.JoinPatterns(names...), engine.SourceIndexTemplate)
		if err != nil {
			return live, fmt.Errorf("read template mappings: %w", err)
		}
		live.templates = templates
	}
	return live, nil
}

// validate checks plain descriptors against indices and templates against
// stored templates.
func (m *Manager) validate(live liveSchema) (map[descriptor.Descriptor][]mapping.Property, error) {
	fields, err := m.validator.ValidateIndexMappings(live.indices, m.indices)
	if err != nil {
		return nil, err
	}

	templateDescs := make([]descriptor.Descriptor, len(m.templates))
	for i, t := range m.templates {
		templateDescs[i] = t
	}
	templateFields, err := m.validator.ValidateIndexMappings(live.templates, templateDescs)
	if err != nil {
		return nil, err
	}
	for d, props := range templateFields {
		fields[d] = props
	}
	return fields, nil
}

// creation is one independent resource creation.
type creation struct {
	name string
	kind string
	run  func(ctx context.Context) error
}

// missingResources lists the creations needed to make every descriptor
// exist. A template whose bootstrap index is gone only gets the index.
func (m *Manager) missingResources(live liveSchema) []creation {
	var tasks []creation
	for _, d := range m.indices {
		if _, ok := live.indices[d.QualifiedName()]; ok {
			continue
		}
		tasks = append(tasks, m.indexCreation(d))
	}
	for _, t := range m.templates {
		_, templateExists := live.templates[t.TemplateName()]
		_, indexExists := live.indices[t.QualifiedName()]
		switch {
		case !templateExists:
			tasks = append(tasks, m.templateCreation(t))
		case !indexExists:
			tasks = append(tasks, m.indexCreation(t))
		}
	}
	return tasks
}

func (m *Manager) indexCreation(d descriptor.Descriptor) creation {
	return creation{
		name: d.QualifiedName(),
		kind: telemetry.KindIndex,
		run: func(ctx context.Context) error {
			if err := m.client.CreateIndex(ctx, d, m.settingsFor(d)); err != nil {
				return fmt.Errorf("create index %s: %w", d.QualifiedName(), err)
			}
			m.metrics.ResourceCreated(telemetry.KindIndex)
			m.logger.Info("schema_index_created", slog.String("index", d.QualifiedName()))
			return nil
		},
	}
}

// templateCreation stores the template, then its bootstrap index so at
// least one concrete index matches the pattern.
func (m *Manager) templateCreation(t *descriptor.Template) creation {
	return creation{
		name: t.TemplateName(),
		kind: telemetry.KindTemplate,
		run: func(ctx context.Context) error {
			settings := m.settingsFor(t)
			if err := m.client.CreateIndexTemplate(ctx, t, settings, true); err != nil {
				return fmt.Errorf("create index template %s: %w", t.TemplateName(), err)
			}
			m.metrics.ResourceCreated(telemetry.KindTemplate)
			m.logger.Info("schema_template_created", slog.String("template", t.TemplateName()))

			if err := m.client.CreateIndex(ctx, t, settings); err != nil {
				return fmt.Errorf("create index %s for template: %w", t.QualifiedName(), err)
			}
			m.metrics.ResourceCreated(telemetry.KindIndex)
			m.logger.Info("schema_index_created",
				slog.String("index", t.QualifiedName()),
				slog.String("template", t.TemplateName()))
			return nil
		},
	}
}

// runCreations starts every task concurrently and waits for all of them
// under one deadline. The first failure, a panic or the deadline fails the
// whole batch.
func (m *Manager) runCreations(ctx context.Context, tasks []creation) error {
	ctx, cancel := context.WithTimeout(ctx, m.creationTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = schemaerrors.New(schemaerrors.ErrCodeCreationPanic,
						fmt.Sprintf("panic while creating %s: %v", task.name, r), nil).
						WithDetail("resource", task.name)
				}
			}()
			return task.run(gctx)
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return m.creationTimedOut(len(tasks), err)
		}
		if _, ok := schemaerrors.As(err); ok {
			return err
		}
		return schemaerrors.New(schemaerrors.ErrCodeCreationFailed, "failed to create schema resources", err)
	case <-ctx.Done():
		// Tasks that ignore cancellation are left to finish on their own.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return m.creationTimedOut(len(tasks), ctx.Err())
		}
		return ctx.Err()
	}
}

func (m *Manager) creationTimedOut(n int, cause error) error {
	return schemaerrors.New(schemaerrors.ErrCodeCreationFailed,
		fmt.Sprintf("creating %d schema resources did not finish within %s", n, m.creationTimeout), cause).
		WithDetail("timeout", m.creationTimeout.String())
}

// UpdateSchemaMappings appends new fields. A template is rewritten with its
// full desired mapping and the fields are added to its existing indices;
// a plain index gets a mapping update naming exactly the new fields.
func (m *Manager) UpdateSchemaMappings(ctx context.Context, newFields map[descriptor.Descriptor][]mapping.Property) error {
	descs := make([]descriptor.Descriptor, 0, len(newFields))
	for d, props := range newFields {
		if len(props) > 0 {
			descs = append(descs, d)
		}
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].QualifiedName() < descs[j].QualifiedName() })

	for _, d := range descs {
		props := newFields[d]
		kind := telemetry.KindIndex
		if t, ok := d.(*descriptor.Template); ok {
			kind = telemetry.KindTemplate
			if err := m.client.CreateIndexTemplate(ctx, t, m.settingsFor(t), false); err != nil {
				return fmt.Errorf("update index template %s: %w", t.TemplateName(), err)
			}
		}
		if err := m.client.PutMapping(ctx, d, props); err != nil {
			return fmt.Errorf("update mapping of %s: %w", d.QualifiedName(), err)
		}
		m.metrics.FieldsAdded(kind, len(props))
		m.logger.Info("schema_fields_added",
			slog.String("descriptor", d.QualifiedName()),
			slog.String("kind", kind),
			slog.String("fields", strings.Join(mapping.Names(props), ",")))
	}
	return nil
}

// settingsFor returns the configured settings of one descriptor.
func (m *Manager) settingsFor(d descriptor.Descriptor) engine.IndexSettings {
	s := engine.IndexSettings{
		NumberOfShards:   m.cfg.Index.ShardsFor(d.Name()),
		NumberOfReplicas: m.cfg.Index.ReplicasFor(d.Name()),
		TemplatePriority: m.cfg.Index.TemplatePriority,
	}
	if d.IsTemplate() && m.cfg.Retention.Enabled {
		s.LifecyclePolicy = m.cfg.Retention.PolicyName
	}
	return s
}

// updateSettings reapplies replica counts to every managed index, one
// request per distinct count, and rewrites the settings stored in every
// template. Shard counts of existing indices are fixed and never touched.
func (m *Manager) updateSettings(ctx context.Context) error {
	groups := make(map[int][]descriptor.Descriptor)
	for _, d := range m.all() {
		n := m.cfg.Index.ReplicasFor(d.Name())
		groups[n] = append(groups[n], d)
	}
	counts := make([]int, 0, len(groups))
	for n := range groups {
		counts = append(counts, n)
	}
	sort.Ints(counts)

	for _, n := range counts {
		settings := map[string]string{engine.SettingNumberOfReplicas: strconv.Itoa(n)}
		if err := m.client.PutSettings(ctx, groups[n], settings); err != nil {
			return fmt.Errorf("update replicas to %d: %w", n, err)
		}
	}

	for _, t := range m.templates {
		if err := m.client.UpdateIndexTemplateSettings(ctx, t, m.settingsFor(t)); err != nil {
			return fmt.Errorf("update settings of template %s: %w", t.TemplateName(), err)
		}
	}
	return nil
}

func (m *Manager) all() []descriptor.Descriptor {
	out := make([]descriptor.Descriptor, 0, len(m.indices)+len(m.templates))
	out = append(out, m.indices...)
	for _, t := range m.templates {
		out = append(out, t)
	}
	return out
}

// InitialiseResources creates every index and template without looking at
// the live schema first. Existing resources are left as they are.
func (m *Manager) InitialiseResources(ctx context.Context) error {
	tasks := make([]creation, 0, len(m.indices)+len(m.templates))
	for _, d := range m.indices {
		tasks = append(tasks, m.indexCreation(d))
	}
	for _, t := range m.templates {
		tasks = append(tasks, m.templateCreation(t))
	}
	if len(tasks) == 0 {
		return nil
	}
	return m.runCreations(ctx, tasks)
}

// Status describes how far the live schema is from the descriptors.
type Status struct {
	Enabled          bool                `json:"enabled"`
	Ready            bool                `json:"ready"`
	MissingIndices   []string            `json:"missing_indices,omitempty"`
	MissingTemplates []string            `json:"missing_templates,omitempty"`
	PendingFields    map[string][]string `json:"pending_fields,omitempty"`
	// ValidationError is set when the drift cannot be migrated automatically.
	ValidationError string `json:"validation_error,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
}

// Status inspects the live schema without changing it. Read failures are
// returned as errors; validation failures are reported in the status.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	st := Status{Enabled: m.cfg.SchemaManager.CreateSchema}

	live, err := m.readLive(ctx)
	if err != nil {
		return st, err
	}

	for _, d := range m.indices {
		if _, ok := live.indices[d.QualifiedName()]; !ok {
			st.MissingIndices = append(st.MissingIndices, d.QualifiedName())
		}
	}
	for _, t := range m.templates {
		if _, ok := live.templates[t.TemplateName()]; !ok {
			st.MissingTemplates = append(st.MissingTemplates, t.TemplateName())
		}
		if _, ok := live.indices[t.QualifiedName()]; !ok {
			st.MissingIndices = append(st.MissingIndices, t.QualifiedName())
		}
	}
	sort.Strings(st.MissingIndices)
	sort.Strings(st.MissingTemplates)

	fields, err := m.validate(live)
	if err != nil {
		st.ValidationError = err.Error()
		st.ErrorCode = schemaerrors.GetCode(err)
	}
	for d, props := range fields {
		if st.PendingFields == nil {
			st.PendingFields = map[string][]string{}
		}
		st.PendingFields[d.QualifiedName()] = mapping.Names(props)
	}

	st.Ready = len(st.MissingIndices) == 0 && len(st.MissingTemplates) == 0 &&
		len(st.PendingFields) == 0 && st.ValidationError == ""
	return st, nil
}

// IsSchemaReadyForUse reports whether every resource exists and no
// migration is pending. It is always true when schema management is
// disabled. It only reads from the store.
func (m *Manager) IsSchemaReadyForUse(ctx context.Context) bool {
	if !m.cfg.SchemaManager.CreateSchema {
		m.metrics.SetReady(true)
		return true
	}
	st, err := m.Status(ctx)
	if err != nil {
		m.logger.Warn("schema_readiness_check_failed", schemaerrors.LogAttrs(err)...)
		m.metrics.SetReady(false)
		return false
	}
	m.metrics.SetReady(st.Ready)
	return st.Ready
}

// IsAllIndicesExist reports whether every plain index exists, ignoring
// mapping drift and templates.
func (m *Manager) IsAllIndicesExist(ctx context.Context) bool {
	for _, d := range m.indices {
		ok, err := m.client.IndexExists(ctx, d.QualifiedName())
		if err != nil {
			m.logger.Warn("schema_index_check_failed",
				append([]any{slog.String("index", d.QualifiedName())}, schemaerrors.LogAttrs(err)...)...)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// TruncateIndices removes all documents from every managed index and
// returns the truncated index names.
func (m *Manager) TruncateIndices(ctx context.Context) ([]string, error) {
	targets := engine.Targets(m.all()...)
	if len(targets) == 0 {
		return nil, nil
	}
	names, err := m.client.ListIndices(ctx, engine.JoinPatterns(targets...))
	if err != nil {
		return nil, fmt.Errorf("list managed indices: %w", err)
	}
	for _, name := range names {
		if err := m.client.TruncateIndex(ctx, name); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", name, err)
		}
		m.logger.Info("schema_index_truncated", slog.String("index", name))
	}
	return names, nil
}

// ArchivedIndices returns indices that belong to an older version of a
// template: they match the template's all-versions pattern but not its
// current index pattern.
func (m *Manager) ArchivedIndices(ctx context.Context) ([]string, error) {
	var archived []string
	for _, t := range m.templates {
		base := strings.TrimSuffix(t.QualifiedName(), t.Version()+"_")
		names, err := m.client.ListIndices(ctx, base+"*")
		if err != nil {
			return nil, fmt.Errorf("list indices of %s: %w", t.Name(), err)
		}
		for _, name := range names {
			if t.AllVersionsPattern().MatchString(name) && !engine.MatchPattern(t.IndexPattern(), name) {
				archived = append(archived, name)
			}
		}
	}
	sort.Strings(archived)
	return archived, nil
}

// DeleteArchivedIndices deletes every index returned by ArchivedIndices.
func (m *Manager) DeleteArchivedIndices(ctx context.Context) error {
	archived, err := m.ArchivedIndices(ctx)
	if err != nil {
		return err
	}
	for _, name := range archived {
		if err := m.client.DeleteIndex(ctx, name); err != nil {
			return fmt.Errorf("delete archived index %s: %w", name, err)
		}
		m.logger.Info("schema_archived_index_deleted", slog.String("index", name))
	}
	return nil
}
