package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/descriptor"
	"github.com/Aman-CERP/searchschema/internal/engine"
	"github.com/Aman-CERP/searchschema/internal/engine/connect"
	"github.com/Aman-CERP/searchschema/internal/schema"
	"github.com/Aman-CERP/searchschema/internal/telemetry"
)

// environment is an open store plus the schema objects built on it.
type environment struct {
	cfg      *config.Config
	client   engine.Client
	registry *descriptor.Registry
	manager  *schema.Manager
	metadata *schema.MetadataStore
	history  *telemetry.History
}

// openEnvironment connects to the configured store and builds the manager
// for the built-in analytics descriptors.
func openEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...schema.ManagerOption) (*environment, error) {
	registry, err := descriptor.Analytics(cfg.Connect.IndexPrefix)
	if err != nil {
		return nil, fmt.Errorf("build descriptors: %w", err)
	}

	client, err := connect.New(ctx, cfg.Connect, logger)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:      cfg,
		client:   client,
		registry: registry,
		metadata: schema.NewMetadataStore(client, registry.Metadata().QualifiedName()),
		history:  telemetry.NewHistory(0),
	}
	env.manager = env.newManager(cfg, logger, opts...)
	return env, nil
}

// newManager builds a manager over the same store and history, e.g. after
// the configuration was reloaded.
func (e *environment) newManager(cfg *config.Config, logger *slog.Logger, opts ...schema.ManagerOption) *schema.Manager {
	all := append([]schema.ManagerOption{
		schema.WithLogger(logger),
		schema.WithHistory(e.history),
	}, opts...)
	return schema.NewManager(e.client, e.registry.Indices, e.registry.Templates, cfg, all...)
}

func (e *environment) Close() error {
	return e.client.Close()
}
