// Package connect builds the engine.Client selected by configuration.
package connect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/engine"
	"github.com/Aman-CERP/searchschema/internal/engine/elasticsearch"
	"github.com/Aman-CERP/searchschema/internal/engine/embedded"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

// New opens the document store named by cfg.Type. For a remote store the
// cluster is probed once so a wrong URL is reported early; an unreachable
// cluster is not an error here since startup retries until it appears.
func New(ctx context.Context, cfg config.ConnectConfig, logger *slog.Logger) (engine.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(cfg.Type) {
	case "", config.ConnectEmbedded:
		c, err := embedded.Open(cfg.DataDir, embedded.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Info("engine_opened",
			slog.String("type", config.ConnectEmbedded),
			slog.String("data_dir", cfg.DataDir))
		return c, nil

	case config.ConnectElasticsearch:
		c, err := elasticsearch.New(elasticsearch.Config{
			Addresses:      strings.Split(cfg.URL, ","),
			Username:       cfg.Username,
			Password:       cfg.Password,
			RequestTimeout: cfg.RequestTimeoutDuration(),
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		healthy := c.IsHealthy(ctx)
		logger.Info("engine_opened",
			slog.String("type", config.ConnectElasticsearch),
			slog.String("url", cfg.URL),
			slog.Bool("healthy", healthy))
		return c, nil

	default:
		return nil, schemaerrors.ConfigError("unknown connect type: "+cfg.Type, nil).
			WithSuggestion("use 'embedded' or 'elasticsearch'")
	}
}
