// Package cmd provides the CLI commands for searchschema.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/config"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
	"github.com/Aman-CERP/searchschema/internal/logging"
	"github.com/Aman-CERP/searchschema/pkg/version"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	dir        string
	logLevel   string
	noColor    bool

	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for searchschema CLI.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "searchschema",
		Short: "Create and migrate search-engine index schemas",
		Long: `searchschema keeps the indices and index templates of an analytics
application in step with their declared mappings.

On every start it reads the live mappings, adds new fields, creates what is
missing and refuses to touch schemas that changed incompatibly.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("searchschema version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&o.configFile, "config", "c", "", "Configuration file (default: user config, then .searchschema.yaml)")
	cmd.PersistentFlags().StringVar(&o.dir, "dir", ".", "Directory holding .searchschema.yaml")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "Log level for one-shot commands (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&o.noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		// serve configures its own file logging.
		if c.Name() == "serve" {
			return nil
		}
		logger, cleanup, err := logging.Setup(logging.StderrConfig(o.logLevel))
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		o.setLogger(logger, cleanup)
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		o.closeLogging()
		return nil
	}

	cmd.AddCommand(newMigrateCmd(o))
	cmd.AddCommand(newStatusCmd(o))
	cmd.AddCommand(newTruncateCmd(o))
	cmd.AddCommand(newDeleteArchivedCmd(o))
	cmd.AddCommand(newDoctorCmd(o))
	cmd.AddCommand(newServeCmd(o))
	cmd.AddCommand(newHistoryCmd(o))
	cmd.AddCommand(newLogsCmd(o))
	cmd.AddCommand(newConfigCmd(o))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (o *rootOptions) setLogger(logger *slog.Logger, cleanup func()) {
	o.closeLogging()
	o.logger = logger
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
}

func (o *rootOptions) closeLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

func (o *rootOptions) log() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

// loadConfig loads --config when given, else the layered configuration
// for --dir.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		if _, err := os.Stat(o.configFile); err != nil {
			return nil, schemaerrors.New(schemaerrors.ErrCodeConfigNotFound, "configuration file not found", err).
				WithDetail("path", o.configFile).
				WithSuggestion("Run 'searchschema config init' to create one")
		}
		cfg, err := config.LoadFile(o.configFile)
		if err != nil {
			return nil, schemaerrors.ConfigError("failed to load configuration", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(o.dir)
	if err != nil {
		return nil, schemaerrors.ConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}
