package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/output"
	"github.com/Aman-CERP/searchschema/internal/profiling"
	"github.com/Aman-CERP/searchschema/internal/ui"
	"github.com/Aman-CERP/searchschema/pkg/version"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	var (
		timeout    time.Duration
		maxRetries int
		profile    profiling.Options
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing indices and add new fields",
		Long: `Run schema startup once: validate the live mappings, create missing
indices and templates, add new fields, apply shard and replica settings and
install the retention policy.

Failures are retried with backoff as configured under schema_manager.retry.
On success the application version is recorded in the metadata index.`,
		Example: `  # Migrate, retrying for at most two minutes
  searchschema migrate --timeout 2m

  # Fail fast in CI
  searchschema migrate --max-retries 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.SchemaManager.Retry.MaxRetries = maxRetries
			}

			if profile.Enabled() {
				session, err := profiling.Start(profile)
				if err != nil {
					return err
				}
				defer func() {
					if err := session.Stop(); err != nil {
						o.log().Warn("profile_write_failed", "error", err.Error())
					}
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			env, err := openEnvironment(ctx, cfg, o.log())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			out := output.New(cmd.OutOrStdout())
			if !cfg.SchemaManager.CreateSchema {
				out.Warning("Schema management is disabled (schema_manager.create_schema: false)")
				return nil
			}

			startErr := env.manager.Startup(ctx)

			noColor := ui.NoColorFor(cmd.OutOrStdout(), o.noColor)
			if err := ui.NewHistoryRenderer(cmd.OutOrStdout(), noColor).Render(env.history.Passes()); err != nil {
				return err
			}
			out.Newline()
			if startErr != nil {
				out.Error("Schema migration failed")
				return startErr
			}

			if err := env.metadata.StoreSchemaVersion(ctx, version.Short()); err != nil {
				return err
			}
			out.Successf("Schema is up to date (%s, version %s)", cfg.Connect.IndexPrefix, version.Short())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits until success or Ctrl+C)")
	cmd.Flags().StringVar(&profile.CPUPath, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&profile.HeapPath, "mem-profile", "", "Write a heap profile to this file on exit")
	cmd.Flags().StringVar(&profile.TracePath, "trace", "", "Write an execution trace to this file")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "Override schema_manager.retry.max_retries (-1 retries forever)")

	return cmd
}
