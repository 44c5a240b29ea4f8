package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/logging"
	"github.com/Aman-CERP/searchschema/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	grep    string
	event   string
	logFile string
}

func newLogsCmd(o *rootOptions) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View serve logs",
		Long: `View and tail the JSON logs written by 'searchschema serve'.

By default shows the last 50 entries of ~/.searchschema/logs/searchschema.log.`,
		Example: `  searchschema logs -f
  searchschema logs --level error
  searchschema logs --event schema_startup_attempt_failed
  searchschema logs --grep analytics-events`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts, ui.NoColorFor(cmd.OutOrStdout(), o.noColor))
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.grep, "grep", "", "Filter by pattern (regex)")
	cmd.Flags().StringVar(&opts.event, "event", "", "Show only this event, e.g. schema_startup_failed")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions, noColor bool) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.grep != "" {
		pattern, err = regexp.Compile(opts.grep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		Event:   opts.event,
		NoColor: noColor,
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Log file: %s\n", path)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}
	fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	return followLogs(cmd.Context(), viewer, path, cmd)
}

func followLogs(ctx context.Context, viewer *logging.Viewer, path string, cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(cmd.ErrOrStderr(), "Stopped.")
			return nil
		}
	}
}
