package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/preflight"
)

var errDoctorFailed = errors.New("system check failed")

// doctorReport is the JSON form of a doctor run.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(o *rootOptions) *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and store before migrating",
		Long: `Run diagnostics to ensure searchschema can operate correctly.

Checks:
  - Configuration loads and validates
  - Embedded data directory: disk space (100MB minimum) and write permissions
  - File descriptor limits (1024 minimum)
  - The store opens and answers
  - The schema is ready for use (warning only)`,
		Example: `  searchschema doctor
  searchschema doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)

			var results []preflight.CheckResult
			cfg, err := o.loadConfig()
			if err != nil {
				results = append(results, preflight.CheckResult{
					Name:     "configuration",
					Status:   preflight.StatusFail,
					Message:  err.Error(),
					Required: true,
				})
			} else {
				results = append(results, checker.RunLocal(cfg)...)

				env, openErr := openEnvironment(cmd.Context(), cfg, o.log())
				results = append(results, checker.CheckStoreOpen(openErr))
				if openErr == nil {
					results = append(results,
						checker.CheckStoreHealth(cmd.Context(), env.client),
						checker.CheckSchema(cmd.Context(), env.manager))
					_ = env.Close()
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errDoctorFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks too")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
