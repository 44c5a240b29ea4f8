package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/ui"
)

var errNotReady = errors.New("schema is not ready for use")

func newStatusCmd(o *rootOptions) *cobra.Command {
	var (
		jsonOutput bool
		check      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema readiness without changing anything",
		Long: `Compare the live schema with the built-in descriptors and report:
  - missing indices and templates
  - fields that migrate would add
  - incompatible or ambiguous mapping drift
  - the schema version recorded by the last migrate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			env, err := openEnvironment(cmd.Context(), cfg, o.log())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			st, err := env.manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			schemaVersion, _, err := env.metadata.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				IndexPrefix:   cfg.Connect.IndexPrefix,
				Engine:        cfg.Connect.Type,
				SchemaVersion: schemaVersion,
				Resources:     env.registry.QualifiedNames(),
				Status:        st,
			}
			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.NoColorFor(cmd.OutOrStdout(), o.noColor))
			if jsonOutput {
				err = renderer.RenderJSON(info)
			} else {
				err = renderer.Render(info)
			}
			if err != nil {
				return err
			}

			if check && !st.Ready {
				return errNotReady
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&check, "check", false, "Exit non-zero when the schema is not ready")

	return cmd
}
