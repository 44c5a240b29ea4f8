package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/output"
)

func newTruncateCmd(o *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Remove every document from the managed indices",
		Long: `Remove every document from all managed indices, including the indices
created from templates. Mappings and settings are kept.`,
		Example: `  searchschema truncate --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("truncate deletes all documents; pass --yes to confirm")
			}
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			env, err := openEnvironment(cmd.Context(), cfg, o.log())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			names, err := env.manager.TruncateIndices(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Truncated %d indices", len(names))
			out.List(names, "")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deleting all documents")

	return cmd
}

func newDeleteArchivedCmd(o *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "delete-archived",
		Short: "Delete indices left behind by older template versions",
		Long: `When a template's version is bumped its existing indices keep the old
version in their name. They are no longer written to and can be deleted once
their data has been migrated.`,
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

			out := output.New(cmd.OutOrStdout())
			archived, err := env.manager.ArchivedIndices(cmd.Context())
			if err != nil {
				return err
			}
			if len(archived) == 0 {
				out.Success("No archived indices")
				return nil
			}
			if dryRun {
				out.Statusf("🗂️ ", "%d archived indices would be deleted:", len(archived))
				out.List(archived, "")
				return nil
			}

			if err := env.manager.DeleteArchivedIndices(cmd.Context()); err != nil {
				return err
			}
			out.Successf("Deleted %d archived indices", len(archived))
			out.List(archived, "")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the archived indices")

	return cmd
}
