package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchschema/configs"
	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/output"
)

const redacted = "********"

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the searchschema configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/searchschema/config.yaml)
  3. Project config (.searchschema.yaml)
  4. Environment variables (SEARCHSCHEMA_*)

--config replaces layers 2 and 3 with a single file.`,
		Example: `  # Create .searchschema.yaml in the current directory
  searchschema config init

  # Show effective configuration
  searchschema config show`,
	}

	cmd.AddCommand(newConfigInitCmd(o))
	cmd.AddCommand(newConfigShowCmd(o))
	cmd.AddCommand(newConfigPathCmd(o))

	return cmd
}

func newConfigInitCmd(o *rootOptions) *cobra.Command {
	var (
		user      bool
		force     bool
		effective bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := filepath.Join(o.dir, config.ProjectConfigFile)
			if user {
				path = config.GetUserConfigPath()
			}
			out := output.New(cmd.OutOrStdout())
			if !effective {
				return writeConfigTemplate(out, path, force)
			}
			if fileExists(path) && !force {
				out.Warning("Configuration already exists")
				out.Statusf("📁", "Location: %s", path)
				return nil
			}
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			out.Success("Wrote effective configuration")
			out.Statusf("📁", "Location: %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Create the user configuration instead of .searchschema.yaml")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&effective, "effective", false, "Write the merged configuration (defaults, files, env) instead of the template")

	return cmd
}

func writeConfigTemplate(out *output.Writer, path string, force bool) error {
	if fileExists(path) && !force {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Status("💡", "Run 'searchschema config show' to verify")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newConfigShowCmd(o *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Connect.Password != "" {
				cfg.Connect.Password = redacted
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if o.configFile != "" {
				_, err := fmt.Fprintf(w, "config:  %s\n", o.configFile)
				return err
			}
			if _, err := fmt.Fprintf(w, "user:    %s\n", config.GetUserConfigPath()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(w, "project: %s\n", filepath.Join(o.dir, config.ProjectConfigFile))
			return err
		},
	}
}
