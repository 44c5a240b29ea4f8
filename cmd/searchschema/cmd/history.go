package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchschema/internal/telemetry"
	"github.com/Aman-CERP/searchschema/internal/ui"
)

func newHistoryCmd(o *rootOptions) *cobra.Command {
	var (
		url        string
		jsonOutput bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent startup passes of a running serve",
		Long: `Fetch the initialization passes recorded by a running
'searchschema serve' from its admin API and render them with a duration
sparkline. Useful when startup keeps retrying.`,
		Example: `  searchschema history
  searchschema history --url http://schema-manager:9600 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			passes, err := fetchHistory(ctx, url)
			if err != nil {
				return err
			}
			renderer := ui.NewHistoryRenderer(cmd.OutOrStdout(), ui.NoColorFor(cmd.OutOrStdout(), o.noColor))
			if jsonOutput {
				return renderer.RenderJSON(passes)
			}
			return renderer.Render(passes)
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:9600", "Base URL of the serve admin API")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")

	return cmd
}

func fetchHistory(ctx context.Context, baseURL string) ([]telemetry.Pass, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/admin/history"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s (is 'searchschema serve' running?): %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", endpoint, resp.Status)
	}
	var passes []telemetry.Pass
	if err := json.NewDecoder(resp.Body).Decode(&passes); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return passes, nil
}
