package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/searchschema/internal/config"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Pinger reports whether the document store answers.
type Pinger interface {
	IsHealthy(ctx context.Context) bool
}

// SchemaProbe reports whether the managed schema is usable.
type SchemaProbe interface {
	IsSchemaReadyForUse(ctx context.Context) bool
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunLocal runs the checks that need no store connection. Disk checks only
// apply to an embedded store with a data directory.
func (c *Checker) RunLocal(cfg *config.Config) []CheckResult {
	results := []CheckResult{{
		Name:     "configuration",
		Status:   StatusPass,
		Message:  fmt.Sprintf("%s store, index prefix %q", cfg.Connect.Type, cfg.Connect.IndexPrefix),
		Required: true,
	}}

	if strings.EqualFold(cfg.Connect.Type, config.ConnectEmbedded) && cfg.Connect.DataDir != "" {
		dir := nearestExisting(cfg.Connect.DataDir)
		results = append(results,
			c.CheckDiskSpace(dir),
			c.CheckWritePermissions(dir),
		)
	}
	return append(results, c.CheckFileDescriptors())
}

// nearestExisting walks up from path to a directory that exists, since the
// data directory is only created on first open.
func nearestExisting(path string) string {
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
		if parent := filepath.Dir(p); parent == p {
			return p
		}
	}
}

// CheckWritePermissions checks if we can write to dir.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	testFile := filepath.Join(dir, ".searchschema-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckStoreOpen reports the outcome of opening the store.
func (c *Checker) CheckStoreOpen(err error) CheckResult {
	result := CheckResult{Name: "store_open", Required: true}
	if err == nil {
		result.Status = StatusPass
		result.Message = "OK"
		return result
	}

	result.Status = StatusFail
	result.Message = err.Error()
	if se, ok := schemaerrors.As(err); ok && se.Suggestion != "" {
		result.Details = se.Suggestion
	}
	return result
}

// CheckStoreHealth checks that the store answers.
func (c *Checker) CheckStoreHealth(ctx context.Context, p Pinger) CheckResult {
	result := CheckResult{Name: "store_health", Required: true}
	if p.IsHealthy(ctx) {
		result.Status = StatusPass
		result.Message = "OK"
		return result
	}
	result.Status = StatusFail
	result.Message = "store is not answering"
	result.Details = "Check connect.url and that the cluster is running"
	return result
}

// CheckSchema reports schema readiness as a warning only, since migrate
// fixes a missing schema.
func (c *Checker) CheckSchema(ctx context.Context, probe SchemaProbe) CheckResult {
	result := CheckResult{Name: "schema"}
	if probe.IsSchemaReadyForUse(ctx) {
		result.Status = StatusPass
		result.Message = "ready"
		return result
	}
	result.Status = StatusWarn
	result.Message = "not ready"
	result.Details = "Run 'searchschema status' for details and 'searchschema migrate' to converge"
	return result
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "searchschema doctor")
	_, _ = fmt.Fprintln(c.output, "===================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}
