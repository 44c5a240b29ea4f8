// Package preflight checks that searchschema can run against the configured
// store before anything is changed.
//
// Local checks cover the embedded data directory:
//   - Disk space (minimum 100MB)
//   - Write permissions
//   - File descriptor limits (minimum 1024)
//
// Store checks cover opening the store, its health and schema readiness.
// A schema that is not yet migrated is a warning, not a failure.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunLocal(cfg)
//	results = append(results, checker.CheckStoreHealth(ctx, client))
//	checker.PrintResults(results)
package preflight
