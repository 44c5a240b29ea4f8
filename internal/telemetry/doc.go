// Package telemetry records schema manager activity: Prometheus metrics for
// scraping and a bounded in-memory history of startup passes for operators.
package telemetry
