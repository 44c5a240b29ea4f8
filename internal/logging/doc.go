// Package logging sets up structured JSON logging for searchschema.
//
// Logs go to stderr and, when a file path is configured, to a size-rotated
// file under ~/.searchschema/logs/. The viewer reads those files back for
// `searchschema logs`.
package logging
