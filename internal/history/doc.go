// Package history persists a record of completed pipeline runs in SQLite so
// the CLI and the HTTP service can list previous results.
//
// A single table holds one row per run. Recording is best effort from the
// pipeline's point of view: callers log failures and carry on.
package history
