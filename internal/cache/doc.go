// Package cache maps (media fingerprint, operation, parameters) to previously
// produced artifacts so the pipeline can skip expensive stages on re-runs.
//
// # Storage
//
// Entries live in a JSON index (default: ~/.cache/subflow/metadata.json). Every
// write takes an advisory file lock, merges with the index on disk and
// replaces the file atomically, so readers never see a partial index and a
// CLI invocation running beside `subflow serve` does not lose entries.
//
// # Invalidation
//
// Lookups verify the artifact still exists; a missing artifact is a miss but
// the entry stays until it is overwritten, removed, or the cache is cleared.
// Fingerprints default to the weak (path, size, mtime) identity; the content
// strategy hashes file bytes instead.
//
// CLI commands for inspection and management:
//
//	subflow cache list     # List cached artifacts
//	subflow cache size     # Total bytes held by cached artifacts
//	subflow cache clear    # Delete artifacts and empty the index
package cache
