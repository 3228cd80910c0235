package testsupport

import (
	"testing"

	"subflow/internal/cache"
	"subflow/internal/config"
	"subflow/internal/history"
)

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// OpenCache opens the cache store configured in cfg.
func OpenCache(t testing.TB, cfg *config.Config) *cache.Store {
	t.Helper()
	return cache.Open(cfg.CacheIndexPath(), nil)
}
