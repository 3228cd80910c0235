package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"subflow/internal/fileutil"
	"subflow/internal/logging"
	"subflow/internal/services"
)

// Entry associates a cache key with a produced artifact.
type Entry struct {
	Key          string            `json:"key"`
	MediaPath    string            `json:"media_path"`
	ArtifactPath string            `json:"artifact_path"`
	Operation    Operation         `json:"operation"`
	Params       map[string]string `json:"params"`
	CachedAt     time.Time         `json:"cached_at"`
}

// Store provides thread-safe access to the artifact index.
type Store struct {
	path    string
	lock    *flock.Flock
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the index at path. An unreadable or corrupt index is logged and
// treated as empty. An empty path yields a store where every operation is a
// no-op miss.
func Open(path string, logger *slog.Logger) *Store {
	logger = logging.NewComponentLogger(logger, "cache")

	s := &Store{
		path:    strings.TrimSpace(path),
		logger:  logger,
		entries: make(map[string]Entry),
	}
	if s.path == "" {
		return s
	}
	s.lock = flock.New(s.path + ".lock")

	entries, err := s.readIndex()
	if err != nil {
		logging.WarnWithContext(logger, "failed to load cache index", "cache_load_failed",
			logging.Error(err),
			logging.String("path", s.path),
			logging.String(logging.FieldErrorHint, "delete the index or run `subflow cache clear`"),
			logging.String(logging.FieldImpact, "previously cached artifacts will be recomputed"))
		return s
	}
	s.entries = entries
	logger.Debug("loaded cache index",
		logging.Int("entry_count", len(entries)),
		logging.String("path", s.path))
	return s
}

// Path returns the index location.
func (s *Store) Path() string {
	return s.path
}

// ArtifactDir is where Save keeps the store's own artifact copies, next to
// the index.
func (s *Store) ArtifactDir() string {
	if s.path == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(s.path), "artifacts")
}

// owns reports whether path is a copy written by Save.
func (s *Store) owns(path string) bool {
	dir := s.ArtifactDir()
	if dir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// Save copies src into ArtifactDir under the entry key and records entry
// pointing at the copy. Later writes to src never change what the key serves.
func (s *Store) Save(entry Entry, src string) (Entry, error) {
	if strings.TrimSpace(entry.Key) == "" {
		return entry, errors.New("cache key cannot be empty")
	}
	if s.path == "" {
		return entry, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return entry, services.Wrap(services.ErrCacheIO, "cache", "save", "read artifact", err)
	}
	dst := filepath.Join(s.ArtifactDir(), entry.Key+filepath.Ext(src))
	if err := fileutil.WriteFileAtomic(dst, data, 0o644); err != nil {
		return entry, services.Wrap(services.ErrCacheIO, "cache", "save", "copy artifact", err)
	}
	entry.ArtifactPath = dst
	if err := s.Put(entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Get returns the artifact path for key when the artifact still exists.
func (s *Store) Get(key string) (string, bool) {
	entry, ok := s.Lookup(key)
	if !ok {
		return "", false
	}
	return entry.ArtifactPath, true
}

// Lookup returns the entry for key when its artifact still exists. Entries
// whose artifact vanished are reported as misses and left in place.
func (s *Store) Lookup(key string) (Entry, bool) {
	if s.path == "" || key == "" {
		return Entry{}, false
	}

	s.mu.Lock()
	entry, found := s.entries[key]
	s.mu.Unlock()
	if !found {
		return Entry{}, false
	}
	if _, err := os.Stat(entry.ArtifactPath); err != nil {
		s.logger.Debug("cached artifact missing",
			logging.String(logging.FieldEventType, "cache_stale"),
			logging.String("key", key),
			logging.String("artifact", entry.ArtifactPath))
		return Entry{}, false
	}
	return entry, true
}

// Put upserts entry and persists the index before returning.
func (s *Store) Put(entry Entry) error {
	if strings.TrimSpace(entry.Key) == "" {
		return errors.New("cache key cannot be empty")
	}
	if s.path == "" {
		return nil
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	if entry.Params == nil {
		entry.Params = map[string]string{}
	}

	err := s.update(func(entries map[string]Entry) {
		entries[entry.Key] = entry
	})
	if err != nil {
		return err
	}
	s.logger.Debug("cached artifact",
		logging.String("key", entry.Key),
		logging.String("operation", string(entry.Operation)),
		logging.String("artifact", entry.ArtifactPath))
	return nil
}

// Remove deletes the entry for key, and its artifact when the store owns the
// copy. Artifacts recorded with Put are left in place.
func (s *Store) Remove(key string) error {
	if s.path == "" {
		return nil
	}
	var removed Entry
	var found bool
	err := s.update(func(entries map[string]Entry) {
		removed, found = entries[key]
		delete(entries, key)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("cache key %q not found", key)
	}
	if s.owns(removed.ArtifactPath) {
		if err := os.Remove(removed.ArtifactPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("cached artifact not removed",
				logging.String("artifact", removed.ArtifactPath),
				logging.Error(err))
		}
	}
	return nil
}

// List returns all entries, newest first.
func (s *Store) List() []Entry {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedEntries(s.entries)
}

// Size sums the sizes of distinct artifacts that still exist.
func (s *Store) Size() int64 {
	var total int64
	seen := map[string]struct{}{}
	for _, entry := range s.List() {
		if _, ok := seen[entry.ArtifactPath]; ok {
			continue
		}
		seen[entry.ArtifactPath] = struct{}{}
		if info, err := os.Stat(entry.ArtifactPath); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total
}

// Clear deletes every referenced artifact, then empties the index. Failures
// deleting individual artifacts are logged and skipped. It returns the number
// of artifacts removed.
func (s *Store) Clear() (int, error) {
	if s.path == "" {
		return 0, nil
	}
	removed := 0
	err := s.update(func(entries map[string]Entry) {
		for key, entry := range entries {
			if err := os.Remove(entry.ArtifactPath); err == nil {
				removed++
			} else if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("cached artifact not removed",
					logging.String("artifact", entry.ArtifactPath),
					logging.Error(err))
			}
			delete(entries, key)
		}
	})
	if err != nil {
		return removed, err
	}
	s.logger.Info("cleared cache", logging.Int("artifacts_removed", removed))
	return removed, nil
}

// update applies fn to the on-disk index under the file lock and saves the
// result, keeping the in-memory view in sync.
func (s *Store) update(fn func(map[string]Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return services.Wrap(services.ErrCacheIO, "cache", "lock", "create cache dir", err)
	}
	if err := s.lock.Lock(); err != nil {
		return services.Wrap(services.ErrCacheIO, "cache", "lock", "acquire index lock", err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	current, err := s.readIndex()
	if err != nil {
		// A corrupt index is replaced rather than blocking writes forever.
		current = s.entries
	}
	fn(current)
	if err := s.writeIndex(current); err != nil {
		return services.Wrap(services.ErrCacheIO, "cache", "save", "persist cache index", err)
	}
	s.entries = current
	return nil
}

func (s *Store) readIndex() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Entry), nil
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	entries := make(map[string]Entry)
	if len(data) == 0 {
		return entries, nil
	}

	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse cache index: %w", err)
	}
	for _, entry := range list {
		if strings.TrimSpace(entry.Key) != "" {
			entries[entry.Key] = entry
		}
	}
	return entries, nil
}

func (s *Store) writeIndex(entries map[string]Entry) error {
	data, err := json.MarshalIndent(sortedEntries(entries), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	return fileutil.WriteFileAtomic(s.path, data, 0o644)
}

func sortedEntries(entries map[string]Entry) []Entry {
	list := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CachedAt.Equal(list[j].CachedAt) {
			return list[i].CachedAt.After(list[j].CachedAt)
		}
		return list[i].Key < list[j].Key
	})
	return list
}
