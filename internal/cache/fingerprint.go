package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"subflow/internal/fileutil"
)

// Fingerprint strategies.
const (
	StrategyWeak    = "weak"
	StrategyContent = "content"
)

// Fingerprinter computes media identities for cache keys.
type Fingerprinter struct {
	strategy string

	mu   sync.Mutex
	memo map[string]string
}

// NewFingerprinter returns a fingerprinter for the named strategy. Unknown or
// empty strategies fall back to weak.
func NewFingerprinter(strategy string) *Fingerprinter {
	strategy = strings.ToLower(strings.TrimSpace(strategy))
	if strategy != StrategyContent {
		strategy = StrategyWeak
	}
	return &Fingerprinter{strategy: strategy, memo: make(map[string]string)}
}

// Strategy reports the active strategy.
func (f *Fingerprinter) Strategy() string {
	return f.strategy
}

// Fingerprint returns the identity of the file at path. Weak identities change
// when the absolute path, size or modification time change. Content identities
// depend only on the bytes and are memoised per weak identity, so unchanged
// files are hashed once per process.
func (f *Fingerprinter) Fingerprint(path string) (string, error) {
	weak, err := WeakFingerprint(path)
	if err != nil {
		return "", err
	}
	if f == nil || f.strategy != StrategyContent {
		return weak, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if sum, ok := f.memo[weak]; ok {
		return sum, nil
	}
	digest, err := fileutil.HashFile(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	sum := "sha256:" + digest
	f.memo[weak] = sum
	return sum, nil
}

// WeakFingerprint derives an identity from (absolute path, size, mtime). Edits
// that preserve both size and timestamp are not detected.
func WeakFingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("fingerprint %s: is a directory", abs)
	}
	return fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano()), nil
}
