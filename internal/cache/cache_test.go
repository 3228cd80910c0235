package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"subflow/internal/cache"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestKeyDeterministicAndOrderIndependent(t *testing.T) {
	a := cache.Key("fp", cache.OpSubtitle, map[string]string{"model": "base", "language": "en", "device": "cpu"})
	b := cache.Key("fp", cache.OpSubtitle, map[string]string{"device": "cpu", "model": "base", "language": "en"})
	if a != b {
		t.Fatalf("keys differ for identical params: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 key, got %q", a)
	}
}

func TestKeySensitivity(t *testing.T) {
	base := map[string]string{"model": "base", "language": "en"}
	ref := cache.Key("fp", cache.OpSubtitle, base)

	tests := []struct {
		name   string
		fp     string
		op     cache.Operation
		params map[string]string
	}{
		{"model changed", "fp", cache.OpSubtitle, map[string]string{"model": "small", "language": "en"}},
		{"language changed", "fp", cache.OpSubtitle, map[string]string{"model": "base", "language": "ru"}},
		{"param added", "fp", cache.OpSubtitle, map[string]string{"model": "base", "language": "en", "device": "cpu"}},
		{"operation changed", "fp", cache.OpTranslation, base},
		{"fingerprint changed", "fp2", cache.OpSubtitle, base},
		{"value shifted between names", "fp", cache.OpSubtitle, map[string]string{"model": "base\",\"language", "language": "en"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.Key(tt.fp, tt.op, tt.params); got == ref {
				t.Fatalf("expected key to change")
			}
		})
	}
}

func TestWeakFingerprintTracksSizeAndMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movie.mkv")
	writeFile(t, path, "abc")
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	first, err := cache.WeakFingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	again, _ := cache.WeakFingerprint(path)
	if first != again {
		t.Fatal("fingerprint not stable")
	}

	if err := os.Chtimes(path, mtime, mtime.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	touched, _ := cache.WeakFingerprint(path)
	if touched == first {
		t.Fatal("mtime change should change fingerprint")
	}

	writeFile(t, path, "abcd")
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	grown, _ := cache.WeakFingerprint(path)
	if grown == first {
		t.Fatal("size change should change fingerprint")
	}

	// Same size and timestamp is indistinguishable by design of the weak identity.
	writeFile(t, path, "xyz")
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	if same, _ := cache.WeakFingerprint(path); same != first {
		t.Fatal("weak fingerprint should ignore content")
	}
}

func TestWeakFingerprintMissingFile(t *testing.T) {
	if _, err := cache.WeakFingerprint(filepath.Join(t.TempDir(), "missing")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestContentFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mkv")
	b := filepath.Join(dir, "b.mkv")
	c := filepath.Join(dir, "c.mkv")
	writeFile(t, a, "same bytes")
	writeFile(t, b, "same bytes")
	writeFile(t, c, "diff bytes")

	fp := cache.NewFingerprinter("content")
	if fp.Strategy() != cache.StrategyContent {
		t.Fatalf("strategy = %s", fp.Strategy())
	}
	fa, err := fp.Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := fp.Fingerprint(b)
	fc, _ := fp.Fingerprint(c)
	if fa != fb {
		t.Fatal("identical content should share a fingerprint")
	}
	if fa == fc {
		t.Fatal("different content with equal size should differ")
	}
	if cache.NewFingerprinter("bogus").Strategy() != cache.StrategyWeak {
		t.Fatal("unknown strategy should fall back to weak")
	}
}

func TestStorePutGetPersists(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "metadata.json")
	artifact := filepath.Join(dir, "movie.srt")
	writeFile(t, artifact, "1\n")

	store := cache.Open(index, nil)
	entry := cache.Entry{
		Key:          "k1",
		MediaPath:    "/media/movie.mkv",
		ArtifactPath: artifact,
		Operation:    cache.OpSubtitle,
		Params:       map[string]string{"model": "base"},
	}
	if err := store.Put(entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened := cache.Open(index, nil)
	got, ok := reopened.Get("k1")
	if !ok || got != artifact {
		t.Fatalf("Get after reopen = %q, %v", got, ok)
	}
	found, _ := reopened.Lookup("k1")
	if found.Params["model"] != "base" || found.Operation != cache.OpSubtitle || found.CachedAt.IsZero() {
		t.Fatalf("unexpected entry: %#v", found)
	}
}

func TestStoreMissingArtifactIsMissButKept(t *testing.T) {
	dir := t.TempDir()
	store := cache.Open(filepath.Join(dir, "metadata.json"), nil)
	if err := store.Put(cache.Entry{Key: "gone", ArtifactPath: filepath.Join(dir, "gone.srt")}); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("gone"); ok {
		t.Fatal("expected miss for missing artifact")
	}
	if n := len(store.List()); n != 1 {
		t.Fatalf("entry should stay in place, list has %d", n)
	}
}

func TestStorePutOverwrites(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.srt")
	second := filepath.Join(dir, "second.srt")
	writeFile(t, first, "a")
	writeFile(t, second, "b")

	store := cache.Open(filepath.Join(dir, "metadata.json"), nil)
	_ = store.Put(cache.Entry{Key: "k", ArtifactPath: first})
	_ = store.Put(cache.Entry{Key: "k", ArtifactPath: second})
	if got, _ := store.Get("k"); got != second {
		t.Fatalf("Get = %q, want %q", got, second)
	}
	if n := len(store.List()); n != 1 {
		t.Fatalf("expected single entry per key, got %d", n)
	}
}

func TestStoreMergesConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "metadata.json")
	a := cache.Open(index, nil)
	b := cache.Open(index, nil)

	if err := a.Put(cache.Entry{Key: "from-a", ArtifactPath: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(cache.Entry{Key: "from-b", ArtifactPath: "y"}); err != nil {
		t.Fatal(err)
	}
	if n := len(cache.Open(index, nil).List()); n != 2 {
		t.Fatalf("expected both writers' entries, got %d", n)
	}
}

func TestStoreClearDeletesArtifacts(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "metadata.json")
	kept := filepath.Join(dir, "a.srt")
	writeFile(t, kept, "abc")

	store := cache.Open(index, nil)
	_ = store.Put(cache.Entry{Key: "a", ArtifactPath: kept})
	_ = store.Put(cache.Entry{Key: "missing", ArtifactPath: filepath.Join(dir, "missing.srt")})

	if size := store.Size(); size != 3 {
		t.Fatalf("Size = %d, want 3", size)
	}

	removed, err := store.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(kept); !os.IsNotExist(err) {
		t.Fatal("artifact should be deleted")
	}
	if n := len(cache.Open(index, nil).List()); n != 0 {
		t.Fatalf("index should be empty after clear, got %d", n)
	}
}

func TestStoreRemove(t *testing.T) {
	store := cache.Open(filepath.Join(t.TempDir(), "metadata.json"), nil)
	_ = store.Put(cache.Entry{Key: "k", ArtifactPath: "x"})
	if err := store.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove("k"); err == nil {
		t.Fatal("expected error removing unknown key")
	}
}

func TestStoreCorruptIndexStartsEmpty(t *testing.T) {
	index := filepath.Join(t.TempDir(), "metadata.json")
	writeFile(t, index, "{not json")
	store := cache.Open(index, nil)
	if n := len(store.List()); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
	if err := store.Put(cache.Entry{Key: "k", ArtifactPath: "x"}); err != nil {
		t.Fatalf("Put over corrupt index: %v", err)
	}
	if n := len(cache.Open(index, nil).List()); n != 1 {
		t.Fatalf("expected repaired index, got %d", n)
	}
}

func TestStoreDisabledWithoutPath(t *testing.T) {
	store := cache.Open("", nil)
	if err := store.Put(cache.Entry{Key: "k", ArtifactPath: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("k"); ok {
		t.Fatal("disabled store should always miss")
	}
}

func TestStoreSaveKeepsOwnCopy(t *testing.T) {
	dir := t.TempDir()
	store := cache.Open(filepath.Join(dir, "cache", "metadata.json"), nil)
	output := filepath.Join(dir, "movie.srt")
	writeFile(t, output, "base model")

	saved, err := store.Save(cache.Entry{Key: "k1", Operation: cache.OpSubtitle}, output)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ArtifactPath != filepath.Join(store.ArtifactDir(), "k1.srt") {
		t.Fatalf("artifact path = %s", saved.ArtifactPath)
	}
	writeFile(t, output, "large model")

	got, ok := store.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "base model" {
		t.Fatalf("cached copy changed with the output file: %q", data)
	}

	if _, err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("output file should survive clear: %v", err)
	}
}

func TestStoreRemoveDeletesOwnedArtifact(t *testing.T) {
	dir := t.TempDir()
	store := cache.Open(filepath.Join(dir, "metadata.json"), nil)
	external := filepath.Join(dir, "external.srt")
	writeFile(t, external, "x")
	src := filepath.Join(dir, "src.srt")
	writeFile(t, src, "y")

	owned, err := store.Save(cache.Entry{Key: "owned"}, src)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Put(cache.Entry{Key: "external", ArtifactPath: external})

	for _, key := range []string{"owned", "external"} {
		if err := store.Remove(key); err != nil {
			t.Fatalf("Remove %s: %v", key, err)
		}
	}
	if _, err := os.Stat(owned.ArtifactPath); !os.IsNotExist(err) {
		t.Fatal("owned copy should be deleted")
	}
	if _, err := os.Stat(external); err != nil {
		t.Fatal("external artifact should stay")
	}
}
