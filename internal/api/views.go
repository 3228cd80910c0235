package api

import (
	"os"
	"sort"
	"strings"
	"time"

	"subflow/internal/cache"
	"subflow/internal/history"
)

// CacheEntryView is a display row for one cached artifact.
type CacheEntryView struct {
	Key          string `json:"key" yaml:"key"`
	ShortKey     string `json:"shortKey" yaml:"-"`
	Operation    string `json:"operation" yaml:"operation"`
	MediaPath    string `json:"mediaPath" yaml:"media_path"`
	ArtifactPath string `json:"artifactPath" yaml:"artifact_path"`
	Params       string `json:"params" yaml:"params"`
	CachedAt     string `json:"cachedAt" yaml:"cached_at"`
	Present      bool   `json:"present" yaml:"present"`
	SizeBytes    int64  `json:"sizeBytes" yaml:"size_bytes"`
}

// CacheEntries converts the store listing into views, newest first.
func CacheEntries(store *cache.Store) []CacheEntryView {
	if store == nil {
		return nil
	}
	entries := store.List()
	views := make([]CacheEntryView, 0, len(entries))
	for _, entry := range entries {
		view := CacheEntryView{
			Key:          entry.Key,
			ShortKey:     shorten(entry.Key, 12),
			Operation:    string(entry.Operation),
			MediaPath:    entry.MediaPath,
			ArtifactPath: entry.ArtifactPath,
			Params:       formatParams(entry.Params),
			CachedAt:     formatTime(entry.CachedAt),
		}
		if info, err := os.Stat(entry.ArtifactPath); err == nil {
			view.Present = true
			view.SizeBytes = info.Size()
		}
		views = append(views, view)
	}
	return views
}

// HistoryView is a display row for one recorded run.
type HistoryView struct {
	ID        string `json:"id" yaml:"id"`
	ShortID   string `json:"shortId" yaml:"-"`
	MediaPath string `json:"mediaPath" yaml:"media_path"`
	State     string `json:"state" yaml:"state"`
	Segments  int    `json:"segments" yaml:"segments"`
	Languages string `json:"languages" yaml:"languages"`
	Cached    bool   `json:"cached" yaml:"cached"`
	Degraded  bool   `json:"degraded" yaml:"degraded"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt string `json:"startedAt" yaml:"started_at"`
	Duration  string `json:"duration" yaml:"duration"`
}

// HistoryViews converts history entries into display rows.
func HistoryViews(entries []history.Entry) []HistoryView {
	views := make([]HistoryView, 0, len(entries))
	for _, entry := range entries {
		languages := entry.SourceLanguage
		if entry.TargetLanguage != "" {
			languages = strings.TrimSpace(languages + " -> " + entry.TargetLanguage)
		}
		duration := "-"
		if d := entry.Duration(); d > 0 {
			duration = d.Round(100 * time.Millisecond).String()
		}
		errText := entry.Error
		if entry.ErrorKind != "" && errText != "" {
			errText = entry.ErrorKind + ": " + errText
		}
		views = append(views, HistoryView{
			ID:        entry.ID,
			ShortID:   shorten(entry.ID, 8),
			MediaPath: entry.MediaPath,
			State:     entry.State,
			Segments:  entry.Segments,
			Languages: languages,
			Cached:    entry.FromCache,
			Degraded:  entry.Degraded,
			Error:     errText,
			StartedAt: formatTime(entry.StartedAt),
			Duration:  duration,
		})
	}
	return views
}

func shorten(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[:n]
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, " ")
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
