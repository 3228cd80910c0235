package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is the persisted summary of one run.
type Entry struct {
	ID              string     `json:"id" yaml:"id"`
	MediaPath       string     `json:"mediaPath" yaml:"media_path"`
	State           string     `json:"state" yaml:"state"`
	Segments        int        `json:"segments" yaml:"segments"`
	SourceLanguage  string     `json:"sourceLanguage,omitempty" yaml:"source_language,omitempty"`
	TargetLanguage  string     `json:"targetLanguage,omitempty" yaml:"target_language,omitempty"`
	ErrorKind       string     `json:"errorKind,omitempty" yaml:"error_kind,omitempty"`
	Error           string     `json:"error,omitempty" yaml:"error,omitempty"`
	SubtitlePath    string     `json:"subtitlePath,omitempty" yaml:"subtitle_path,omitempty"`
	TranslationPath string     `json:"translationPath,omitempty" yaml:"translation_path,omitempty"`
	MixedAudioPath  string     `json:"mixedAudioPath,omitempty" yaml:"mixed_audio_path,omitempty"`
	FromCache       bool       `json:"fromCache" yaml:"from_cache"`
	Degraded        bool       `json:"degraded" yaml:"degraded"`
	StartedAt       time.Time  `json:"startedAt" yaml:"started_at"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty" yaml:"finished_at,omitempty"`
}

// Duration returns the wall time of a finished run.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt == nil || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const entryColumns = "id, media_path, state, segments, source_language, target_language, error_kind, error, subtitle_path, translation_path, mixed_audio_path, from_cache, degraded, started_at, finished_at"

// Open creates or connects to the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or replaces the row for entry.ID.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("history entry id is empty")
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	err := s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO runs (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.MediaPath,
		entry.State,
		entry.Segments,
		nullableString(entry.SourceLanguage),
		nullableString(entry.TargetLanguage),
		nullableString(entry.ErrorKind),
		nullableString(entry.Error),
		nullableString(entry.SubtitlePath),
		nullableString(entry.TranslationPath),
		nullableString(entry.MixedAudioPath),
		boolToInt(entry.FromCache),
		boolToInt(entry.Degraded),
		entry.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(entry.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", entry.ID, err)
	}
	return nil
}

// Get returns the entry with id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM runs WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

// Clear removes every row and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return removed, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry           Entry
		sourceLanguage  sql.NullString
		targetLanguage  sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		subtitlePath    sql.NullString
		translationPath sql.NullString
		mixedPath       sql.NullString
		fromCache       int64
		degraded        int64
		startedRaw      string
		finishedRaw     sql.NullString
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.MediaPath,
		&entry.State,
		&entry.Segments,
		&sourceLanguage,
		&targetLanguage,
		&errorKind,
		&errorMessage,
		&subtitlePath,
		&translationPath,
		&mixedPath,
		&fromCache,
		&degraded,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	entry.SourceLanguage = sourceLanguage.String
	entry.TargetLanguage = targetLanguage.String
	entry.ErrorKind = errorKind.String
	entry.Error = errorMessage.String
	entry.SubtitlePath = subtitlePath.String
	entry.TranslationPath = translationPath.String
	entry.MixedAudioPath = mixedPath.String
	entry.FromCache = fromCache != 0
	entry.Degraded = degraded != 0
	if ts, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		entry.StartedAt = ts
	}
	if finishedRaw.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, finishedRaw.String); err == nil {
			entry.FinishedAt = &ts
		}
	}
	return &entry, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
