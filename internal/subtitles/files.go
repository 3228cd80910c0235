package subtitles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subflow/internal/fileutil"
)

// ReadFile parses the SRT file at path. Only I/O failures and, in strict
// mode, malformed blocks are errors.
func ReadFile(path string, opts ParseOptions) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	segs, err := ParseWithOptions(string(data), opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return segs, nil
}

// WriteFile serialises segs to path atomically.
func WriteFile(path string, segs []Segment) error {
	if err := fileutil.WriteFileAtomic(path, []byte(Format(segs)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// PathForMedia returns the subtitle path for media inside dir. An empty lang
// yields "<stem>.srt"; otherwise "<stem>.<lang>.srt". An empty dir places the
// file next to the media.
func PathForMedia(mediaPath, dir, lang string) string {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(mediaPath)
	}
	base := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return filepath.Join(dir, stem+".srt")
	}
	return filepath.Join(dir, stem+"."+lang+".srt")
}
