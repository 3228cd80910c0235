// Package ffmpeg extracts audio tracks from media files with the ffmpeg CLI.
//
// Output is 16-bit PCM WAV at 48 kHz stereo so the same file can feed both
// speech recognition and the voice-over mixer.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"subflow/internal/services"
)

// Defaults for extracted audio.
const (
	DefaultBinary     = "ffmpeg"
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// Extractor implements engines.Extractor.
type Extractor struct {
	binary        string
	sampleRate    int
	channels      int
	commandRunner services.CommandRunner
}

// New returns an extractor using binary, or ffmpeg from PATH when empty.
func New(binary string) *Extractor {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	return &Extractor{binary: binary, sampleRate: DefaultSampleRate, channels: DefaultChannels}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Extractor) WithCommandRunner(runner services.CommandRunner) *Extractor {
	e.commandRunner = runner
	return e
}

// Binary returns the ffmpeg executable in use.
func (e *Extractor) Binary() string {
	return e.binary
}

// Extract writes <workDir>/<stem>.wav from mediaPath and returns its path.
func (e *Extractor) Extract(ctx context.Context, mediaPath, workDir string) (string, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrInputNotFound, "extracting", "stat media", mediaPath, err)
		}
		return "", services.Wrap(services.ErrExtractionFailed, "extracting", "stat media", mediaPath, err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrExtractionFailed, "extracting", "stat media", mediaPath+" is a directory", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrExtractionFailed, "extracting", "ensure work dir", workDir, err)
	}

	base := filepath.Base(mediaPath)
	dest := filepath.Join(workDir, strings.TrimSuffix(base, filepath.Ext(base))+".wav")
	runner := e.commandRunner
	if runner == nil {
		if _, err := exec.LookPath(e.binary); err != nil {
			return "", services.Wrap(services.ErrExtractionFailed, "extracting", "locate ffmpeg", e.binary, err)
		}
		runner = services.RunCommand
	}
	if _, err := runner(ctx, nil, e.binary, e.buildArgs(mediaPath, dest)...); err != nil {
		return "", services.Wrap(services.ErrExtractionFailed, "extracting", "ffmpeg", filepath.Base(mediaPath), err)
	}
	if st, err := os.Stat(dest); err != nil || st.Size() == 0 {
		return "", services.Wrap(services.ErrExtractionFailed, "extracting", "verify output", fmt.Sprintf("%s has no audio", dest), err)
	}
	return dest, nil
}

func (e *Extractor) buildArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(e.channels),
		"-ar", strconv.Itoa(e.sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}
