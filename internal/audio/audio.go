// Package audio reads and writes PCM WAV files through beep streamers.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Info describes a decoded WAV file.
type Info struct {
	Format   beep.Format
	Samples  int
	Duration time.Duration
}

// Seconds returns the duration as floating point seconds.
func (i Info) Seconds() float64 {
	return i.Duration.Seconds()
}

// Clip is an open WAV stream. Close releases the underlying file.
type Clip struct {
	beep.StreamSeekCloser
	Format beep.Format
}

// Open decodes the WAV header at path and returns a seekable stream.
func Open(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("decode wav %s: %w", filepath.Base(path), err)
	}
	return &Clip{StreamSeekCloser: stream, Format: format}, nil
}

// Probe reads only enough of path to report its format and length.
func Probe(path string) (Info, error) {
	clip, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer clip.Close()
	n := clip.Len()
	return Info{Format: clip.Format, Samples: n, Duration: clip.Format.SampleRate.D(n)}, nil
}

// Samples converts seconds to a sample count at rate, rounding down.
func Samples(rate beep.SampleRate, seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return rate.N(time.Duration(seconds * float64(time.Second)))
}

// WriteWAV encodes stream into path atomically.
func WriteWAV(path string, stream beep.Streamer, format beep.Format) error {
	if stream == nil {
		return errors.New("write wav: nil stream")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if err := wav.Encode(tmp, stream, format); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp wav: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp wav: %w", err)
	}
	return nil
}

// Constant returns a finite stereo stream of n samples at level.
func Constant(n int, level float64) beep.Streamer {
	remaining := n
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if remaining <= 0 {
			return 0, false
		}
		count := min(len(samples), remaining)
		for i := range count {
			samples[i][0] = level
			samples[i][1] = level
		}
		remaining -= count
		return count, true
	})
}
