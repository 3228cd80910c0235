package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gopxl/beep"

	"subflow/internal/audio"
)

// WAVRate is the sample rate of fixtures written by WriteWAV.
const WAVRate = 8000

// WAVFormat is the mono 16-bit format of fixtures written by WriteWAV.
var WAVFormat = beep.Format{SampleRate: WAVRate, NumChannels: 1, Precision: 2}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteWAV writes seconds of a constant level to path as a WAV file.
func WriteWAV(t testing.TB, path string, seconds, level float64) {
	t.Helper()
	if err := WriteWAVFile(path, seconds, level); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
}

// WriteWAVFile is WriteWAV for callers without a testing.TB, such as fake
// engines running on the pipeline goroutine.
func WriteWAVFile(path string, seconds, level float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return audio.WriteWAV(path, audio.Constant(audio.Samples(WAVRate, seconds), level), WAVFormat)
}
