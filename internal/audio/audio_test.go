package audio_test

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"

	"subflow/internal/audio"
)

var testFormat = beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}

func TestWriteAndProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := audio.WriteWAV(path, audio.Constant(12000, 0.5), testFormat); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	info, err := audio.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Samples != 12000 {
		t.Fatalf("samples = %d, want 12000", info.Samples)
	}
	if info.Duration != 1500*time.Millisecond || info.Seconds() != 1.5 {
		t.Fatalf("duration = %v", info.Duration)
	}
	if info.Format.SampleRate != 8000 {
		t.Fatalf("sample rate = %d", info.Format.SampleRate)
	}
}

func TestOpenReadsSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := audio.WriteWAV(path, audio.Constant(100, 0.25), testFormat); err != nil {
		t.Fatal(err)
	}
	clip, err := audio.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer clip.Close()

	buf := make([][2]float64, 200)
	n, _ := clip.Stream(buf)
	if n != 100 {
		t.Fatalf("read %d samples, want 100", n)
	}
	if math.Abs(buf[50][0]-0.25) > 1e-3 {
		t.Fatalf("sample = %v, want ~0.25", buf[50][0])
	}
}

func TestOpenRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := audio.WriteWAV(path, nil, testFormat); err == nil {
		t.Fatal("expected error for nil stream")
	}
	if _, err := audio.Open(path); err == nil {
		t.Fatal("expected error opening missing file")
	}
}

func TestSamples(t *testing.T) {
	if got := audio.Samples(48000, 2.5); got != 120000 {
		t.Fatalf("Samples = %d, want 120000", got)
	}
	if got := audio.Samples(48000, -1); got != 0 {
		t.Fatalf("Samples negative = %d", got)
	}
}
