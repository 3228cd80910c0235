//go:build unix

package dubbing_test

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"testing"

	"subflow/internal/dubbing"
)

func TestMixManyClipsUnderDescriptorLimit(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	out := filepath.Join(dir, "mixed.wav")
	const clips = 150
	const step = 0.1
	writeConstant(t, bg, clips*step, 0)

	placements := make([]dubbing.Placement, 0, clips)
	for i := range clips {
		path := filepath.Join(dir, fmt.Sprintf("%04d.wav", i))
		writeConstant(t, path, step/2, 0.3)
		placements = append(placements, dubbing.Placement{Path: path, Offset: float64(i) * step})
	}

	var saved syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &saved); err != nil {
		t.Skipf("getrlimit: %v", err)
	}
	limited := syscall.Rlimit{Cur: 64, Max: saved.Max}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limited); err != nil {
		t.Skipf("setrlimit: %v", err)
	}
	report, err := dubbing.NewMixer(nil).Mix(context.Background(), bg, placements, out,
		dubbing.Options{BackgroundVolume: 1, VoiceVolume: 1})
	if rerr := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &saved); rerr != nil {
		t.Fatalf("restore rlimit: %v", rerr)
	}
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	if report.Overlaid != clips || report.Skipped != 0 {
		t.Fatalf("report = %#v", report)
	}

	samples := readSamples(t, out)
	for _, i := range []int{0, 75, clips - 1} {
		at := float64(i)*step + step/4
		if got := samples[int(at*rate)]; !near(got, 0.3) {
			t.Errorf("clip %d sample = %.4f, want 0.3", i, got)
		}
		gap := float64(i)*step + step*0.75
		if got := samples[int(gap*rate)]; !near(got, 0) {
			t.Errorf("gap after clip %d = %.4f, want 0", i, got)
		}
	}
}
