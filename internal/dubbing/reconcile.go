package dubbing

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"

	"subflow/internal/audio"
)

// OverrunTolerance is the largest clip/slot ratio played without truncation.
const OverrunTolerance = 1.2

// Fit is the reconciliation decision for one clip.
type Fit struct {
	// Offset is the absolute placement in seconds (the segment start).
	Offset float64
	// Length is how many seconds of the clip to play.
	Length    float64
	Truncated bool
}

// Reconcile decides how a clip of natural length actual fits the slot
// [start, end).
func Reconcile(start, end, actual float64) Fit {
	slot := end - start
	if slot <= 0 || actual <= slot*OverrunTolerance {
		return Fit{Offset: start, Length: actual}
	}
	return Fit{Offset: start, Length: slot, Truncated: true}
}

// Placement is a clip file positioned on the output timeline.
type Placement struct {
	Path   string
	Offset float64
}

// FitClip applies Reconcile to the clip at path. Truncated clips are written
// next to the original as "<name>.fit.wav"; untouched clips are placed as-is.
func FitClip(path string, start, end, actual float64) (Placement, Fit, error) {
	fit := Reconcile(start, end, actual)
	if !fit.Truncated {
		return Placement{Path: path, Offset: fit.Offset}, fit, nil
	}
	dest := strings.TrimSuffix(path, filepath.Ext(path)) + ".fit.wav"
	if err := Truncate(path, dest, fit.Length); err != nil {
		return Placement{}, fit, err
	}
	return Placement{Path: dest, Offset: fit.Offset}, fit, nil
}

// Truncate writes the first seconds of src to dst in the source format.
func Truncate(src, dst string, seconds float64) error {
	clip, err := audio.Open(src)
	if err != nil {
		return fmt.Errorf("truncate clip: %w", err)
	}
	defer clip.Close()
	n := audio.Samples(clip.Format.SampleRate, seconds)
	if err := audio.WriteWAV(dst, beep.Take(n, clip), clip.Format); err != nil {
		return fmt.Errorf("truncate clip: %w", err)
	}
	return nil
}
