package dubbing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"subflow/internal/audio"
	"subflow/internal/logging"
	"subflow/internal/services"
)

// SilenceFloorDB is the gain applied for a zero volume fraction.
const SilenceFloorDB = -60.0

// resampleQuality is beep's interpolation quality for clips whose sample rate
// differs from the background.
const resampleQuality = 4

// GainDB converts a linear volume fraction to decibels, 20*log10(v), with a
// -60 dB floor for v <= 0.
func GainDB(v float64) float64 {
	if v <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(v)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// amplitude converts decibels back to a linear multiplier.
func amplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

func withGain(s beep.Streamer, db float64) beep.Streamer {
	if db == 0 {
		return s
	}
	// effects.Gain scales by 1+Gain.
	return &effects.Gain{Streamer: s, Gain: amplitude(db) - 1}
}

// Options are the mixer volume fractions in [0, 1].
type Options struct {
	BackgroundVolume float64
	VoiceVolume      float64
}

// Report summarises a mix.
type Report struct {
	BackgroundDB float64
	VoiceDB      float64
	Overlaid     int
	Skipped      int
	Seconds      float64
}

// Mixer overlays voice clips on a background track.
type Mixer struct {
	logger *slog.Logger
}

// NewMixer returns a mixer logging through logger.
func NewMixer(logger *slog.Logger) *Mixer {
	return &Mixer{logger: logging.NewComponentLogger(logger, "mixer")}
}

// Mix writes outPath: the background at BackgroundVolume with every placement
// summed in at its offset and VoiceVolume. Output length equals the
// background; clips running past the end are cut. Clips that cannot be
// decoded, or that start after the end, are skipped rather than failing the
// mix. Clips are opened when the output reaches their offset and closed once
// drained, so only overlapping clips are open at the same time.
func (m *Mixer) Mix(ctx context.Context, backgroundPath string, placements []Placement, outPath string, opts Options) (Report, error) {
	report := Report{BackgroundDB: GainDB(opts.BackgroundVolume), VoiceDB: GainDB(opts.VoiceVolume)}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	bg, err := audio.Open(backgroundPath)
	if err != nil {
		return report, services.Wrap(services.ErrStageFailure, "mixing", "open background", backgroundPath, err)
	}
	defer bg.Close()
	format := bg.Format
	total := bg.Len()
	report.Seconds = format.SampleRate.D(total).Seconds()

	ov := newOverlay(ctx, m.logger, beep.Take(total, withGain(bg, report.BackgroundDB)), format, report.VoiceDB)
	for _, p := range placements {
		offset := audio.Samples(format.SampleRate, p.Offset)
		if offset >= total {
			report.Skipped++
			continue
		}
		ov.pending = append(ov.pending, queuedClip{path: p.Path, offset: offset})
	}
	sort.SliceStable(ov.pending, func(i, j int) bool { return ov.pending[i].offset < ov.pending[j].offset })

	err = audio.WriteWAV(outPath, ov, format)
	ov.close()
	report.Overlaid += ov.overlaid
	report.Skipped += ov.skipped
	if ov.err != nil {
		return report, ov.err
	}
	if err != nil {
		return report, services.Wrap(services.ErrStageFailure, "mixing", "write output", outPath, err)
	}
	m.logger.Info("mixed voice-over",
		logging.String("output", outPath),
		logging.Int("clips", report.Overlaid),
		logging.Int("skipped", report.Skipped),
		logging.String("background_gain", fmt.Sprintf("%.2f dB", report.BackgroundDB)))
	return report, nil
}

type queuedClip struct {
	path   string
	offset int
}

type activeClip struct {
	clip   *audio.Clip
	stream beep.Streamer
	offset int
}

// overlay streams the background and adds each queued clip from its offset.
type overlay struct {
	ctx      context.Context
	logger   *slog.Logger
	bg       beep.Streamer
	format   beep.Format
	voiceDB  float64
	pending  []queuedClip
	active   []*activeClip
	pos      int
	buf      [][2]float64
	overlaid int
	skipped  int
	err      error
}

func newOverlay(ctx context.Context, logger *slog.Logger, bg beep.Streamer, format beep.Format, voiceDB float64) *overlay {
	return &overlay{ctx: ctx, logger: logger, bg: bg, format: format, voiceDB: voiceDB}
}

func (o *overlay) Stream(samples [][2]float64) (int, bool) {
	if o.err != nil {
		return 0, false
	}
	n, ok := o.bg.Stream(samples)
	if n == 0 {
		return 0, ok
	}
	end := o.pos + n
	for len(o.pending) > 0 && o.pending[0].offset < end {
		if err := o.ctx.Err(); err != nil {
			o.err = err
			return 0, false
		}
		o.start(o.pending[0])
		o.pending = o.pending[1:]
	}

	kept := o.active[:0]
	for _, a := range o.active {
		from := max(0, a.offset-o.pos)
		want := n - from
		if cap(o.buf) < want {
			o.buf = make([][2]float64, want)
		}
		buf := o.buf[:want]
		got, more := a.stream.Stream(buf)
		for i := range got {
			samples[from+i][0] += buf[i][0]
			samples[from+i][1] += buf[i][1]
		}
		if !more || got < want {
			_ = a.clip.Close()
			continue
		}
		kept = append(kept, a)
	}
	clear(o.active[len(kept):])
	o.active = kept
	o.pos = end
	return n, ok
}

func (o *overlay) Err() error {
	return o.bg.Err()
}

func (o *overlay) start(q queuedClip) {
	clip, err := audio.Open(q.path)
	if err != nil {
		o.skipped++
		logging.WarnWithContext(o.logger, "voice clip skipped", "mix_clip_skipped",
			logging.String("clip", q.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "slot keeps background audio only"),
			logging.String(logging.FieldErrorHint, "check synthesizer output"))
		return
	}
	var voice beep.Streamer = clip
	if clip.Format.SampleRate != o.format.SampleRate {
		voice = beep.Resample(resampleQuality, clip.Format.SampleRate, o.format.SampleRate, clip)
	}
	o.active = append(o.active, &activeClip{clip: clip, stream: withGain(voice, o.voiceDB), offset: q.offset})
	o.overlaid++
}

// close releases clips still open when the output ended early.
func (o *overlay) close() {
	for _, a := range o.active {
		_ = a.clip.Close()
	}
	o.active = nil
}
