package pipeline

import (
	"context"
	"sync"
	"time"

	"subflow/internal/dubbing"
	"subflow/internal/services"
	"subflow/internal/subtitles"
)

// Request describes one pipeline invocation.
type Request struct {
	MediaPath string `json:"mediaPath"`
	// Translate enables per-segment translation into TargetLanguage.
	Translate bool `json:"translate"`
	// Synthesize renders a voice clip per segment.
	Synthesize bool `json:"synthesize"`
	// Mix writes a dubbed audio track; it implies Synthesize.
	Mix            bool   `json:"mix"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	// OutputDir receives subtitle and mix files; empty means next to the media.
	OutputDir string `json:"outputDir,omitempty"`
	NoCache   bool   `json:"noCache,omitempty"`
}

// Result summarises a finished run.
type Result struct {
	RunID                string              `json:"runId"`
	MediaPath            string              `json:"mediaPath"`
	State                Stage               `json:"state"`
	Segments             []subtitles.Segment `json:"segments"`
	SubtitlePath         string              `json:"subtitlePath,omitempty"`
	TranslationPath      string              `json:"translationPath,omitempty"`
	MixedAudioPath       string              `json:"mixedAudioPath,omitempty"`
	SourceLanguage       string              `json:"sourceLanguage,omitempty"`
	TargetLanguage       string              `json:"targetLanguage,omitempty"`
	FromCache            bool                `json:"fromCache"`
	TranslationFromCache bool                `json:"translationFromCache"`
	// Degraded is set when an optional capability failed for at least one
	// segment or for the whole run.
	Degraded  bool            `json:"degraded"`
	Mix       *dubbing.Report `json:"mix,omitempty"`
	Started   time.Time       `json:"started"`
	Finished  time.Time       `json:"finished"`
	ErrorKind services.Kind   `json:"errorKind,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Run is a handle on an executing pipeline.
type Run struct {
	ID        string
	MediaPath string
	Request   Request
	Started   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	sink   Sink

	// written only by the run goroutine
	seq      int64
	progress progress

	mu       sync.RWMutex
	stage    Stage
	percent  float64
	segments []subtitles.Segment
	result   Result
	err      error
}

func newRun(parent context.Context, id, identity string, req Request, sink Sink) *Run {
	if sink == nil {
		sink = Discard
	}
	ctx, cancel := context.WithCancel(parent)
	return &Run{
		ID:        id,
		MediaPath: identity,
		Request:   req,
		Started:   time.Now().UTC(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		sink:      sink,
		stage:     StageIdle,
	}
}

// Cancel requests cooperative cancellation. The run stops at the next
// segment boundary.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed once the run has emitted its terminal event.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its result. The error is
// non-nil for failed and cancelled runs.
func (r *Run) Wait() (Result, error) {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.err
}

// State returns the current stage and progress percentage.
func (r *Run) State() (Stage, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stage, r.percent
}

// Segments returns a copy of the segments emitted so far.
func (r *Run) Segments() []subtitles.Segment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]subtitles.Segment(nil), r.segments...)
}

func (r *Run) cancelled() bool {
	return r.ctx.Err() != nil
}

func (r *Run) emit(e Event) {
	r.seq++
	e.Seq = r.seq
	e.RunID = r.ID
	e.Timestamp = time.Now().UTC()
	r.sink.Emit(e)
}

// report moves the run to stage and emits a progress event.
func (r *Run) report(stage Stage, percent float64, message string) {
	percent = r.progress.advance(percent)
	r.mu.Lock()
	r.stage = stage
	r.percent = percent
	r.mu.Unlock()
	r.emit(Event{Type: EventProgress, Stage: stage, Percent: percent, Message: message})
}

func (r *Run) addSegment(seg subtitles.Segment) {
	r.mu.Lock()
	r.segments = append(r.segments, seg)
	stage := r.stage
	r.mu.Unlock()
	r.emit(Event{Type: EventSegment, Stage: stage, Percent: r.progress.current(), Segment: &seg})
}

// clearAudio drops clip paths from the collected segments once the clips are
// deleted.
func (r *Run) clearAudio() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.segments {
		r.segments[i].AudioFile = ""
	}
}

func (r *Run) finish(result Result, err error) {
	r.mu.Lock()
	r.stage = result.State
	r.percent = r.progress.current()
	r.result = result
	r.err = err
	r.mu.Unlock()
}
