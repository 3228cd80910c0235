package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subflow/internal/cache"
	"subflow/internal/dubbing"
	"subflow/internal/engines"
	"subflow/internal/history"
	"subflow/internal/language"
	"subflow/internal/logging"
	"subflow/internal/services"
)

// HistoryRecorder persists finished runs. *history.Store satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Notifier announces finished runs to an external channel.
type Notifier interface {
	RunFinished(ctx context.Context, result Result) error
}

// CacheParams is the read-only parameter snapshot that feeds cache keys.
type CacheParams struct {
	// Transcription identifies a transcript (model, language, device, ...).
	Transcription map[string]string
	// Translation returns the option set for a translated track into target.
	// When nil the transcription params plus target_language are used.
	Translation func(target string) map[string]string
}

func (p CacheParams) transcription() map[string]string {
	out := make(map[string]string, len(p.Transcription))
	for k, v := range p.Transcription {
		out[k] = v
	}
	return out
}

func (p CacheParams) translation(target string) map[string]string {
	if p.Translation != nil {
		return p.Translation(target)
	}
	out := p.transcription()
	out["target_language"] = target
	return out
}

// Options wires an Orchestrator.
type Options struct {
	Engines       engines.Set
	Cache         *cache.Store
	Fingerprinter *cache.Fingerprinter
	History       HistoryRecorder
	Notifier      Notifier
	Mixer         *dubbing.Mixer
	// WorkDir holds extracted audio and per-segment clips.
	WorkDir         string
	Params          CacheParams
	MixOptions      dubbing.Options
	// KeepClips keeps the per-segment voice clips after a successful mix.
	// Without a mix the clips are the audio output and always stay.
	KeepClips       bool
	StrictSubtitles bool
	// RetainRuns bounds how many finished runs Get still returns; the oldest
	// are forgotten first. Zero means DefaultRetainRuns.
	RetainRuns int
	// DefaultTarget is used when a request names no target language.
	DefaultTarget string
	Logger        *slog.Logger
}

// DefaultRetainRuns is the finished-run lookup bound when Options.RetainRuns
// is zero.
const DefaultRetainRuns = 200

// Orchestrator runs pipelines. Runs for different media execute
// concurrently but take turns on the engines, which are shared and not safe
// for concurrent use.
type Orchestrator struct {
	opts       Options
	logger     *slog.Logger
	registry   *registry
	engineLock chan struct{}
	wg         sync.WaitGroup
}

// New validates opts and returns an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Engines.Extractor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "new orchestrator", "extractor is required", nil)
	}
	if opts.Engines.Transcriber == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "new orchestrator", "transcriber is required", nil)
	}
	if strings.TrimSpace(opts.WorkDir) == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "subflow")
	}
	if opts.Fingerprinter == nil {
		opts.Fingerprinter = cache.NewFingerprinter(cache.StrategyWeak)
	}
	if opts.Mixer == nil {
		opts.Mixer = dubbing.NewMixer(opts.Logger)
	}
	if opts.RetainRuns <= 0 {
		opts.RetainRuns = DefaultRetainRuns
	}
	opts.DefaultTarget = language.Normalize(opts.DefaultTarget)
	if opts.DefaultTarget == "" {
		opts.DefaultTarget = "en"
	}
	return &Orchestrator{
		opts:       opts,
		logger:     logging.NewComponentLogger(opts.Logger, "pipeline"),
		registry:   newRegistry(opts.RetainRuns),
		engineLock: make(chan struct{}, 1),
	}, nil
}

// Start validates req and launches the run on its own goroutine. A missing
// input or an active run for the same media is returned synchronously, after
// a single error event has been emitted to sink.
func (o *Orchestrator) Start(ctx context.Context, req Request, sink Sink) (*Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		sink = Discard
	}
	id := uuid.NewString()
	req = o.normalizeRequest(req)

	identity, err := MediaIdentity(req.MediaPath)
	if err != nil {
		o.reject(id, sink, err)
		return nil, err
	}
	run := newRun(ctx, id, identity, req, sink)
	if err := o.registry.acquire(identity, run); err != nil {
		run.cancel()
		o.reject(id, sink, err)
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(run)
	}()
	return run, nil
}

// Process runs req to completion.
func (o *Orchestrator) Process(ctx context.Context, req Request, sink Sink) (Result, error) {
	run, err := o.Start(ctx, req, sink)
	if err != nil {
		return Result{}, err
	}
	return run.Wait()
}

// Get returns an active or finished run by ID.
func (o *Orchestrator) Get(id string) (*Run, bool) {
	return o.registry.get(id)
}

// Active returns the runs currently executing.
func (o *Orchestrator) Active() []*Run {
	return o.registry.active()
}

// Forget drops a finished run from lookup.
func (o *Orchestrator) Forget(id string) {
	o.registry.forget(id)
}

// Close cancels every active run and waits for them to finish.
func (o *Orchestrator) Close() {
	for _, run := range o.registry.active() {
		run.Cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) normalizeRequest(req Request) Request {
	req.MediaPath = strings.TrimSpace(req.MediaPath)
	req.OutputDir = strings.TrimSpace(req.OutputDir)
	if req.Mix {
		req.Synthesize = true
	}
	target := language.Normalize(req.TargetLanguage)
	if target == "" {
		target = o.opts.DefaultTarget
	}
	req.TargetLanguage = target
	return req
}

func (o *Orchestrator) reject(id string, sink Sink, err error) {
	o.logger.Info("run rejected",
		logging.String(logging.FieldRunID, id),
		logging.String("error_kind", string(services.KindOf(err))),
		logging.Error(err))
	sink.Emit(Event{
		Seq:       1,
		RunID:     id,
		Type:      EventError,
		Stage:     StageError,
		ErrorKind: services.KindOf(err),
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (o *Orchestrator) execute(run *Run) {
	defer close(run.done)
	defer o.registry.release(run.MediaPath, run)
	defer run.cancel()

	ctx := services.WithRunID(run.ctx, run.ID)
	ctx = services.WithMediaPath(ctx, run.MediaPath)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("run started",
		logging.Bool("translate", run.Request.Translate),
		logging.Bool("synthesize", run.Request.Synthesize),
		logging.Bool("mix", run.Request.Mix),
		logging.String("target_language", run.Request.TargetLanguage))

	r := newRunner(o, run, logger)
	err := r.execute()

	result := r.result
	result.Segments = run.Segments()
	result.Finished = time.Now().UTC()
	switch {
	case err == nil:
		result.State = StageDone
		run.report(StageDone, donePercent, "complete")
		run.finish(result, nil)
		summary := result
		summary.Segments = nil
		run.emit(Event{Type: EventResult, Stage: StageDone, Percent: donePercent, Segments: result.Segments, Result: &summary})
		logger.Info("run completed",
			logging.Int("segments", len(result.Segments)),
			logging.Bool("from_cache", result.FromCache),
			logging.Bool("degraded", result.Degraded),
			logging.Duration("elapsed", result.Finished.Sub(result.Started)))
	case errors.Is(err, context.Canceled):
		result.State = StageCancelled
		result.ErrorKind = services.KindCancelled
		result.Error = "run cancelled"
		err = fmt.Errorf("run %s cancelled: %w", run.ID, context.Canceled)
		run.finish(result, err)
		run.emit(Event{Type: EventCancelled, Stage: StageCancelled, Percent: run.progress.current(), Message: "cancelled"})
		logger.Info("run cancelled", logging.Int("segments", len(result.Segments)))
	default:
		result.State = StageError
		result.ErrorKind = services.KindOf(err)
		result.Error = err.Error()
		run.finish(result, err)
		run.emit(Event{
			Type:      EventError,
			Stage:     StageError,
			Percent:   run.progress.current(),
			ErrorKind: result.ErrorKind,
			Error:     result.Error,
		})
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String("error_kind", string(result.ErrorKind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(result.ErrorKind)))
	}
	o.record(ctx, logger, result)
	o.notify(ctx, logger, result)
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, result Result) {
	if o.opts.Notifier == nil {
		return
	}
	if err := o.opts.Notifier.RunFinished(context.WithoutCancel(ctx), result); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no push notification for this run"),
			logging.String(logging.FieldErrorHint, "check the [notifications] ntfy_topic URL"))
	}
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, result Result) {
	if o.opts.History == nil {
		return
	}
	finished := result.Finished
	entry := history.Entry{
		ID:              result.RunID,
		MediaPath:       result.MediaPath,
		State:           string(result.State),
		Segments:        len(result.Segments),
		SourceLanguage:  result.SourceLanguage,
		TargetLanguage:  result.TargetLanguage,
		ErrorKind:       string(result.ErrorKind),
		Error:           result.Error,
		SubtitlePath:    result.SubtitlePath,
		TranslationPath: result.TranslationPath,
		MixedAudioPath:  result.MixedAudioPath,
		FromCache:       result.FromCache,
		Degraded:        result.Degraded,
		StartedAt:       result.Started,
		FinishedAt:      &finished,
	}
	if err := o.opts.History.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logger, "history record failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from history listing"),
			logging.String(logging.FieldErrorHint, "check history_db path permissions"))
	}
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindInputNotFound:
		return "verify the media path exists"
	case services.KindCapabilityUnavailable:
		return "check the transcription command and model configuration"
	case services.KindExtractionFailed:
		return "verify ffmpeg is installed and the file has an audio stream"
	case services.KindStageFailure:
		return "inspect the engine output in the log"
	default:
		return "check logs for details"
	}
}
