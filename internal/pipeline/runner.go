package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"subflow/internal/cache"
	"subflow/internal/dubbing"
	"subflow/internal/engines"
	"subflow/internal/fileutil"
	"subflow/internal/language"
	"subflow/internal/logging"
	"subflow/internal/services"
	"subflow/internal/subtitles"
)

// runner holds the per-run state of one execution.
type runner struct {
	o      *Orchestrator
	run    *Run
	req    Request
	logger *slog.Logger
	// engineCtx is detached from cancellation: engine calls are never
	// interrupted, the run stops between segments instead.
	engineCtx context.Context

	sampler     *logging.ProgressSampler
	workDir     string
	clipDir     string
	translator  engines.Translator
	synthesizer engines.Synthesizer

	useCache           bool
	fingerprint        string
	cachedTranslations map[int]string
	cachedTranslation  string
	translationFailed  bool
	sourceHint         string
	audioPath          string
	placements         []dubbing.Placement
	segments           []subtitles.Segment

	result Result
}

// source is the segment stream feeding the per-segment stages.
type source struct {
	segments iter.Seq2[subtitles.Segment, error]
	duration float64
	stage    Stage
}

func newRunner(o *Orchestrator, run *Run, logger *slog.Logger) *runner {
	workDir := filepath.Join(o.opts.WorkDir, run.ID)
	return &runner{
		o:         o,
		run:       run,
		req:       run.Request,
		logger:    logger,
		engineCtx: context.WithoutCancel(run.ctx),
		sampler:   logging.NewProgressSampler(5),
		workDir:   workDir,
		clipDir:   filepath.Join(workDir, "clips"),
		result: Result{
			RunID:          run.ID,
			MediaPath:      run.MediaPath,
			Started:        run.Started,
			TargetLanguage: targetFor(run.Request),
		},
	}
}

func targetFor(req Request) string {
	if req.Translate {
		return req.TargetLanguage
	}
	return ""
}

func (r *runner) execute() error {
	if err := r.lockEngines(); err != nil {
		return err
	}
	defer r.unlockEngines()
	defer r.cleanup()

	r.run.report(StageExtracting, 0, "starting")
	r.prepareOptional()
	r.fingerprint, r.useCache = r.identify()

	src, err := r.open()
	if err != nil {
		return err
	}
	if err := r.process(src); err != nil {
		return err
	}
	if r.run.cancelled() {
		return r.run.ctx.Err()
	}
	if err := r.finalize(); err != nil {
		return err
	}
	if r.run.cancelled() {
		return r.run.ctx.Err()
	}
	r.mix()
	return nil
}

// lockEngines waits for exclusive use of the shared engines.
func (r *runner) lockEngines() error {
	select {
	case r.o.engineLock <- struct{}{}:
		return nil
	default:
	}
	r.run.report(StageIdle, 0, "waiting for engines")
	select {
	case r.o.engineLock <- struct{}{}:
		return nil
	case <-r.run.ctx.Done():
		return r.run.ctx.Err()
	}
}

func (r *runner) unlockEngines() {
	<-r.o.engineLock
}

// cleanup removes the extracted audio and, once a mix consumed them, the
// voice clips. The run work dir goes when nothing is left in it.
func (r *runner) cleanup() {
	if r.audioPath != "" {
		if err := os.Remove(r.audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("remove extracted audio failed", logging.Error(err))
		}
	}
	if r.result.MixedAudioPath != "" && !r.o.opts.KeepClips {
		if err := os.RemoveAll(r.clipDir); err != nil {
			r.logger.Debug("remove voice clips failed", logging.Error(err))
		}
		r.run.clearAudio()
	}
	if err := os.Remove(r.clipDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("voice clips kept", logging.String("dir", r.clipDir))
	}
	if err := os.Remove(r.workDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("work dir kept", logging.String("dir", r.workDir))
	}
}

// prepareOptional initialises the translator and synthesizer once. A
// capability that is missing or fails to start is disabled for the run.
func (r *runner) prepareOptional() {
	set := r.o.opts.Engines
	if r.req.Translate {
		switch {
		case set.Translator == nil:
			r.disableTranslation(errors.New("no translator configured"))
		default:
			if err := engines.Prepare(r.engineCtx, set.Translator); err != nil {
				r.disableTranslation(err)
			} else {
				r.translator = set.Translator
			}
		}
	}
	if r.req.Synthesize {
		var err error
		switch {
		case set.Synthesizer == nil:
			err = errors.New("no synthesizer configured")
		default:
			err = engines.Prepare(r.engineCtx, set.Synthesizer)
			if err == nil {
				err = os.MkdirAll(r.clipDir, 0o755)
			}
		}
		if err != nil {
			r.result.Degraded = true
			logging.WarnWithContext(r.logger, "voice synthesis disabled", "capability_unavailable",
				logging.String("capability", "synthesizer"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "segments carry no audio and no mix is produced"),
				logging.String(logging.FieldErrorHint, "check synthesis.command in config"))
		} else {
			r.synthesizer = set.Synthesizer
		}
	}
}

func (r *runner) disableTranslation(err error) {
	r.translationFailed = true
	r.result.Degraded = true
	logging.WarnWithContext(r.logger, "translation disabled", "capability_unavailable",
		logging.String("capability", "translator"),
		logging.Error(err),
		logging.String(logging.FieldImpact, "translated text falls back to the original"),
		logging.String(logging.FieldErrorHint, "check translation.command in config"))
}

// identify computes the media fingerprint. A failure disables caching for
// the run without failing it.
func (r *runner) identify() (string, bool) {
	store := r.o.opts.Cache
	if store == nil || r.req.NoCache {
		return "", false
	}
	fp, err := r.o.opts.Fingerprinter.Fingerprint(r.run.MediaPath)
	if err != nil {
		logging.WarnWithContext(r.logger, "fingerprint failed", "cache_disabled",
			logging.Error(err),
			logging.String(logging.FieldImpact, "results are computed and not cached"),
			logging.String(logging.FieldErrorHint, "check the media file is readable"))
		return "", false
	}
	return fp, true
}

func (r *runner) transcriptionKey() string {
	return cache.Key(r.fingerprint, cache.OpSubtitle, r.o.opts.Params.transcription())
}

func (r *runner) translationParams() map[string]string {
	return r.o.opts.Params.translation(r.req.TargetLanguage)
}

func (r *runner) translationKey() string {
	return cache.Key(r.fingerprint, cache.OpTranslation, r.translationParams())
}

// open returns the segment stream, from the cache when a transcript for the
// same media and parameters exists, otherwise from extraction and
// transcription.
func (r *runner) open() (source, error) {
	if segs, ok := r.cachedTranscript(); ok {
		r.loadCachedTranslation()
		stage := StageTranscribing
		switch {
		case r.translator != nil && r.cachedTranslations == nil:
			stage = StageTranslating
		case r.synthesizer != nil:
			stage = StageSynthesizing
		}
		var duration float64
		if n := len(segs); n > 0 {
			duration = segs[n-1].End
		}
		if hint := r.o.opts.Params.Transcription["language"]; hint != "" && hint != "auto" {
			r.sourceHint = language.Normalize(hint)
		}
		r.run.report(stage, extractionDonePercent, "loaded cached transcript")
		return source{segments: sliceSeq(segs), duration: duration, stage: stage}, nil
	}
	return r.transcribe()
}

func (r *runner) cachedTranscript() ([]subtitles.Segment, bool) {
	if !r.useCache {
		return nil, false
	}
	key := r.transcriptionKey()
	entry, ok := r.o.opts.Cache.Lookup(key)
	if !ok {
		r.logger.Debug("transcript cache miss", logging.Args(logging.DecisionAttrs("cache_lookup", "miss", "no live entry")...)...)
		return nil, false
	}
	segs, err := subtitles.ReadFile(entry.ArtifactPath, subtitles.ParseOptions{Strict: r.o.opts.StrictSubtitles})
	if err != nil || len(segs) == 0 {
		reason := "cached track is empty"
		if err != nil {
			reason = err.Error()
		}
		logging.WarnWithContext(r.logger, "cached transcript unusable", "cache_stale",
			logging.String("artifact", entry.ArtifactPath),
			logging.String("reason", reason),
			logging.String(logging.FieldImpact, "media is transcribed again"),
			logging.String(logging.FieldErrorHint, "run 'subflow cache clear' if this repeats"))
		return nil, false
	}
	r.logger.Info("transcript cache hit",
		logging.Args(append(logging.DecisionAttrs("cache_lookup", "hit", "live entry"),
			logging.String("artifact", entry.ArtifactPath),
			logging.Int("segments", len(segs)))...)...)
	r.result.FromCache = true
	r.result.SubtitlePath = entry.ArtifactPath
	return segs, true
}

// loadCachedTranslation merges a cached translated track by index. It only
// applies on top of a cached transcript, whose indices it was written from.
func (r *runner) loadCachedTranslation() {
	if !r.req.Translate || !r.useCache {
		return
	}
	entry, ok := r.o.opts.Cache.Lookup(r.translationKey())
	if !ok {
		return
	}
	segs, err := subtitles.ReadFile(entry.ArtifactPath, subtitles.ParseOptions{Strict: r.o.opts.StrictSubtitles})
	if err != nil || len(segs) == 0 {
		return
	}
	r.cachedTranslations = make(map[int]string, len(segs))
	for _, seg := range segs {
		r.cachedTranslations[seg.Index] = seg.Text
	}
	r.cachedTranslation = entry.ArtifactPath
	r.result.TranslationFromCache = true
	r.logger.Info("translation cache hit", logging.String("artifact", entry.ArtifactPath))
}

func (r *runner) transcribe() (source, error) {
	set := r.o.opts.Engines
	if err := engines.Prepare(r.engineCtx, set.Transcriber); err != nil {
		return source{}, classify(err, services.ErrCapabilityUnavailable, StageTranscribing, "prepare transcriber")
	}
	if r.run.cancelled() {
		return source{}, r.run.ctx.Err()
	}
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return source{}, services.Wrap(services.ErrExtractionFailed, string(StageExtracting), "create work dir", r.workDir, err)
	}
	audioPath, err := set.Extractor.Extract(r.engineCtx, r.run.MediaPath, r.workDir)
	if err != nil {
		return source{}, classify(err, services.ErrExtractionFailed, StageExtracting, "extract audio")
	}
	r.audioPath = audioPath
	r.run.report(StageExtracting, extractionDonePercent, "audio extracted")
	if r.run.cancelled() {
		return source{}, r.run.ctx.Err()
	}

	transcription, err := set.Transcriber.Transcribe(r.engineCtx, audioPath)
	if err != nil {
		return source{}, classify(err, services.ErrStageFailure, StageTranscribing, "transcribe")
	}
	if transcription == nil || transcription.Segments == nil {
		return source{}, services.Wrap(services.ErrStageFailure, string(StageTranscribing), "transcribe", "engine returned no stream", nil)
	}
	if lang := language.Normalize(transcription.Language); lang != "" {
		r.sourceHint = lang
	}
	r.run.report(StageTranscribing, extractionDonePercent, "transcribing")
	return source{segments: fromUtterances(transcription.Segments), duration: transcription.Duration, stage: StageTranscribing}, nil
}

// process runs the per-segment stages as each segment arrives.
func (r *runner) process(src source) error {
	index := 0
	for seg, err := range src.segments {
		if err != nil {
			return classify(err, services.ErrStageFailure, StageTranscribing, "read segment")
		}
		if r.run.cancelled() {
			return r.run.ctx.Err()
		}
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		index++
		seg.Index = index
		if r.result.SourceLanguage == "" {
			r.result.SourceLanguage = r.sourceHint
			if r.result.SourceLanguage == "" {
				r.result.SourceLanguage = language.Detect(seg.Text)
			}
		}

		seg = r.translate(seg)
		seg = r.synthesize(seg)
		r.segments = append(r.segments, seg)
		r.run.addSegment(seg)

		percent := r.run.progress.advance(segmentPercent(seg.End, src.duration))
		r.run.report(src.stage, percent, fmt.Sprintf("segment %d", seg.Index))
		if r.sampler.ShouldLog(string(src.stage), percent) {
			r.logger.Info("pipeline progress",
				logging.String(logging.FieldStage, string(src.stage)),
				logging.Float64("percent", percent),
				logging.Int("segments", index))
		}
	}
	return nil
}

func (r *runner) translate(seg subtitles.Segment) subtitles.Segment {
	if !r.req.Translate {
		return seg
	}
	if text, ok := r.cachedTranslations[seg.Index]; ok && strings.TrimSpace(text) != "" {
		return seg.WithTranslation(text)
	}
	if r.translator == nil {
		return seg.WithTranslation(seg.Text)
	}
	out, err := r.translator.Translate(r.engineCtx, seg.Text, r.sourceHint, r.req.TargetLanguage)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		r.translationFailed = true
		r.result.Degraded = true
		logging.WarnWithContext(r.logger, "segment translation failed", "translation_failed",
			logging.Int("segment", seg.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment keeps its original text"),
			logging.String(logging.FieldErrorHint, "check the translator output in the log"))
		return seg.WithTranslation(seg.Text)
	}
	return seg.WithTranslation(strings.TrimSpace(out))
}

func (r *runner) synthesize(seg subtitles.Segment) subtitles.Segment {
	if r.synthesizer == nil {
		return seg
	}
	text := seg.DisplayText()
	if strings.TrimSpace(text) == "" {
		return seg
	}
	dest := filepath.Join(r.clipDir, fmt.Sprintf("%04d.wav", seg.Index))
	clip, err := r.synthesizer.Synthesize(r.engineCtx, text, dest)
	if err != nil {
		if errors.Is(err, engines.ErrNoAudio) {
			r.logger.Debug("synthesizer produced no audio", logging.Int("segment", seg.Index))
			return seg
		}
		r.result.Degraded = true
		logging.WarnWithContext(r.logger, "segment synthesis failed", "synthesis_failed",
			logging.Int("segment", seg.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment has no voice clip"),
			logging.String(logging.FieldErrorHint, "check the synthesizer output in the log"))
		return seg
	}
	placement, fit, err := dubbing.FitClip(clip.Path, seg.Start, seg.End, clip.Duration)
	if err != nil {
		r.result.Degraded = true
		logging.WarnWithContext(r.logger, "voice clip fitting failed", "synthesis_failed",
			logging.Int("segment", seg.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment has no voice clip"),
			logging.String(logging.FieldErrorHint, "check the clip is a readable WAV"))
		return seg
	}
	if fit.Truncated {
		r.logger.Debug("voice clip truncated",
			logging.Args(append(logging.DecisionAttrs("clip_fit", "truncated",
				fmt.Sprintf("%.2fs exceeds slot %.2fs", clip.Duration, seg.Slot())),
				logging.Int("segment", seg.Index))...)...)
	}
	r.placements = append(r.placements, placement)
	return seg.WithAudio(placement.Path)
}

// finalize writes the subtitle tracks and records cacheable artifacts.
func (r *runner) finalize() error {
	r.run.report(StageFinalizing, r.run.progress.current(), "writing subtitles")
	if r.req.OutputDir != "" {
		if err := os.MkdirAll(r.req.OutputDir, 0o755); err != nil {
			return services.Wrap(services.ErrStageFailure, string(StageFinalizing), "create output dir", r.req.OutputDir, err)
		}
	}

	original := subtitles.PathForMedia(r.run.MediaPath, r.req.OutputDir, "")
	if r.result.FromCache {
		r.result.SubtitlePath = r.deliver(r.result.SubtitlePath, original)
	} else {
		if err := subtitles.WriteFile(original, r.segments); err != nil {
			return services.Wrap(services.ErrStageFailure, string(StageFinalizing), "write subtitles", original, err)
		}
		r.result.SubtitlePath = original
		r.store(cache.OpSubtitle, r.transcriptionKey(), r.o.opts.Params.transcription(), original)
	}

	if !r.req.Translate {
		return nil
	}
	translated := subtitles.PathForMedia(r.run.MediaPath, r.req.OutputDir, r.req.TargetLanguage)
	if r.result.TranslationFromCache {
		r.result.TranslationPath = r.deliver(r.cachedTranslation, translated)
		return nil
	}
	if err := subtitles.WriteFile(translated, subtitles.Translated(r.segments)); err != nil {
		return services.Wrap(services.ErrStageFailure, string(StageFinalizing), "write translated subtitles", translated, err)
	}
	r.result.TranslationPath = translated
	if !r.translationFailed {
		r.store(cache.OpTranslation, r.translationKey(), r.translationParams(), translated)
	}
	return nil
}

// deliver copies a cached artifact to the output path and returns it. The
// cached path is returned when the copy fails.
func (r *runner) deliver(cached, want string) string {
	if fileutil.SameFile(cached, want) {
		return want
	}
	if err := fileutil.CopyFile(cached, want); err != nil {
		logging.WarnWithContext(r.logger, "copy cached artifact failed", "artifact_copy_failed",
			logging.String("artifact", cached),
			logging.String("destination", want),
			logging.Error(err),
			logging.String(logging.FieldImpact, "result points at the cached location"),
			logging.String(logging.FieldErrorHint, "check output directory permissions"))
		return cached
	}
	return want
}

// store caches a copy of artifact under key; the delivered file stays the
// user's.
func (r *runner) store(op cache.Operation, key string, params map[string]string, artifact string) {
	if !r.useCache {
		return
	}
	_, err := r.o.opts.Cache.Save(cache.Entry{
		Key:       key,
		MediaPath: r.run.MediaPath,
		Operation: op,
		Params:    params,
	}, artifact)
	if err != nil {
		logging.WarnWithContext(r.logger, "cache write failed", "cache_write_failed",
			logging.String("operation", string(op)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next run recomputes this artifact"),
			logging.String(logging.FieldErrorHint, "check cache_dir permissions"))
	}
}

// mix writes the dubbed track. Every failure here degrades the run instead of
// failing it.
func (r *runner) mix() {
	if !r.req.Mix || r.synthesizer == nil {
		return
	}
	if len(r.placements) == 0 {
		r.logger.Info("mix skipped", logging.Args(logging.DecisionAttrs("mix", "skipped", "no voice clips")...)...)
		return
	}
	r.run.report(StageMixing, r.run.progress.current(), "mixing voice track")

	if r.audioPath == "" {
		// the transcript came from the cache, so no audio was extracted yet
		if err := os.MkdirAll(r.workDir, 0o755); err != nil {
			r.mixFailed(err)
			return
		}
		path, err := r.o.opts.Engines.Extractor.Extract(r.engineCtx, r.run.MediaPath, r.workDir)
		if err != nil {
			r.mixFailed(err)
			return
		}
		r.audioPath = path
	}

	out := dubPath(r.run.MediaPath, r.req.OutputDir, r.result.TargetLanguage)
	report, err := r.o.opts.Mixer.Mix(r.engineCtx, r.audioPath, r.placements, out, r.o.opts.MixOptions)
	if err != nil {
		r.mixFailed(err)
		return
	}
	r.result.MixedAudioPath = out
	r.result.Mix = &report
	r.logger.Info("mix written",
		logging.String("output", out),
		logging.Int("overlaid", report.Overlaid),
		logging.Int("skipped", report.Skipped),
		logging.Float64("background_db", report.BackgroundDB))
}

func (r *runner) mixFailed(err error) {
	r.result.Degraded = true
	logging.WarnWithContext(r.logger, "mix failed", "mix_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "no dubbed audio track is produced"),
		logging.String(logging.FieldErrorHint, "verify ffmpeg can decode the media audio"))
}

// dubPath names the mix output "<stem>.<lang>.dub.wav".
func dubPath(mediaPath, dir, lang string) string {
	if dir == "" {
		dir = filepath.Dir(mediaPath)
	}
	base := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if lang != "" {
		stem += "." + lang
	}
	return filepath.Join(dir, stem+".dub.wav")
}

// classify tags err with marker unless it already carries a known kind.
func classify(err error, marker error, stage Stage, op string) error {
	switch services.KindOf(err) {
	case services.KindInternal:
		return services.Wrap(marker, string(stage), op, "", err)
	default:
		return err
	}
}

func fromUtterances(stream iter.Seq2[engines.Utterance, error]) iter.Seq2[subtitles.Segment, error] {
	return func(yield func(subtitles.Segment, error) bool) {
		for u, err := range stream {
			if err != nil {
				yield(subtitles.Segment{}, err)
				return
			}
			if !yield(subtitles.Segment{Start: u.Start, End: u.End, Text: u.Text}, nil) {
				return
			}
		}
	}
}

func sliceSeq(segs []subtitles.Segment) iter.Seq2[subtitles.Segment, error] {
	return func(yield func(subtitles.Segment, error) bool) {
		for _, seg := range segs {
			if !yield(seg, nil) {
				return
			}
		}
	}
}
