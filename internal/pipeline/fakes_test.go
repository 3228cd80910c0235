package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"subflow/internal/cache"
	"subflow/internal/engines"
	"subflow/internal/pipeline"
	"subflow/internal/testsupport"
)

type fakeExtractor struct {
	calls   atomic.Int32
	seconds float64
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, mediaPath, workDir string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	base := filepath.Base(mediaPath)
	dest := filepath.Join(workDir, strings.TrimSuffix(base, filepath.Ext(base))+".wav")
	seconds := f.seconds
	if seconds <= 0 {
		seconds = 1
	}
	if err := testsupport.WriteWAVFile(dest, seconds, 0.4); err != nil {
		return "", err
	}
	return dest, nil
}

type fakeTranscriber struct {
	calls      atomic.Int32
	utterances []engines.Utterance
	duration   float64
	language   string
	prepareErr error
	// failAfter makes the stream fail after that many utterances when > 0.
	failAfter int
	// before runs ahead of yielding utterance i.
	before func(i int)
}

func (f *fakeTranscriber) Prepare(context.Context) error {
	return f.prepareErr
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (*engines.Transcription, error) {
	f.calls.Add(1)
	return &engines.Transcription{
		Duration: f.duration,
		Language: f.language,
		Segments: func(yield func(engines.Utterance, error) bool) {
			for i, u := range f.utterances {
				if f.failAfter > 0 && i == f.failAfter {
					yield(engines.Utterance{}, errors.New("decoder crashed"))
					return
				}
				if f.before != nil {
					f.before(i)
				}
				if !yield(u, nil) {
					return
				}
			}
		},
	}, nil
}

type upperTranslator struct {
	calls atomic.Int32
}

func (t *upperTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	t.calls.Add(1)
	return strings.ToUpper(text), nil
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string, string, string) (string, error) {
	return "", errors.New("translation backend offline")
}

type brokenPreparer struct{ failingTranslator }

func (brokenPreparer) Prepare(context.Context) error {
	return errors.New("model missing")
}

// fakeSynthesizer writes a clip whose length is looked up by text.
type fakeSynthesizer struct {
	mu      sync.Mutex
	lengths map[string]float64
	texts   []string
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, text, dest string) (engines.Clip, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	seconds, ok := s.lengths[text]
	s.mu.Unlock()
	if !ok {
		return engines.Clip{}, engines.ErrNoAudio
	}
	if err := testsupport.WriteWAVFile(dest, seconds, 0.2); err != nil {
		return engines.Clip{}, err
	}
	return engines.Clip{Path: dest, Duration: seconds}, nil
}

var threeUtterances = []engines.Utterance{
	{Start: 0, End: 2.5, Text: "Hello"},
	{Start: 3, End: 5, Text: "general"},
	{Start: 6, End: 8, Text: "kenobi"},
}

type fixture struct {
	dir         string
	media       string
	cache       *cache.Store
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	media := filepath.Join(dir, "movie.mkv")
	testsupport.WriteFile(t, media, 2048)
	return &fixture{
		dir:         dir,
		media:       media,
		cache:       cache.Open(filepath.Join(dir, "cache", "metadata.json"), nil),
		extractor:   &fakeExtractor{seconds: 10},
		transcriber: &fakeTranscriber{utterances: threeUtterances, duration: 10, language: "en"},
	}
}

func (f *fixture) options(mutators ...func(*pipeline.Options)) pipeline.Options {
	opts := pipeline.Options{
		Engines: engines.Set{
			Extractor:   f.extractor,
			Transcriber: f.transcriber,
		},
		Cache:         f.cache,
		WorkDir:       filepath.Join(f.dir, "work"),
		Params:        pipeline.CacheParams{Transcription: map[string]string{"model": "base", "language": "en"}},
		DefaultTarget: "ru",
	}
	for _, m := range mutators {
		m(&opts)
	}
	return opts
}

func newOrchestrator(t *testing.T, opts pipeline.Options) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.New(opts)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

// collect waits for the sink to close and returns every event.
func collect(sink *pipeline.ChannelSink) []pipeline.Event {
	var events []pipeline.Event
	for e := range sink.Events() {
		events = append(events, e)
	}
	return events
}

func eventsOfType(events []pipeline.Event, typ pipeline.EventType) []pipeline.Event {
	var out []pipeline.Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
