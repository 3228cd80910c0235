// Package engines defines the contracts the pipeline consumes for each stage:
// audio extraction, transcription, translation and speech synthesis.
//
// Engines are explicitly owned values. A caller constructs them, injects them
// into the orchestrator and closes them when done; model loading belongs to
// Prepare, never to package-level state.
package engines

import (
	"context"
	"errors"
	"iter"
)

// ErrNoAudio is returned by a Synthesizer that produced no clip for the text.
var ErrNoAudio = errors.New("no audio produced")

// Utterance is one raw recognised span before indexing and translation.
type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is a lazy, single-pass stream of utterances ordered by start.
// Ranging over Segments a second time is not supported; call Transcribe again.
type Transcription struct {
	// Duration is the audio length in seconds; zero when unknown.
	Duration float64
	// Language is the detected or configured source language.
	Language string
	Segments iter.Seq2[Utterance, error]
}

// Clip is a synthesized audio file and its natural length in seconds.
type Clip struct {
	Path     string
	Duration float64
}

// Extractor produces an audio track for a media file inside workDir.
type Extractor interface {
	Extract(ctx context.Context, mediaPath, workDir string) (string, error)
}

// Transcriber turns an audio file into a lazy utterance stream.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

// Translator translates one text into targetLang. sourceLang may be empty
// when unknown.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Synthesizer renders text to an audio clip at destPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, destPath string) (Clip, error)
}

// Preparer is implemented by engines that need one-time initialisation such as
// loading a model. The orchestrator calls Prepare once per run before use.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Prepare runs engine's Prepare when it implements Preparer.
func Prepare(ctx context.Context, engine any) error {
	if p, ok := engine.(Preparer); ok && p != nil {
		return p.Prepare(ctx)
	}
	return nil
}

// Set bundles the engines wired into an orchestrator. Translator and
// Synthesizer are optional.
type Set struct {
	Extractor   Extractor
	Transcriber Transcriber
	Translator  Translator
	Synthesizer Synthesizer
}

// Close releases every engine implementing io.Closer and returns the first
// error.
func (s Set) Close() error {
	var first error
	seen := map[any]struct{}{}
	for _, engine := range []any{s.Extractor, s.Transcriber, s.Translator, s.Synthesizer} {
		if engine == nil {
			continue
		}
		if _, dup := seen[engine]; dup {
			continue
		}
		seen[engine] = struct{}{}
		if c, ok := engine.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Utterances adapts a slice to a Segments stream. It is used by fakes and
// by cached transcripts.
func Utterances(items []Utterance) iter.Seq2[Utterance, error] {
	return func(yield func(Utterance, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}
