package api

import (
	"subflow/internal/config"
	"subflow/internal/engines"
	"subflow/internal/services/ffmpeg"
	"subflow/internal/services/translate"
	"subflow/internal/services/tts"
	"subflow/internal/services/whisper"
)

// BuildEngines constructs the stage engines described by cfg. Translator and
// Synthesizer are nil when their sections are disabled.
func BuildEngines(cfg *config.Config) engines.Set {
	set := engines.Set{
		Extractor: ffmpeg.New(cfg.FFmpegBinary()),
		Transcriber: whisper.NewService(whisper.Config{
			Command:     cfg.Transcription.Command,
			Model:       cfg.Transcription.Model,
			Language:    cfg.Transcription.Language,
			Device:      cfg.Transcription.Device,
			ComputeType: cfg.Transcription.ComputeType,
		}),
	}
	if cfg.Translation.Enabled {
		set.Translator = translate.NewService(translate.Config{
			Command:        cfg.Translation.Command,
			SourceLanguage: cfg.Translation.SourceLanguage,
			TargetLanguage: cfg.Translation.TargetLanguage,
		})
	}
	if cfg.Synthesis.Enabled {
		set.Synthesizer = tts.NewService(tts.Config{
			Command:    cfg.Synthesis.Command,
			Speaker:    cfg.Synthesis.Speaker,
			SampleRate: cfg.Synthesis.SampleRate,
		})
	}
	return set
}
