package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"subflow/internal/pipeline"
)

type reportSegment struct {
	Index       int     `yaml:"index"`
	Start       float64 `yaml:"start"`
	End         float64 `yaml:"end"`
	Text        string  `yaml:"text"`
	Translation string  `yaml:"translation,omitempty"`
	Audio       string  `yaml:"audio,omitempty"`
}

type reportMix struct {
	BackgroundDB float64 `yaml:"background_db"`
	VoiceDB      float64 `yaml:"voice_db"`
	Overlaid     int     `yaml:"overlaid"`
	Skipped      int     `yaml:"skipped"`
	Seconds      float64 `yaml:"seconds"`
}

// runReport is the YAML manifest written by `process --report`.
type runReport struct {
	RunID          string          `yaml:"run_id"`
	Media          string          `yaml:"media"`
	State          string          `yaml:"state"`
	Error          string          `yaml:"error,omitempty"`
	ErrorKind      string          `yaml:"error_kind,omitempty"`
	SourceLanguage string          `yaml:"source_language,omitempty"`
	TargetLanguage string          `yaml:"target_language,omitempty"`
	Subtitle       string          `yaml:"subtitle,omitempty"`
	Translation    string          `yaml:"translation,omitempty"`
	MixedAudio     string          `yaml:"mixed_audio,omitempty"`
	FromCache      bool            `yaml:"from_cache"`
	Degraded       bool            `yaml:"degraded"`
	Started        time.Time       `yaml:"started"`
	Finished       time.Time       `yaml:"finished"`
	Mix            *reportMix      `yaml:"mix,omitempty"`
	Segments       []reportSegment `yaml:"segments"`
}

func newRunReport(result pipeline.Result) runReport {
	report := runReport{
		RunID:          result.RunID,
		Media:          result.MediaPath,
		State:          string(result.State),
		Error:          result.Error,
		ErrorKind:      string(result.ErrorKind),
		SourceLanguage: result.SourceLanguage,
		TargetLanguage: result.TargetLanguage,
		Subtitle:       result.SubtitlePath,
		Translation:    result.TranslationPath,
		MixedAudio:     result.MixedAudioPath,
		FromCache:      result.FromCache,
		Degraded:       result.Degraded,
		Started:        result.Started,
		Finished:       result.Finished,
		Segments:       make([]reportSegment, 0, len(result.Segments)),
	}
	if m := result.Mix; m != nil {
		report.Mix = &reportMix{
			BackgroundDB: m.BackgroundDB,
			VoiceDB:      m.VoiceDB,
			Overlaid:     m.Overlaid,
			Skipped:      m.Skipped,
			Seconds:      m.Seconds,
		}
	}
	for _, seg := range result.Segments {
		report.Segments = append(report.Segments, reportSegment{
			Index:       seg.Index,
			Start:       seg.Start,
			End:         seg.End,
			Text:        seg.Text,
			Translation: seg.TranslatedText,
			Audio:       seg.AudioFile,
		})
	}
	return report
}

func writeReport(path string, result pipeline.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := yaml.Marshal(newRunReport(result))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func printResult(out io.Writer, result pipeline.Result) {
	fmt.Fprintf(out, "Segments:    %d\n", len(result.Segments))
	if result.SourceLanguage != "" {
		fmt.Fprintf(out, "Language:    %s\n", result.SourceLanguage)
	}
	if result.SubtitlePath != "" {
		fmt.Fprintf(out, "Subtitles:   %s\n", result.SubtitlePath)
	}
	if result.TranslationPath != "" {
		fmt.Fprintf(out, "Translation: %s (%s)\n", result.TranslationPath, result.TargetLanguage)
	}
	if result.MixedAudioPath != "" {
		fmt.Fprintf(out, "Dubbed:      %s\n", result.MixedAudioPath)
	}
	fmt.Fprintf(out, "Cached:      %s\n", yesNo(result.FromCache))
	if result.Degraded {
		fmt.Fprintln(out, "Degraded:    yes (an optional stage was unavailable; see logs)")
	}
}
