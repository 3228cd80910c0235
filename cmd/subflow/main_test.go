package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"subflow/internal/config"
	"subflow/internal/engines"
	"subflow/internal/pipeline"
	"subflow/internal/services"
	"subflow/internal/subtitles"
	"subflow/internal/testsupport"
)

type stubExtractor struct{ calls int }

func (s *stubExtractor) Extract(_ context.Context, mediaPath, workDir string) (string, error) {
	s.calls++
	dest := filepath.Join(workDir, "audio.wav")
	if err := testsupport.WriteWAVFile(dest, 4, 0.3); err != nil {
		return "", err
	}
	return dest, nil
}

type stubTranscriber struct{ calls int }

func (s *stubTranscriber) Transcribe(context.Context, string) (*engines.Transcription, error) {
	s.calls++
	return &engines.Transcription{
		Duration: 4,
		Language: "en",
		Segments: engines.Utterances([]engines.Utterance{
			{Start: 0, End: 1.5, Text: "Hello there"},
			{Start: 2, End: 3.5, Text: "General Kenobi"},
		}),
	}, nil
}

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return strings.ToUpper(text), nil
}

type cliTestEnv struct {
	cfg         *config.Config
	configPath  string
	media       string
	extractor   *stubExtractor
	transcriber *stubTranscriber
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	media := filepath.Join(base, "media", "movie.mkv")
	testsupport.WriteFile(t, media, 64)

	env := &cliTestEnv{
		cfg:         cfg,
		configPath:  configPath,
		media:       media,
		extractor:   &stubExtractor{},
		transcriber: &stubTranscriber{},
	}

	previous := buildEngines
	buildEngines = func(c *config.Config) engines.Set {
		set := engines.Set{Extractor: env.extractor, Transcriber: env.transcriber}
		if c.Translation.Enabled {
			set.Translator = upperTranslator{}
		}
		return set
	}
	t.Cleanup(func() { buildEngines = previous })
	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n---\n%s", needle, haystack)
	}
}

func TestProcessWritesSubtitlesAndReport(t *testing.T) {
	env := setupCLITestEnv(t)
	outDir := filepath.Join(t.TempDir(), "out")
	report := filepath.Join(outDir, "report.yaml")

	out, _, err := runCLI(t, []string{"process", env.media, "--target-lang", "de", "--output", outDir, "--report", report}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "#1 00:00:00,000 --> 00:00:01,500  Hello there")
	requireContains(t, out, "GENERAL KENOBI")
	requireContains(t, out, filepath.Join(outDir, "movie.srt"))
	requireContains(t, out, filepath.Join(outDir, "movie.de.srt"))

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var manifest runReport
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if manifest.State != "done" || len(manifest.Segments) != 2 || manifest.TargetLanguage != "de" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if manifest.Segments[1].Translation != "GENERAL KENOBI" {
		t.Fatalf("unexpected translation %q", manifest.Segments[1].Translation)
	}
}

func TestProcessSecondRunUsesCacheAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	for i := 0; i < 2; i++ {
		if _, _, err := runCLI(t, []string{"process", env.media, "--no-translate"}, env.configPath); err != nil {
			t.Fatalf("process run %d: %v", i+1, err)
		}
	}
	if env.extractor.calls != 1 || env.transcriber.calls != 1 {
		t.Fatalf("expected engines to run once, got extract=%d transcribe=%d", env.extractor.calls, env.transcriber.calls)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n := strings.Count(out, "movie.mkv"); n != 2 {
		t.Fatalf("expected 2 history rows, got %d\n%s", n, out)
	}

	out, _, err = runCLI(t, []string{"cache", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, "subtitle")

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "Cache cleared (1 artifacts removed)")
	if _, err := os.Stat(filepath.Join(filepath.Dir(env.media), "movie.srt")); err != nil {
		t.Fatalf("delivered subtitles should survive cache clear: %v", err)
	}

	out, _, err = runCLI(t, []string{"cache", "size"}, env.configPath)
	if err != nil {
		t.Fatalf("cache size: %v", err)
	}
	requireContains(t, out, "Entries: 0")

	out, _, err = runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed 2 runs")
}

func TestProcessMissingMedia(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"process", filepath.Join(t.TempDir(), "missing.mkv")}, env.configPath)
	if !errors.Is(err, services.ErrInputNotFound) {
		t.Fatalf("expected ErrInputNotFound, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestProcessRequiresOneArgument(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"process"}, env.configPath); err == nil {
		t.Fatal("expected error without media argument")
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	env.cfg.Server.Token = "secret-token"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "secret-token") {
		t.Fatal("config show leaked the server token")
	}
}

func TestDoctorPassesWithStubbedBinaries(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Work directory")
	requireContains(t, out, "Transcriber")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{context.Canceled, 130},
		{services.Wrap(services.ErrInputNotFound, "run", "stat", "missing", nil), 2},
		{fmt.Errorf("wrapped: %w", services.ErrBusy), 3},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestProgressDisplayNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	d := newProgressDisplay(&buf, false)
	if d.tty {
		t.Fatal("buffer must not be treated as a terminal")
	}
	d.Emit(pipeline.Event{Type: pipeline.EventProgress, Stage: pipeline.StageTranscribing, Percent: 12})
	d.Emit(pipeline.Event{Type: pipeline.EventProgress, Stage: pipeline.StageTranscribing, Percent: 14})
	d.Emit(pipeline.Event{Type: pipeline.EventSegment, Segment: &subtitles.Segment{Index: 1, Start: 1, End: 2, Text: "hi", TranslatedText: "salut"}})
	d.Emit(pipeline.Event{Type: pipeline.EventProgress, Stage: pipeline.StageTranscribing, Percent: 31})
	d.finish()

	out := buf.String()
	if n := strings.Count(out, "transcribing"); n != 2 {
		t.Fatalf("expected 2 sampled progress lines, got %d\n%s", n, out)
	}
	requireContains(t, out, "#1 00:00:01,000 --> 00:00:02,000  hi\n    salut")
}

func TestProgressDisplayQuiet(t *testing.T) {
	var buf bytes.Buffer
	d := newProgressDisplay(&buf, true)
	d.Emit(pipeline.Event{Type: pipeline.EventError, ErrorKind: services.KindStageFailure, Error: "boom"})
	d.finish()
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLogsFiltersByRun(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "subflow.log")
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := "INFO run started run_id=abc123\nINFO run started run_id=def456\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err := runCLI(t, []string{"logs", "--run", "abc"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.TrimSpace(out) != "INFO run started run_id=abc123" {
		t.Fatalf("unexpected output %q", out)
	}
}
