package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".cache", "subflow")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Paths.HistoryDB != filepath.Join(tempHome, ".local", "share", "subflow", "history.db") {
		t.Fatalf("unexpected history db: %q", cfg.Paths.HistoryDB)
	}
	if cfg.Mix.BackgroundVolume != 0.15 {
		t.Fatalf("expected background volume default 0.15, got %v", cfg.Mix.BackgroundVolume)
	}
	if cfg.Mix.VoiceVolume != 1.0 {
		t.Fatalf("expected voice volume default 1.0, got %v", cfg.Mix.VoiceVolume)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Fingerprint != "weak" {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Translation.TargetLanguage != "ru" {
		t.Fatalf("unexpected target language: %q", cfg.Translation.TargetLanguage)
	}
	if cfg.Synthesis.Enabled {
		t.Fatal("expected synthesis disabled by default")
	}
	if cfg.Server.Bind != "127.0.0.1:7491" {
		t.Fatalf("unexpected server bind: %q", cfg.Server.Bind)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"cache_dir": "~/cache",
		},
		"transcription": map[string]any{
			"model":  " small ",
			"device": "CUDA",
		},
		"translation": map[string]any{
			"target_language": "DE",
		},
		"synthesis": map[string]any{
			"enabled": true,
		},
		"mix": map[string]any{
			"enabled":           true,
			"background_volume": 0.3,
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempHome, "cache") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.Transcription.Model != "small" {
		t.Fatalf("expected trimmed model, got %q", cfg.Transcription.Model)
	}
	if cfg.Transcription.Device != "cuda" {
		t.Fatalf("expected lower-cased device, got %q", cfg.Transcription.Device)
	}
	if cfg.Translation.TargetLanguage != "de" {
		t.Fatalf("expected lower-cased target language, got %q", cfg.Translation.TargetLanguage)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.Mix.BackgroundVolume != 0.3 {
		t.Fatalf("unexpected background volume %v", cfg.Mix.BackgroundVolume)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"background volume", func(c *config.Config) { c.Mix.BackgroundVolume = 1.5 }, "mix.background_volume"},
		{"voice volume", func(c *config.Config) { c.Mix.VoiceVolume = -0.1 }, "mix.voice_volume"},
		{"mix without synthesis", func(c *config.Config) { c.Mix.Enabled = true }, "mix.enabled"},
		{"fingerprint", func(c *config.Config) { c.Cache.Fingerprint = "md5" }, "cache.fingerprint"},
		{"device", func(c *config.Config) { c.Transcription.Device = "tpu" }, "transcription.device"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"target", func(c *config.Config) { c.Translation.TargetLanguage = "" }, "translation.target_language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestTranslationParamsExtendTranscriptionParams(t *testing.T) {
	cfg := config.Default()
	sub := cfg.TranscriptionParams()
	tr := cfg.TranslationParams("")
	for key, value := range sub {
		if tr[key] != value {
			t.Fatalf("translation params missing %s=%s", key, value)
		}
	}
	if tr["target_language"] != cfg.Translation.TargetLanguage {
		t.Fatalf("expected default target language, got %q", tr["target_language"])
	}
	if got := cfg.TranslationParams("de")["target_language"]; got != "de" {
		t.Fatalf("expected override target language, got %q", got)
	}
}

func TestEnvironmentOverridesCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SUBFLOW_TRANSCRIBE_COMMAND", "/opt/bin/whisper-json")
	t.Setenv("SUBFLOW_FFMPEG", "/opt/bin/ffmpeg")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Transcription.Command != "/opt/bin/whisper-json" {
		t.Fatalf("expected env override, got %q", cfg.Transcription.Command)
	}
	if cfg.FFmpegBinary() != "/opt/bin/ffmpeg" {
		t.Fatalf("expected ffmpeg override, got %q", cfg.FFmpegBinary())
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("sample config failed to load: exists=%v err=%v", exists, err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.WorkDir, cfg.Paths.LogDir, filepath.Join(base, "state")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
