package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir  string `toml:"cache_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// Transcription configures the speech recognition engine. Model, Language,
// Device, and ComputeType feed the subtitle cache key.
type Transcription struct {
	Command     string `toml:"command"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	Device      string `toml:"device"`
	ComputeType string `toml:"compute_type"`
}

// Translation configures the per-segment translator.
type Translation struct {
	Enabled        bool   `toml:"enabled"`
	Command        string `toml:"command"`
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
}

// Synthesis configures voice-over generation.
type Synthesis struct {
	Enabled    bool   `toml:"enabled"`
	Command    string `toml:"command"`
	Speaker    string `toml:"speaker"`
	SampleRate int    `toml:"sample_rate"`
}

// Mix configures how voice clips are laid over the original track.
type Mix struct {
	Enabled          bool    `toml:"enabled"`
	BackgroundVolume float64 `toml:"background_volume"`
	VoiceVolume      float64 `toml:"voice_volume"`
	// KeepClips keeps per-segment voice clips after a mix is written.
	KeepClips bool `toml:"keep_clips"`
}

// Cache configures the result cache.
type Cache struct {
	Enabled bool `toml:"enabled"`
	// Fingerprint selects how media identity is derived: "weak" (path, size,
	// mtime) or "content" (SHA-256 of the file, memoised per weak identity).
	Fingerprint string `toml:"fingerprint"`
}

// Subtitles configures the SRT codec.
type Subtitles struct {
	StrictParsing bool `toml:"strict_parsing"`
}

// Server configures the HTTP/WebSocket event service.
type Server struct {
	Bind         string `toml:"bind"`
	EventBuffer  int    `toml:"event_buffer"`
	AllowOrigins string `toml:"allow_origins"`
	// Token, when set, is required as a bearer token on every API request.
	Token string `toml:"token"`
}

// Notifications configures push notifications for finished runs.
type Notifications struct {
	// NtfyTopic is the full ntfy topic URL; empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// OnSuccess also notifies successful runs; failures always notify.
	OnSuccess bool `toml:"on_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for subflow.
//
// Configuration sections by subsystem:
//   - Paths: cache, work, log directories and the run history database
//   - Transcription: speech recognition command and model parameters
//   - Translation: per-segment translation command and languages
//   - Synthesis: voice-over command and speaker
//   - Mix: background/voice gain for the dubbed track
//   - Cache: result cache toggle and fingerprint strategy
//   - Subtitles: SRT parsing mode
//   - Server: event service bind address and buffering
//   - Notifications: ntfy push on run completion
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	Synthesis     Synthesis     `toml:"synthesis"`
	Mix           Mix           `toml:"mix"`
	Cache         Cache         `toml:"cache"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Server        Server        `toml:"server"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a pipeline run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if db := strings.TrimSpace(c.Paths.HistoryDB); db != "" {
		if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// CacheIndexPath returns the location of the persisted cache index.
func (c *Config) CacheIndexPath() string {
	return filepath.Join(c.Paths.CacheDir, "metadata.json")
}

// FFmpegBinary returns the ffmpeg executable used for audio extraction.
func (c *Config) FFmpegBinary() string {
	if value, ok := os.LookupEnv("SUBFLOW_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return "ffmpeg"
}

// TranscriptionParams returns the option set that identifies a transcription
// result for caching.
func (c *Config) TranscriptionParams() map[string]string {
	return map[string]string{
		"model":        c.Transcription.Model,
		"language":     c.Transcription.Language,
		"device":       c.Transcription.Device,
		"compute_type": c.Transcription.ComputeType,
	}
}

// TranslationParams returns the transcription options extended with the
// translation languages.
func (c *Config) TranslationParams(targetLanguage string) map[string]string {
	params := c.TranscriptionParams()
	if strings.TrimSpace(targetLanguage) == "" {
		targetLanguage = c.Translation.TargetLanguage
	}
	params["source_language"] = c.Translation.SourceLanguage
	params["target_language"] = targetLanguage
	return params
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
