package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeSynthesis()
	c.normalizeCache()
	c.normalizeServer()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Command = strings.TrimSpace(c.Transcription.Command)
	if value, ok := os.LookupEnv("SUBFLOW_TRANSCRIBE_COMMAND"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.Command = strings.TrimSpace(value)
	}
	if c.Transcription.Command == "" {
		c.Transcription.Command = defaultTranscriptionCmd
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.Device = strings.ToLower(strings.TrimSpace(c.Transcription.Device))
	if c.Transcription.Device == "" {
		c.Transcription.Device = defaultTranscriptionDevice
	}
	c.Transcription.ComputeType = strings.ToLower(strings.TrimSpace(c.Transcription.ComputeType))
	if c.Transcription.ComputeType == "" {
		c.Transcription.ComputeType = defaultComputeType
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.Command = strings.TrimSpace(c.Translation.Command)
	if value, ok := os.LookupEnv("SUBFLOW_TRANSLATE_COMMAND"); ok && strings.TrimSpace(value) != "" {
		c.Translation.Command = strings.TrimSpace(value)
	}
	c.Translation.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Translation.SourceLanguage))
	c.Translation.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translation.TargetLanguage))
	if c.Translation.TargetLanguage == "" {
		c.Translation.TargetLanguage = defaultTargetLanguage
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Command = strings.TrimSpace(c.Synthesis.Command)
	if value, ok := os.LookupEnv("SUBFLOW_TTS_COMMAND"); ok && strings.TrimSpace(value) != "" {
		c.Synthesis.Command = strings.TrimSpace(value)
	}
	c.Synthesis.Speaker = strings.TrimSpace(c.Synthesis.Speaker)
	if c.Synthesis.Speaker == "" {
		c.Synthesis.Speaker = defaultSpeaker
	}
	if c.Synthesis.SampleRate <= 0 {
		c.Synthesis.SampleRate = defaultSampleRate
	}
}

func (c *Config) normalizeCache() {
	c.Cache.Fingerprint = strings.ToLower(strings.TrimSpace(c.Cache.Fingerprint))
	if c.Cache.Fingerprint == "" {
		c.Cache.Fingerprint = defaultFingerprint
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.EventBuffer <= 0 {
		c.Server.EventBuffer = defaultEventBuffer
	}
	c.Server.AllowOrigins = strings.TrimSpace(c.Server.AllowOrigins)
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	if c.Server.Token == "" {
		c.Server.Token = strings.TrimSpace(os.Getenv("SUBFLOW_API_TOKEN"))
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(os.Getenv("SUBFLOW_NTFY_TOPIC"))
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
