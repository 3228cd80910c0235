package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateSynthesis(); err != nil {
		return err
	}
	if err := c.validateMix(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.Command) == "" {
		return errors.New("transcription.command must be set")
	}
	switch c.Transcription.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("transcription.device: unsupported value %q (want auto, cpu, or cuda)", c.Transcription.Device)
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if c.Translation.TargetLanguage == "" {
		return errors.New("translation.target_language must be set")
	}
	if c.Translation.Enabled && c.Translation.Command == "" {
		return errors.New("translation.command must be set when translation.enabled is true")
	}
	return nil
}

func (c *Config) validateSynthesis() error {
	if c.Synthesis.Enabled && c.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when synthesis.enabled is true")
	}
	return nil
}

func (c *Config) validateMix() error {
	if c.Mix.BackgroundVolume < 0 || c.Mix.BackgroundVolume > 1 {
		return errors.New("mix.background_volume must be between 0 and 1")
	}
	if c.Mix.VoiceVolume < 0 || c.Mix.VoiceVolume > 1 {
		return errors.New("mix.voice_volume must be between 0 and 1")
	}
	if c.Mix.Enabled && !c.Synthesis.Enabled {
		return errors.New("mix.enabled requires synthesis.enabled")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Fingerprint {
	case "weak", "content":
		return nil
	default:
		return fmt.Errorf("cache.fingerprint: unsupported value %q (want weak or content)", c.Cache.Fingerprint)
	}
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
