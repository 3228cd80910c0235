package api

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"subflow/internal/cache"
	"subflow/internal/config"
	"subflow/internal/dubbing"
	"subflow/internal/engines"
	"subflow/internal/history"
	"subflow/internal/logging"
	"subflow/internal/notifications"
	"subflow/internal/pipeline"
)

var (
	ErrCacheDisabled          = errors.New("artifact cache is disabled")
	ErrCacheDirNotConfigured  = errors.New("cache dir is not configured")
	ErrHistoryNotConfigured   = errors.New("history database path is not configured")
	ErrConfigurationIsMissing = errors.New("configuration is required")
)

// OpenCache validates config and loads the artifact cache index.
func OpenCache(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	if cfg == nil {
		return nil, ErrConfigurationIsMissing
	}
	if !cfg.Cache.Enabled {
		return nil, ErrCacheDisabled
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		return nil, ErrCacheDirNotConfigured
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return cache.Open(cfg.CacheIndexPath(), logger), nil
}

// OpenHistory opens the run history database.
func OpenHistory(cfg *config.Config) (*history.Store, error) {
	if cfg == nil {
		return nil, ErrConfigurationIsMissing
	}
	if strings.TrimSpace(cfg.Paths.HistoryDB) == "" {
		return nil, ErrHistoryNotConfigured
	}
	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// OrchestratorRequest carries what NewOrchestrator needs beyond config.
type OrchestratorRequest struct {
	Config  *config.Config
	Engines engines.Set
	// Cache may be nil to disable caching.
	Cache *cache.Store
	// History may be nil to skip recording.
	History pipeline.HistoryRecorder
	Logger  *slog.Logger
}

// NewOrchestrator builds a pipeline from config and the supplied engines.
func NewOrchestrator(req OrchestratorRequest) (*pipeline.Orchestrator, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, ErrConfigurationIsMissing
	}
	return pipeline.New(pipeline.Options{
		Engines:       req.Engines,
		Cache:         req.Cache,
		History:       req.History,
		Notifier:      notifications.NewService(cfg),
		Fingerprinter: cache.NewFingerprinter(cfg.Cache.Fingerprint),
		Mixer:         dubbing.NewMixer(req.Logger),
		WorkDir:       cfg.Paths.WorkDir,
		Params: pipeline.CacheParams{
			Transcription: cfg.TranscriptionParams(),
			Translation:   cfg.TranslationParams,
		},
		MixOptions: dubbing.Options{
			BackgroundVolume: cfg.Mix.BackgroundVolume,
			VoiceVolume:      cfg.Mix.VoiceVolume,
		},
		KeepClips:       cfg.Mix.KeepClips,
		StrictSubtitles: cfg.Subtitles.StrictParsing,
		DefaultTarget:   cfg.Translation.TargetLanguage,
		Logger:          req.Logger,
	})
}
