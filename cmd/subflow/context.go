package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subflow/internal/api"
	"subflow/internal/cache"
	"subflow/internal/config"
	"subflow/internal/engines"
	"subflow/internal/history"
	"subflow/internal/logging"
	"subflow/internal/pipeline"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

// buildEngines is replaced in tests.
var buildEngines = api.BuildEngines

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// pipelineHandle owns everything a command opened to build an orchestrator.
type pipelineHandle struct {
	orchestrator *pipeline.Orchestrator
	engines      engines.Set
	cache        *cache.Store
	history      *history.Store
}

func (h *pipelineHandle) Close() {
	if h == nil {
		return
	}
	if h.orchestrator != nil {
		h.orchestrator.Close()
	}
	_ = h.engines.Close()
	if h.history != nil {
		_ = h.history.Close()
	}
}

func (c *commandContext) openPipeline(cfg *config.Config, logger *slog.Logger, useCache bool) (*pipelineHandle, error) {
	handle := &pipelineHandle{engines: buildEngines(cfg)}

	if useCache {
		store, err := api.OpenCache(cfg, logger)
		switch {
		case err == nil:
			handle.cache = store
		case errors.Is(err, api.ErrCacheDisabled):
		default:
			return nil, err
		}
	}

	req := api.OrchestratorRequest{
		Config:  cfg,
		Engines: handle.engines,
		Cache:   handle.cache,
		Logger:  logger,
	}
	if store, err := api.OpenHistory(cfg); err == nil {
		handle.history = store
		req.History = store
	} else if !errors.Is(err, api.ErrHistoryNotConfigured) {
		logging.WarnWithContext(logger, "run history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this run will not appear in `subflow history`"))
	}

	orch, err := api.NewOrchestrator(req)
	if err != nil {
		handle.Close()
		return nil, err
	}
	handle.orchestrator = orch
	return handle, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
