package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subflow/internal/logging"
	"subflow/internal/preflight"
	"subflow/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if b := strings.TrimSpace(bind); b != "" {
				cfg.Server.Bind = b
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for _, result := range preflight.RunAll(runCtx, cfg) {
				if result.Passed {
					continue
				}
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", result.Name),
					logging.String("detail", result.Detail),
					logging.Bool("optional", result.Optional),
					logging.String(logging.FieldErrorHint, "run `subflow doctor` for the full report"),
					logging.String(logging.FieldImpact, "runs needing this check will fail or degrade"))
			}

			handle, err := ctx.openPipeline(cfg, logger, true)
			if err != nil {
				return err
			}
			defer handle.Close()

			opts := server.Options{
				Orchestrator: handle.orchestrator,
				Bind:         cfg.Server.Bind,
				EventBuffer:  cfg.Server.EventBuffer,
				AllowOrigins: cfg.Server.AllowOrigins,
				Token:        cfg.Server.Token,
				Logger:       logger,
			}
			if handle.history != nil {
				opts.History = handle.history
			}
			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			if err := srv.Run(runCtx); err != nil {
				return err
			}
			logger.Info("subflow server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from [server] bind)")
	return cmd
}
