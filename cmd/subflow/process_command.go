package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"subflow/internal/logging"
	"subflow/internal/pipeline"
)

type processOptions struct {
	translate   bool
	noTranslate bool
	tts         bool
	mix         bool
	targetLang  string
	outputDir   string
	noCache     bool
	reportPath  string
	copyPath    bool
	jsonOutput  bool
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process <media>",
		Short: "Generate subtitles (and optionally a dubbed track) for a media file",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("provide the path to one media file. Example: subflow process /path/to/video.mkv\nRun subflow process --help for more details")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := ctx.logger(cfg)
			if err != nil {
				return err
			}

			req := pipeline.Request{
				MediaPath:      strings.TrimSpace(args[0]),
				Translate:      cfg.Translation.Enabled,
				Synthesize:     cfg.Synthesis.Enabled,
				Mix:            cfg.Mix.Enabled && cfg.Synthesis.Enabled,
				TargetLanguage: strings.TrimSpace(opts.targetLang),
				OutputDir:      strings.TrimSpace(opts.outputDir),
				NoCache:        opts.noCache,
			}
			if opts.translate || req.TargetLanguage != "" {
				req.Translate = true
			}
			if opts.noTranslate {
				req.Translate = false
			}
			if opts.tts {
				req.Synthesize = true
			}
			if opts.mix {
				req.Mix = true
				req.Synthesize = true
			}
			// the optional engines are only built when their sections are
			// enabled, so flags turn the sections on for this invocation
			if req.Translate {
				cfg.Translation.Enabled = true
			}
			if req.Synthesize {
				cfg.Synthesis.Enabled = true
			}

			handle, err := ctx.openPipeline(cfg, logger, !opts.noCache)
			if err != nil {
				return err
			}
			defer handle.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			display := newProgressDisplay(cmd.OutOrStdout(), opts.jsonOutput)
			run, err := handle.orchestrator.Start(context.Background(), req, display)
			if err != nil {
				return err
			}
			go func() {
				select {
				case <-runCtx.Done():
					run.Cancel()
				case <-run.Done():
				}
			}()

			result, runErr := run.Wait()
			display.finish()

			if opts.reportPath != "" {
				if err := writeReport(opts.reportPath, result); err != nil {
					logging.WarnWithContext(logger, "failed to write run report", "report_write_failed",
						logging.Error(err),
						logging.String("path", opts.reportPath),
						logging.String(logging.FieldImpact, "run manifest not written"))
				}
			}
			if runErr != nil {
				return runErr
			}

			if opts.jsonOutput {
				return writeJSON(cmd, result)
			}
			printResult(cmd.OutOrStdout(), result)

			if opts.copyPath {
				target := result.TranslationPath
				if target == "" {
					target = result.SubtitlePath
				}
				if err := clipboard.WriteAll(target); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Clipboard unavailable: %v\n", err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to clipboard\n", target)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.translate, "translate", false, "Translate each segment (default from config)")
	cmd.Flags().BoolVar(&opts.noTranslate, "no-translate", false, "Skip translation even when enabled in config")
	cmd.Flags().BoolVar(&opts.tts, "tts", false, "Synthesize a voice clip per segment")
	cmd.Flags().BoolVar(&opts.mix, "mix", false, "Mix synthesized clips over the original audio (implies --tts)")
	cmd.Flags().StringVar(&opts.targetLang, "target-lang", "", "Target language for translation (implies --translate)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Directory for subtitle and audio outputs (default: alongside the media)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Ignore and do not update the artifact cache")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write a YAML run manifest to this file")
	cmd.Flags().BoolVar(&opts.copyPath, "copy", false, "Copy the translated subtitle path to the clipboard")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run result as JSON instead of text")
	cmd.MarkFlagsMutuallyExclusive("translate", "no-translate")
	return cmd
}
