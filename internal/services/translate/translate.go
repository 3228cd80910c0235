// Package translate translates subtitle text one segment at a time through an
// external command such as argos-translate.
//
// The command is invoked as `<command> --from <src> --to <dst>` with the text
// on stdin and must print the translation on stdout.
package translate

import (
	"context"
	"os/exec"
	"strings"

	"subflow/internal/language"
	"subflow/internal/services"
)

// Config selects the command and language pair.
type Config struct {
	Command string
	// SourceLanguage is used when the caller has no hint. "auto" or empty
	// enables script-based detection.
	SourceLanguage string
	// TargetLanguage is used when a call names no target.
	TargetLanguage string
}

// Service implements engines.Translator.
type Service struct {
	cfg           Config
	commandRunner services.CommandRunner
}

// NewService creates a translation service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner services.CommandRunner) *Service {
	s.commandRunner = runner
	return s
}

// Target returns the normalised default target language.
func (s *Service) Target() string {
	return language.Normalize(s.cfg.TargetLanguage)
}

// Prepare verifies the command can be found.
func (s *Service) Prepare(context.Context) error {
	if s.commandRunner != nil {
		return nil
	}
	name, _ := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return services.Wrap(services.ErrCapabilityUnavailable, "translating", "prepare", "translation command not configured", nil)
	}
	if _, err := exec.LookPath(name); err != nil {
		return services.Wrap(services.ErrCapabilityUnavailable, "translating", "prepare", "locate "+name, err)
	}
	return nil
}

// SourceFor resolves the source language for text: the hint, then the
// configured source, then script detection.
func (s *Service) SourceFor(text, hint string) string {
	if src := language.Normalize(hint); src != "" {
		return src
	}
	if src := language.Normalize(s.cfg.SourceLanguage); src != "" {
		return src
	}
	return language.Detect(text)
}

// Translate returns text in targetLang, or the configured target when
// targetLang is empty. Text already in the target language, and blank text,
// is returned unchanged without running the command.
func (s *Service) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	target := language.Normalize(targetLang)
	if target == "" {
		target = s.Target()
	}
	if target == "" {
		return text, nil
	}
	source := s.SourceFor(text, sourceLang)
	if language.Same(source, target) {
		return text, nil
	}

	name, args := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return "", services.Wrap(services.ErrCapabilityUnavailable, "translating", "run", "translation command not configured", nil)
	}
	args = append(args, "--from", source, "--to", target)
	runner := s.commandRunner
	if runner == nil {
		runner = services.RunCommand
	}
	out, err := runner(ctx, strings.NewReader(text), name, args...)
	if err != nil {
		return "", services.Wrap(services.ErrStageFailure, "translating", name, source+"->"+target, err)
	}
	translated := strings.TrimSpace(string(out))
	if translated == "" {
		return "", services.Wrap(services.ErrStageFailure, "translating", name, "empty translation", nil)
	}
	return translated, nil
}
