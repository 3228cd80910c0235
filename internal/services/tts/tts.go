// Package tts synthesizes voice-over clips through an external command.
//
// The command is invoked as `<command> --speaker S --sample-rate R --output
// PATH` with the text on stdin and must write a PCM WAV to PATH.
package tts

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"subflow/internal/audio"
	"subflow/internal/engines"
	"subflow/internal/services"
)

// Config selects the command and voice.
type Config struct {
	Command    string
	Speaker    string
	SampleRate int
}

// Service implements engines.Synthesizer.
type Service struct {
	cfg           Config
	commandRunner services.CommandRunner
}

// NewService creates a synthesis service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner services.CommandRunner) *Service {
	s.commandRunner = runner
	return s
}

// Prepare verifies the command can be found.
func (s *Service) Prepare(context.Context) error {
	if s.commandRunner != nil {
		return nil
	}
	name, _ := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return services.Wrap(services.ErrCapabilityUnavailable, "synthesizing", "prepare", "synthesis command not configured", nil)
	}
	if _, err := exec.LookPath(name); err != nil {
		return services.Wrap(services.ErrCapabilityUnavailable, "synthesizing", "prepare", "locate "+name, err)
	}
	return nil
}

// Synthesize renders text to destPath and reports the clip's natural length.
// A missing or empty output file yields engines.ErrNoAudio.
func (s *Service) Synthesize(ctx context.Context, text, destPath string) (engines.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return engines.Clip{}, engines.ErrNoAudio
	}
	name, args := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return engines.Clip{}, services.Wrap(services.ErrCapabilityUnavailable, "synthesizing", "run", "synthesis command not configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return engines.Clip{}, services.Wrap(services.ErrStageFailure, "synthesizing", "ensure dir", destPath, err)
	}
	if s.cfg.Speaker != "" {
		args = append(args, "--speaker", s.cfg.Speaker)
	}
	if s.cfg.SampleRate > 0 {
		args = append(args, "--sample-rate", strconv.Itoa(s.cfg.SampleRate))
	}
	args = append(args, "--output", destPath)

	runner := s.commandRunner
	if runner == nil {
		runner = services.RunCommand
	}
	if _, err := runner(ctx, strings.NewReader(text), name, args...); err != nil {
		return engines.Clip{}, services.Wrap(services.ErrStageFailure, "synthesizing", name, filepath.Base(destPath), err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return engines.Clip{}, engines.ErrNoAudio
		}
		return engines.Clip{}, services.Wrap(services.ErrStageFailure, "synthesizing", "stat clip", destPath, err)
	}
	if info.Size() == 0 {
		return engines.Clip{}, engines.ErrNoAudio
	}
	probe, err := audio.Probe(destPath)
	if err != nil {
		return engines.Clip{}, services.Wrap(services.ErrStageFailure, "synthesizing", "probe clip", destPath, err)
	}
	if probe.Samples == 0 {
		return engines.Clip{}, engines.ErrNoAudio
	}
	return engines.Clip{Path: destPath, Duration: probe.Seconds()}, nil
}
