// Package whisper runs an external speech recognition command and streams its
// segments as they are printed.
//
// The command receives the audio path and model options and writes JSON lines
// to stdout: an optional header {"duration":N,"language":"en"} followed by one
// {"start":s,"end":e,"text":t} object per recognised segment.
package whisper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strings"

	"subflow/internal/engines"
	"subflow/internal/services"
)

// Config captures the transcription settings forwarded to the command.
type Config struct {
	Command     string
	Model       string
	Language    string
	Device      string
	ComputeType string
}

// Stream is a started command: its stdout and a wait function reporting the
// exit status.
type Stream struct {
	Stdout io.ReadCloser
	Wait   func() error
}

// Starter launches the transcription command.
type Starter func(ctx context.Context, name string, args ...string) (*Stream, error)

// Service implements engines.Transcriber.
type Service struct {
	cfg     Config
	starter Starter
}

// NewService creates a transcription service.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithStarter replaces process creation (for testing).
func (s *Service) WithStarter(starter Starter) *Service {
	s.starter = starter
	return s
}

// Prepare verifies the command can be found.
func (s *Service) Prepare(context.Context) error {
	if s.starter != nil {
		return nil
	}
	name, _ := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return services.Wrap(services.ErrCapabilityUnavailable, "transcribing", "prepare", "transcription command not configured", nil)
	}
	if _, err := exec.LookPath(name); err != nil {
		return services.Wrap(services.ErrCapabilityUnavailable, "transcribing", "prepare", "locate "+name, err)
	}
	return nil
}

type header struct {
	Duration *float64 `json:"duration"`
	Language string   `json:"language"`
}

type line struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  string   `json:"text"`
}

// Transcribe starts the command and reads its header. The returned Segments
// must be ranged to completion or stopped early; either way the process is
// reaped.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (*engines.Transcription, error) {
	name, args := services.SplitCommand(s.cfg.Command)
	if name == "" {
		return nil, services.Wrap(services.ErrCapabilityUnavailable, "transcribing", "start", "transcription command not configured", nil)
	}
	args = append(args, s.buildArgs(audioPath)...)

	procCtx, cancel := context.WithCancel(ctx)
	starter := s.starter
	if starter == nil {
		starter = startProcess
	}
	stream, err := starter(procCtx, name, args...)
	if err != nil {
		cancel()
		return nil, services.Wrap(services.ErrStageFailure, "transcribing", "start", name, err)
	}

	scanner := bufio.NewScanner(stream.Stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := &engines.Transcription{Language: s.cfg.Language}
	var pending *engines.Utterance
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var h header
		if err := json.Unmarshal(raw, &h); err == nil && h.Duration != nil {
			result.Duration = *h.Duration
			if h.Language != "" {
				result.Language = h.Language
			}
			break
		}
		// Headerless output: the first line is already a segment.
		u, ok, err := decodeLine(raw)
		if err != nil {
			cancel()
			_ = stream.Stdout.Close()
			_ = stream.Wait()
			return nil, services.Wrap(services.ErrStageFailure, "transcribing", "decode", "first line", err)
		}
		if ok {
			pending = &u
		}
		break
	}

	result.Segments = func(yield func(engines.Utterance, error) bool) {
		defer cancel()
		stopped := false
		finish := func() error {
			if stopped {
				cancel()
			}
			_ = stream.Stdout.Close()
			err := stream.Wait()
			if stopped {
				return nil
			}
			if err != nil {
				return services.Wrap(services.ErrStageFailure, "transcribing", "wait", name, err)
			}
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				return services.Wrap(services.ErrStageFailure, "transcribing", "read", name, err)
			}
			return nil
		}

		if pending != nil && !yield(*pending, nil) {
			stopped = true
			_ = finish()
			return
		}
		for seg, err := range s.scan(scanner) {
			if err != nil {
				stopped = true
				_ = finish()
				yield(engines.Utterance{}, err)
				return
			}
			if !yield(seg, nil) {
				stopped = true
				_ = finish()
				return
			}
		}
		if err := finish(); err != nil {
			yield(engines.Utterance{}, err)
		}
	}
	return result, nil
}

func (s *Service) scan(scanner *bufio.Scanner) iter.Seq2[engines.Utterance, error] {
	return func(yield func(engines.Utterance, error) bool) {
		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			u, ok, err := decodeLine(raw)
			if err != nil {
				yield(engines.Utterance{}, services.Wrap(services.ErrStageFailure, "transcribing", "decode", "segment", err))
				return
			}
			if !ok {
				continue
			}
			if !yield(u, nil) {
				return
			}
		}
	}
}

// decodeLine parses one segment. Blank texts report ok=false.
func decodeLine(raw []byte) (engines.Utterance, bool, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return engines.Utterance{}, false, err
	}
	if l.Start == nil || l.End == nil {
		return engines.Utterance{}, false, fmt.Errorf("segment missing start or end: %s", raw)
	}
	text := strings.TrimSpace(l.Text)
	if text == "" {
		return engines.Utterance{}, false, nil
	}
	return engines.Utterance{Start: *l.Start, End: *l.End, Text: text}, true, nil
}

func (s *Service) buildArgs(audioPath string) []string {
	args := []string{audioPath}
	if s.cfg.Model != "" {
		args = append(args, "--model", s.cfg.Model)
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	if s.cfg.Device != "" {
		args = append(args, "--device", s.cfg.Device)
	}
	if s.cfg.ComputeType != "" && s.cfg.ComputeType != "default" {
		args = append(args, "--compute-type", s.cfg.ComputeType)
	}
	return args
}

func startProcess(ctx context.Context, name string, args ...string) (*Stream, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Stream{
		Stdout: stdout,
		Wait: func() error {
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("%w: %s", err, services.Tail(stderr.String(), 512))
			}
			return nil
		},
	}, nil
}
