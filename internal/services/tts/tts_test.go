package tts_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gopxl/beep"

	"subflow/internal/audio"
	"subflow/internal/engines"
	"subflow/internal/services"
	"subflow/internal/services/tts"
)

func writingRunner(samples int) services.CommandRunner {
	return func(_ context.Context, _ io.Reader, _ string, args ...string) ([]byte, error) {
		dest := args[len(args)-1]
		format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
		return nil, audio.WriteWAV(dest, audio.Constant(samples, 0.1), format)
	}
}

func TestSynthesizeReportsDuration(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "clips", "0001.wav")
	var gotArgs []string
	runner := writingRunner(16000)
	svc := tts.NewService(tts.Config{Command: "subflow-tts", Speaker: "xenia", SampleRate: 8000}).
		WithCommandRunner(func(ctx context.Context, in io.Reader, name string, args ...string) ([]byte, error) {
			gotArgs = args
			return runner(ctx, in, name, args...)
		})

	clip, err := svc.Synthesize(context.Background(), "Привет", dest)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Path != dest || clip.Duration != 2.0 {
		t.Fatalf("clip = %#v", clip)
	}
	if !slices.Contains(gotArgs, "xenia") || !slices.Contains(gotArgs, "8000") {
		t.Fatalf("args = %v", gotArgs)
	}
}

func TestSynthesizeNoAudio(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		text   string
		runner services.CommandRunner
	}{
		{"blank text", " ", writingRunner(10)},
		{"no file written", "hi", func(context.Context, io.Reader, string, ...string) ([]byte, error) { return nil, nil }},
		{"empty file", "hi", func(_ context.Context, _ io.Reader, _ string, args ...string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], nil, 0o644)
		}},
		{"zero samples", "hi", writingRunner(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(dir, tt.name, "clip.wav")
			_, err := tts.NewService(tts.Config{Command: "x"}).WithCommandRunner(tt.runner).
				Synthesize(context.Background(), tt.text, dest)
			if !errors.Is(err, engines.ErrNoAudio) {
				t.Fatalf("err = %v, want ErrNoAudio", err)
			}
		})
	}
}

func TestSynthesizeCommandFailure(t *testing.T) {
	_, err := tts.NewService(tts.Config{Command: "x"}).
		WithCommandRunner(func(context.Context, io.Reader, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		}).
		Synthesize(context.Background(), "hi", filepath.Join(t.TempDir(), "c.wav"))
	if !errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("err = %v", err)
	}
}
