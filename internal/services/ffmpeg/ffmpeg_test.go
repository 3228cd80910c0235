package ffmpeg_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"subflow/internal/services"
	"subflow/internal/services/ffmpeg"
)

func TestExtractBuildsArgsAndReturnsPath(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(media, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	workDir := filepath.Join(dir, "work")

	var gotName string
	var gotArgs []string
	ex := ffmpeg.New("").WithCommandRunner(func(_ context.Context, _ io.Reader, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
	})

	out, err := ex.Extract(context.Background(), media, workDir)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out != filepath.Join(workDir, "movie.wav") {
		t.Fatalf("output = %s", out)
	}
	if gotName != "ffmpeg" {
		t.Fatalf("binary = %s", gotName)
	}
	for _, want := range []string{"-i", media, "pcm_s16le", "48000"} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("args %v missing %q", gotArgs, want)
		}
	}
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(media, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		media  string
		runner services.CommandRunner
		want   error
	}{
		{
			name:  "missing input",
			media: filepath.Join(dir, "missing.mkv"),
			want:  services.ErrInputNotFound,
		},
		{
			name:  "tool failure",
			media: media,
			runner: func(context.Context, io.Reader, string, ...string) ([]byte, error) {
				return nil, errors.New("exit status 1")
			},
			want: services.ErrExtractionFailed,
		},
		{
			name:  "no output written",
			media: media,
			runner: func(context.Context, io.Reader, string, ...string) ([]byte, error) {
				return nil, nil
			},
			want: services.ErrExtractionFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := tt.runner
			if runner == nil {
				runner = func(context.Context, io.Reader, string, ...string) ([]byte, error) {
					t.Fatal("runner should not be called")
					return nil, nil
				}
			}
			_, err := ffmpeg.New("").WithCommandRunner(runner).Extract(context.Background(), tt.media, filepath.Join(dir, "work"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
