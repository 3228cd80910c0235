package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// CommandRunner executes name with args, feeding stdin when non-nil, and
// returns stdout. Adapters accept one so tests can substitute fakes.
type CommandRunner func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

// RunCommand is the default CommandRunner. Failures include the tail of
// stderr so the log line explains what the tool complained about.
func RunCommand(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, Tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

// SplitCommand splits a configured command line into binary and leading args.
func SplitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// Tail returns at most limit trailing bytes of s, trimmed.
func Tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit > 0 && len(s) > limit {
		s = "…" + s[len(s)-limit:]
	}
	return s
}
