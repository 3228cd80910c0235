package services_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"subflow/internal/services"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs []string
	}{
		{"argos-translate", "argos-translate", []string{}},
		{"  python3 -m subflow_tts ", "python3", []string{"-m", "subflow_tts"}},
		{"", "", nil},
	}
	for _, tt := range tests {
		name, args := services.SplitCommand(tt.in)
		if name != tt.wantName {
			t.Errorf("SplitCommand(%q) name = %q, want %q", tt.in, name, tt.wantName)
		}
		if len(args) != len(tt.wantArgs) || (len(args) > 0 && !reflect.DeepEqual(args, tt.wantArgs)) {
			t.Errorf("SplitCommand(%q) args = %#v, want %#v", tt.in, args, tt.wantArgs)
		}
	}
}

func TestTail(t *testing.T) {
	if got := services.Tail("  short  ", 10); got != "short" {
		t.Fatalf("Tail = %q", got)
	}
	if got := services.Tail(strings.Repeat("a", 20)+"end", 3); got != "…end" {
		t.Fatalf("Tail = %q", got)
	}
}

func TestRunCommandCapturesStdoutAndStderr(t *testing.T) {
	out, err := services.RunCommand(context.Background(), strings.NewReader("hello"), "cat")
	if err != nil {
		t.Skipf("cat unavailable: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("stdout = %q", out)
	}

	_, err = services.RunCommand(context.Background(), nil, "sh", "-c", "echo broken >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}
