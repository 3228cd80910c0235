package engines_test

import (
	"context"
	"errors"
	"testing"

	"subflow/internal/engines"
)

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func (c *closer) Translate(context.Context, string, string, string) (string, error) { return "", nil }

func (c *closer) Synthesize(context.Context, string, string) (engines.Clip, error) {
	return engines.Clip{}, nil
}

type preparer struct{ calls int }

func (p *preparer) Prepare(context.Context) error {
	p.calls++
	return nil
}

func TestSetCloseDeduplicates(t *testing.T) {
	shared := &closer{err: errors.New("boom")}
	set := engines.Set{Translator: shared, Synthesizer: shared}
	if err := set.Close(); err == nil || err.Error() != "boom" {
		t.Fatalf("Close err = %v, want boom", err)
	}
	if shared.closed != 1 {
		t.Fatalf("closed %d times, want 1", shared.closed)
	}
}

func TestPrepare(t *testing.T) {
	p := &preparer{}
	if err := engines.Prepare(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if p.calls != 1 {
		t.Fatalf("calls = %d", p.calls)
	}
	if err := engines.Prepare(context.Background(), struct{}{}); err != nil {
		t.Fatalf("non-preparer should be a no-op: %v", err)
	}
}

func TestUtterancesStopsEarly(t *testing.T) {
	items := []engines.Utterance{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	var got []string
	for u, err := range engines.Utterances(items) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, u.Text)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}
