package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"subflow/internal/logging"
	"subflow/internal/pipeline"
	"subflow/internal/subtitles"
)

// progressDisplay renders pipeline events on the terminal. On a TTY progress
// is a single rewriting line; otherwise sampled progress lines are printed.
type progressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	tty     bool
	quiet   bool
	drawn   bool
	sampler *logging.ProgressSampler
	width   int
}

func newProgressDisplay(out io.Writer, quiet bool) *progressDisplay {
	return &progressDisplay{
		out:     out,
		tty:     isTerminalWriter(out),
		quiet:   quiet,
		sampler: logging.NewProgressSampler(10),
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Emit implements pipeline.Sink.
func (d *progressDisplay) Emit(e pipeline.Event) {
	if d.quiet {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e.Type {
	case pipeline.EventProgress:
		d.progress(e)
	case pipeline.EventSegment:
		if e.Segment != nil {
			d.clearLine()
			fmt.Fprintln(d.out, formatSegmentLine(*e.Segment))
		}
	case pipeline.EventError:
		d.clearLine()
		fmt.Fprintf(d.out, "Failed (%s): %s\n", e.ErrorKind, e.Error)
	case pipeline.EventCancelled:
		d.clearLine()
		fmt.Fprintln(d.out, "Cancelled")
	}
}

func (d *progressDisplay) progress(e pipeline.Event) {
	line := fmt.Sprintf("%-12s %5.1f%%", e.Stage, e.Percent)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		line += "  " + msg
	}
	if !d.tty {
		if d.sampler.ShouldLog(string(e.Stage), e.Percent) {
			fmt.Fprintln(d.out, line)
		}
		return
	}
	pad := ""
	if n := d.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(d.out, "\r%s%s", line, pad)
	d.width = len(line)
	d.drawn = true
}

func (d *progressDisplay) clearLine() {
	if !d.drawn {
		return
	}
	fmt.Fprintf(d.out, "\r%s\r", strings.Repeat(" ", d.width))
	d.drawn = false
	d.width = 0
}

func (d *progressDisplay) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drawn {
		fmt.Fprintln(d.out)
		d.drawn = false
	}
}

func formatSegmentLine(seg subtitles.Segment) string {
	line := fmt.Sprintf("#%d %s --> %s  %s",
		seg.Index,
		subtitles.FormatTimestamp(seg.Start),
		subtitles.FormatTimestamp(seg.End),
		seg.Text)
	if seg.TranslatedText != "" && seg.TranslatedText != seg.Text {
		line += "\n    " + seg.TranslatedText
	}
	return line
}
