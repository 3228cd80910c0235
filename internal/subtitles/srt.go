package subtitles

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedBlock is returned by strict parsing for the first block that
// cannot be decoded.
var ErrMalformedBlock = errors.New("malformed srt block")

// ParseOptions tunes SRT decoding.
type ParseOptions struct {
	// Strict reports malformed blocks as errors instead of skipping them.
	Strict bool
}

// Parse decodes SRT text, skipping malformed blocks.
func Parse(text string) []Segment {
	segs, _ := ParseWithOptions(text, ParseOptions{})
	return segs
}

// ParseWithOptions decodes SRT text. A block is malformed when it has fewer
// than three lines, a non-numeric index line, or an undecodable time line.
// Multi-line cue text is joined with newlines.
func ParseWithOptions(text string, opts ParseOptions) ([]Segment, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.TrimPrefix(normalized, "\ufeff")

	var segs []Segment
	for n, block := range splitBlocks(normalized) {
		seg, err := parseBlock(block)
		if err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("%w %d: %v", ErrMalformedBlock, n+1, err)
			}
			continue
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func splitBlocks(content string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func parseBlock(block string) (Segment, error) {
	lines := strings.Split(block, "\n")
	if len(lines) < 3 {
		return Segment{}, fmt.Errorf("expected at least 3 lines, got %d", len(lines))
	}
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Segment{}, fmt.Errorf("invalid index %q", lines[0])
	}
	start, end, err := parseTimeLine(lines[1])
	if err != nil {
		return Segment{}, err
	}
	return Segment{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(lines[2:], "\n"),
	}, nil
}

func parseTimeLine(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Trailing position hints such as "X1:100" follow the end stamp.
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("invalid time line %q", line)
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseTimestamp decodes HH:MM:SS,mmm into seconds. A period is accepted as
// the millisecond separator.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 || len(timeParts[1]) == 0 || len(timeParts[1]) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	// "1,5" means 500ms, as the fraction is positional.
	for i := len(timeParts[1]); i < 3; i++ {
		millis *= 10
	}
	total := int64(hours)*3_600_000 + int64(minutes)*60_000 + int64(seconds)*1000 + int64(millis)
	return float64(total) / 1000, nil
}

// FormatTimestamp encodes seconds as HH:MM:SS,mmm. The fractional second is
// truncated to whole milliseconds; negative values clamp to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	// The epsilon absorbs float error so 1.001 does not truncate to 1000ms.
	total := int64(math.Floor(seconds*1000 + 1e-6))
	hours := total / 3_600_000
	minutes := (total / 60_000) % 60
	secs := (total / 1000) % 60
	millis := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// Format encodes segments as SRT text using each segment's Index and Text.
func Format(segs []Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(seg.Index))
		b.WriteByte('\n')
		b.WriteString(FormatTimestamp(seg.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(seg.End))
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteByte('\n')
	}
	return b.String()
}
