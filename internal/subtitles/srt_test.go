package subtitles_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"subflow/internal/subtitles"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{2.3, "00:00:02,300"},
		{61.9999, "00:01:01,999"},
		{3599.0009, "00:59:59,000"},
		{3600, "01:00:00,000"},
		{100 * 3600, "100:00:00,000"},
		{-4, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := subtitles.FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00:01,500", 1.5, false},
		{"00:00:01.500", 1.5, false},
		{"01:02:03,004", 3723.004, false},
		{"00:00:01,5", 1.5, false},
		{"123:00:00,000", 123 * 3600, false},
		{"00:61:00,000", 0, true},
		{"00:00:01", 0, true},
		{"aa:00:01,000", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := subtitles.ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTimestamp(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	segs := []subtitles.Segment{
		{Index: 1, Start: 0, End: 2.5, Text: "Hello"},
		{Index: 2, Start: 2.5, End: 4.1, Text: "two\nlines"},
		{Index: 3, Start: 10.25, End: 3725.125, Text: "Привет, мир"},
	}
	got := subtitles.Parse(subtitles.Format(segs))
	if !reflect.DeepEqual(got, segs) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, segs)
	}
}

func TestRoundTripAfterRenumber(t *testing.T) {
	segs := subtitles.Renumber([]subtitles.Segment{
		{Index: 7, Start: 1, End: 2, Text: "a"},
		{Index: 3, Start: 3, End: 4, Text: "b"},
	})
	if segs[0].Index != 1 || segs[1].Index != 2 {
		t.Fatalf("renumber failed: %#v", segs)
	}
	if got := subtitles.Parse(subtitles.Format(segs)); !reflect.DeepEqual(got, segs) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestFormatTruncatesMilliseconds(t *testing.T) {
	out := subtitles.Format([]subtitles.Segment{{Index: 1, Start: 0.0019, End: 1.9999, Text: "x"}})
	want := "1\n00:00:00,001 --> 00:00:01,999\nx\n"
	if out != want {
		t.Fatalf("Format = %q, want %q", out, want)
	}
}

const corrupt = "1\n00:00:00,000 --> 00:00:01,000\nfirst\n\n" +
	"not-a-number\n00:00:01,000 --> 00:00:02,000\nbad index\n\n" +
	"3\n00:00:02 -> 00:00:03\nbad time\n\n" +
	"4\n00:00:03,000 --> 00:00:04,000\n\n" +
	"5\r\n00:00:04,000 --> 00:00:05,000 X1:10 X2:20\r\nlast\r\n"

func TestParseSkipsMalformedBlocks(t *testing.T) {
	got := subtitles.Parse(corrupt)
	want := []subtitles.Segment{
		{Index: 1, Start: 0, End: 1, Text: "first"},
		{Index: 5, Start: 4, End: 5, Text: "last"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %#v, want %#v", got, want)
	}
}

func TestParseStrictRejectsMalformed(t *testing.T) {
	_, err := subtitles.ParseWithOptions(corrupt, subtitles.ParseOptions{Strict: true})
	if !errors.Is(err, subtitles.ErrMalformedBlock) {
		t.Fatalf("expected ErrMalformedBlock, got %v", err)
	}
}

func TestParseEmpty(t *testing.T) {
	if got := subtitles.Parse("  \n\n "); len(got) != 0 {
		t.Fatalf("expected no segments, got %#v", got)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "movie.srt")
	segs := []subtitles.Segment{{Index: 1, Start: 0, End: 2.5, Text: "Hello"}}
	if err := subtitles.WriteFile(path, segs); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := subtitles.ReadFile(path, subtitles.ParseOptions{})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(got, segs) {
		t.Fatalf("ReadFile = %#v", got)
	}
}

func TestReadFileMissingIsError(t *testing.T) {
	_, err := subtitles.ReadFile(filepath.Join(t.TempDir(), "missing.srt"), subtitles.ParseOptions{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestPathForMedia(t *testing.T) {
	tests := []struct {
		media, dir, lang, want string
	}{
		{"/v/movie.mkv", "", "", "/v/movie.srt"},
		{"/v/movie.mkv", "", "ru", "/v/movie.ru.srt"},
		{"/v/movie.final.mp4", "/out", "de", "/out/movie.final.de.srt"},
		{"/v/noext", "", "", "/v/noext.srt"},
	}
	for _, tt := range tests {
		if got := subtitles.PathForMedia(tt.media, tt.dir, tt.lang); got != tt.want {
			t.Errorf("PathForMedia(%q,%q,%q) = %q, want %q", tt.media, tt.dir, tt.lang, got, tt.want)
		}
	}
}

func TestSegmentCopies(t *testing.T) {
	orig := subtitles.Segment{Index: 1, Start: 0, End: 2.5, Text: "Hello"}
	translated := orig.WithTranslation("Привет")
	voiced := translated.WithAudio("/tmp/1.wav")

	if orig.TranslatedText != "" || orig.AudioFile != "" {
		t.Fatal("original segment mutated")
	}
	if translated.AudioFile != "" {
		t.Fatal("translation copy mutated by WithAudio")
	}
	if voiced.DisplayText() != "Привет" || orig.DisplayText() != "Hello" {
		t.Fatal("unexpected display text")
	}
	if voiced.Slot() != 2.5 {
		t.Fatalf("Slot = %v", voiced.Slot())
	}
	tr := subtitles.Translated([]subtitles.Segment{voiced})
	if tr[0].Text != "Привет" || tr[0].AudioFile != "" {
		t.Fatalf("Translated = %#v", tr[0])
	}
}
