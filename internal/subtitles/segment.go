package subtitles

import "strings"

// Segment is one recognised utterance. Times are in seconds.
type Segment struct {
	Index          int     `json:"index"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Text           string  `json:"text"`
	TranslatedText string  `json:"translatedText,omitempty"`
	AudioFile      string  `json:"audioFile,omitempty"`
}

// Slot returns the length of the segment's time slot.
func (s Segment) Slot() float64 {
	return s.End - s.Start
}

// WithTranslation returns a copy carrying the translated text.
func (s Segment) WithTranslation(text string) Segment {
	s.TranslatedText = text
	return s
}

// WithAudio returns a copy carrying a synthesized clip path.
func (s Segment) WithAudio(path string) Segment {
	s.AudioFile = path
	return s
}

// DisplayText is the translated text when present, the original otherwise.
func (s Segment) DisplayText() string {
	if strings.TrimSpace(s.TranslatedText) != "" {
		return s.TranslatedText
	}
	return s.Text
}

// Translated returns copies of segs whose Text is the display text. It is used
// to serialise the target-language track.
func Translated(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, seg := range segs {
		out[i] = Segment{Index: seg.Index, Start: seg.Start, End: seg.End, Text: seg.DisplayText()}
	}
	return out
}

// Renumber returns a copy of segs with indices 1..n in order.
func Renumber(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, seg := range segs {
		seg.Index = i + 1
		out[i] = seg
	}
	return out
}
