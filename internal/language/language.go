package language

import (
	"strings"
	"unicode"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Bibliographic ISO 639-2 codes and English names that x/text does not parse.
var aliases = map[string]string{
	"fre": "fr", "ger": "de", "chi": "zh", "dut": "nl", "cze": "cs",
	"gre": "el", "per": "fa", "rum": "ro", "slo": "sk", "wel": "cy",
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "japanese": "ja", "korean": "ko",
	"chinese": "zh", "russian": "ru", "arabic": "ar", "hindi": "hi",
	"dutch": "nl", "polish": "pl", "ukrainian": "uk", "turkish": "tr",
}

func parse(code string) (xlang.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "auto" || code == "und" {
		return xlang.Base{}, false
	}
	if alias, ok := aliases[code]; ok {
		code = alias
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return xlang.Base{}, false
	}
	base, conf := tag.Base()
	if conf == xlang.No {
		return xlang.Base{}, false
	}
	return base, true
}

// Normalize returns the shortest code for a language (ISO 639-1 when one
// exists). Unrecognised input and "auto" yield an empty string.
func Normalize(code string) string {
	base, ok := parse(code)
	if !ok {
		return ""
	}
	return base.String()
}

// ToISO3 returns the ISO 639-2/T code, or "und" when unrecognised.
func ToISO3(code string) string {
	base, ok := parse(code)
	if !ok {
		return "und"
	}
	return base.ISO3()
}

// Same reports whether two codes name the same language. Unknown codes match
// nothing, including themselves.
func Same(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return na != "" && na == nb
}

// DisplayName returns the English name of a language, "Unknown" for empty
// input, or the upper-cased input when unrecognised.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	base, ok := parse(code)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return base.String()
}

// Detect guesses the language of text from its script. Kana is checked before
// Han so Japanese with kanji is not reported as Chinese. Latin or unknown
// scripts default to English.
func Detect(text string) string {
	var han, cyrillic, hangul bool
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			return "ja"
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		case unicode.Is(unicode.Hangul, r):
			hangul = true
		case unicode.Is(unicode.Han, r):
			han = true
		}
	}
	switch {
	case cyrillic:
		return "ru"
	case hangul:
		return "ko"
	case han:
		return "zh"
	default:
		return "en"
	}
}
