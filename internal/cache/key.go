package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Operation names the cacheable stage that produced an artifact.
type Operation string

const (
	// OpSubtitle is the original-language subtitle track.
	OpSubtitle Operation = "subtitle"
	// OpTranslation is the target-language subtitle track.
	OpTranslation Operation = "translation"
)

// Key derives the cache key. Parameters are canonicalised by sorting names so
// map iteration order never affects the digest.
func Key(fingerprint string, op Operation, params map[string]string) string {
	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{':'})
	h.Write([]byte(fingerprint))
	h.Write([]byte{':'})
	h.Write(canonicalParams(params))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalParams(params map[string]string) []byte {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]string{name, params[name]})
	}
	// Marshalling a slice of string pairs cannot fail.
	data, _ := json.Marshal(pairs)
	return data
}
