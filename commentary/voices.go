package commentary

import (
	"sort"
	"strings"
)

// DefaultVoiceKey is used when neither the guild nor the config names a known voice.
const DefaultVoiceKey = "lessac"

// Voice identifies a piper voice model: <locale>-<name>-<quality>.onnx.
type Voice struct {
	Locale  string
	Name    string
	Quality string
}

func (v Voice) Model() string { return v.Locale + "-" + v.Name + "-" + v.Quality }

var voices = map[string]Voice{
	"lessac":   {"en_US", "lessac", "medium"},
	"amy":      {"en_US", "amy", "medium"},
	"ryan":     {"en_US", "ryan", "high"},
	"joe":      {"en_US", "joe", "medium"},
	"kristin":  {"en_US", "kristin", "medium"},
	"libritts": {"en_US", "libritts_r", "medium"},
	"alan":     {"en_GB", "alan", "medium"},
	"jenny":    {"en_GB", "jenny_dioco", "medium"},
	"cori":     {"en_GB", "cori", "high"},
	"thorsten": {"de_DE", "thorsten", "medium"},
	"siwis":    {"fr_FR", "siwis", "medium"},
	"davefx":   {"es_ES", "davefx", "medium"},
}

// LookupVoice finds a voice by key, case-insensitively.
func LookupVoice(key string) (Voice, bool) {
	v, ok := voices[strings.ToLower(strings.TrimSpace(key))]
	return v, ok
}

// ResolveVoice returns key's voice, else fallback's, else the default voice.
func ResolveVoice(key, fallback string) Voice {
	if v, ok := LookupVoice(key); ok {
		return v
	}
	if v, ok := LookupVoice(fallback); ok {
		return v
	}
	return voices[DefaultVoiceKey]
}

// VoiceKeys lists the known keys in sorted order.
func VoiceKeys() []string {
	keys := make([]string, 0, len(voices))
	for k := range voices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
