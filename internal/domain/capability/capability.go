// Package capability classifies provider model identifiers by feature and
// ranks them by the version number embedded in their names.
package capability

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
)

const patternCacheSize = 512

// Rule is the classification rule for one feature. An identifier belongs to
// the feature when it matches at least one Include pattern and no Exclude
// pattern.
type Rule struct {
	Include []string
	Exclude []string
	// Prefix selects the family ranked by HighestVersioned when inferring the
	// feature's default model.
	Prefix string
	// Fallback is the default model when the catalog offers nothing usable.
	Fallback string
}

// Rules holds the classification table for the official provider's naming
// scheme.
var Rules = map[model.Feature]Rule{
	model.FeatureChat: {
		Include: []string{`^gpt-`, `^o\d`, `^chatgpt-`},
		Exclude: []string{
			`transcribe`, `tts`, `realtime`, `audio`, `image`, `search`,
			`embedding`, `dall-e`, `whisper`, `moderation`, `instruct`,
		},
		Prefix:   "gpt-",
		Fallback: "gpt-4o",
	},
	model.FeatureImage: {
		Include:  []string{`^gpt-image-`, `^dall-e-`},
		Prefix:   "gpt-image-",
		Fallback: "gpt-image-1",
	},
	model.FeatureSpeech: {
		Include:  []string{`^tts-`, `-tts`},
		Prefix:   "gpt-",
		Fallback: "gpt-4o-mini-tts",
	},
	model.FeatureTranscription: {
		Include:  []string{`^whisper-`, `transcribe`},
		Prefix:   "gpt-",
		Fallback: "gpt-4o-transcribe",
	},
}

// compiled holds a compiled pattern, or nil for a pattern that failed to
// compile. Failures are cached too so a bad pattern is only parsed once.
type compiled struct {
	re *regexp.Regexp
}

var patternCache *lru.Cache[string, compiled]

func init() {
	c, err := lru.New[string, compiled](patternCacheSize)
	if err != nil {
		panic(err)
	}
	patternCache = c
}

func compile(pattern string) *regexp.Regexp {
	if c, ok := patternCache.Get(pattern); ok {
		return c.re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	patternCache.Add(pattern, compiled{re: re})
	return re
}

// Matches reports whether id matches at least one of patterns. Matching is
// case-insensitive and unanchored unless a pattern anchors itself. Malformed
// patterns never match.
func Matches(id string, patterns []string) bool {
	for _, p := range patterns {
		re := compile(p)
		if re != nil && re.MatchString(id) {
			return true
		}
	}
	return false
}

func (r Rule) accepts(id string) bool {
	return Matches(id, r.Include) && !Matches(id, r.Exclude)
}

// Supports reports whether id belongs to the feature's capability subset.
func Supports(feature model.Feature, id string) bool {
	rule, ok := Rules[feature]
	if !ok {
		return false
	}
	return rule.accepts(id)
}

// IsChatCapable reports whether id is a chat model. Exclusion patterns win
// over inclusion patterns.
func IsChatCapable(id string) bool {
	return Supports(model.FeatureChat, id)
}

// IsImageCapable reports whether id is an image generation model.
func IsImageCapable(id string) bool {
	return Supports(model.FeatureImage, id)
}

// IsSpeechCapable reports whether id is a text-to-speech model.
func IsSpeechCapable(id string) bool {
	return Supports(model.FeatureSpeech, id)
}

// IsTranscriptionCapable reports whether id is a speech-to-text model.
func IsTranscriptionCapable(id string) bool {
	return Supports(model.FeatureTranscription, id)
}

// Filter returns the identifiers supporting feature, preserving order.
func Filter(ids []string, feature model.Feature) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if Supports(feature, id) {
			out = append(out, id)
		}
	}
	return out
}
