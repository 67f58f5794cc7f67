// Package pipeline turns a user prompt into a stored image: it sanitizes and
// enriches the prompt, calls the image model with rewording on empty
// responses, and persists the result.
package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sanitizer rewrites user text before it is sent to the image model.
type Sanitizer interface {
	Sanitize(text string) string
}

type wordRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func rule(words, replacement string) wordRule {
	return wordRule{
		pattern:     regexp.MustCompile(`(?i)\b(?:` + words + `)\b`),
		replacement: replacement,
	}
}

// Rules run in order. No replacement may itself match a rule.
var defaultRules = []wordRule{
	rule(`machine[\s-]?guns?|assault rifles?`, "confetti cannon"),
	rule(`guns?|pistols?|rifles?|firearms?|revolvers?`, "bubble wand"),
	rule(`knives|knife|swords?|daggers?|blades?`, "feather"),
	rule(`bombs?|grenades?|explosives?|missiles?`, "balloon"),
	rule(`blood(?:y)?|gore|gory`, ""),
	rule(`kill(?:s|ed|ing)?|murder(?:s|ed|ing)?|shoot(?:s|ing)?|shot`, "tickle"),
	rule(`war(?:s)?|battle(?:s)?`, "parade"),
	rule(`dead|death|corpses?`, "sleepy"),
	rule(`naked|nude|nudity`, ""),
}

// WordSanitizer replaces unsafe words with harmless ones.
type WordSanitizer struct {
	rules []wordRule
}

func NewWordSanitizer() *WordSanitizer {
	return &WordSanitizer{rules: defaultRules}
}

func (s *WordSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	out := norm.NFKC.String(text)
	for _, r := range s.rules {
		out = r.pattern.ReplaceAllLiteralString(out, r.replacement)
	}
	return strings.Join(strings.Fields(out), " ")
}

// PassthroughSanitizer leaves text unchanged.
type PassthroughSanitizer struct{}

func (PassthroughSanitizer) Sanitize(text string) string { return text }

// NewSanitizer returns the sanitizer named by strategy ("words" or "none").
func NewSanitizer(strategy string) Sanitizer {
	if strategy == "none" {
		return PassthroughSanitizer{}
	}
	return NewWordSanitizer()
}

var (
	_ Sanitizer = (*WordSanitizer)(nil)
	_ Sanitizer = PassthroughSanitizer{}
)
