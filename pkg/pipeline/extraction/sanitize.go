package extraction

import (
	"regexp"
	"strings"
)

// separator mirrors pkg/agent/prompt/templates.go's use of a fixed
// delimiter constant to keep structural prompt sections unambiguous —
// transcript text is always interpolated between a pair of these, never
// concatenated directly into instruction text.
const separator = "═══════════════════════════════════════════"

// roleDelimiterPattern matches sequences resembling a role header at the
// start of a line — the injection vector SanitizeForPrompt closes off.
var roleDelimiterPattern = regexp.MustCompile(`(?im)^\s*(system|assistant|user)\s*:`)

// fencePattern matches a triple-backtick fence that claims a role label,
// e.g. "```system".
var fencePattern = regexp.MustCompile("(?i)```\\s*(system|assistant|user)\\b")

// lineStartMarkerPattern matches the literal sequences "###" or "</s>" at
// the start of a line, both of which some model families treat as
// structural delimiters.
var lineStartMarkerPattern = regexp.MustCompile(`(?m)^(###|</s>)`)

// SanitizeForPrompt strips/escapes sequences resembling role delimiters
// before transcript text is interpolated into the extraction prompt
// (spec.md §4.5 input-as-data containment). It never rejects input —
// only neutralizes the specific patterns that could let transcript text
// masquerade as a system or assistant turn.
func SanitizeForPrompt(text string) string {
	out := roleDelimiterPattern.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Replace(m, ":", " :", 1)
	})
	out = fencePattern.ReplaceAllString(out, "``` $1")
	out = lineStartMarkerPattern.ReplaceAllString(out, "\\$1")
	return out
}

// WrapTranscript wraps sanitized transcript text between separator lines
// so the surrounding prompt template can unambiguously identify where
// untrusted data begins and ends.
func WrapTranscript(text string) string {
	var b strings.Builder
	b.WriteString(separator)
	b.WriteString("\n")
	b.WriteString(SanitizeForPrompt(text))
	b.WriteString("\n")
	b.WriteString(separator)
	return b.String()
}
