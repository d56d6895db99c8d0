// Package redact scrubs secrets from ErrorRecord.context before it ever
// reaches a caller (spec.md §6: "context never contains secrets, raw API
// keys, or full URLs with credentials").
//
// Adapted from pkg/masking/pattern.go's compiled-pattern-table built at
// construction: where the teacher applies regex patterns to MCP tool
// output and alert payloads, this applies the same eagerly-compiled
// pattern set to outbound error context values.
package redact

import "regexp"

// compiledPattern pairs a name with its compiled regex and replacement,
// mirroring property.CompiledPattern in pkg/masking/pattern.go.
type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// builtinPatterns covers the secret shapes most likely to leak into error
// context from this pipeline's own collaborators: bearer tokens, API
// keys embedded in query strings, and credentialed URLs.
var builtinPatterns = []compiledPattern{
	{
		name:        "bearer_token",
		regex:       regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]{8,}`),
		replacement: "bearer [REDACTED]",
	},
	{
		name:        "api_key_query_param",
		regex:       regexp.MustCompile(`(?i)([?&](?:api[_-]?key|token|secret)=)[^&\s]+`),
		replacement: "${1}[REDACTED]",
	},
	{
		name:        "credentialed_url",
		regex:       regexp.MustCompile(`(https?://)[^/\s@]+:[^/\s@]+@`),
		replacement: "${1}[REDACTED]@",
	},
	{
		name:        "generic_secret_assignment",
		regex:       regexp.MustCompile(`(?i)(key|secret|password|token)\s*[:=]\s*['"]?[a-z0-9._\-]{8,}['"]?`),
		replacement: "${1}=[REDACTED]",
	},
}

// String applies every built-in pattern to s and returns the result.
// Fail-closed is not needed here (unlike the teacher's tool-output
// masking): a regex that fails to match simply leaves that portion of
// the string unchanged, never an error.
func String(s string) string {
	masked := s
	for _, p := range builtinPatterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

// Context redacts every value in a context map, returning a new map. Keys
// that themselves look sensitive (e.g. "password") are redacted wholesale
// regardless of whether a pattern matched their value.
func Context(ctx map[string]string) map[string]string {
	if ctx == nil {
		return nil
	}
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = String(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	switch key {
	case "api_key", "secret", "password", "token", "authorization", "bearer_token":
		return true
	default:
		return false
	}
}
