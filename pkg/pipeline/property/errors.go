package property

import "fmt"

// CodecError carries the context spec.md §4.3 requires on every codec
// failure: which property and kind were involved, why, and a redacted
// view of the value that triggered it. It never escapes an encode/decode
// path as a bare error — callers type-assert it into a Validation error.
type CodecError struct {
	PropertyName   string
	Kind           Kind
	Reason         string
	OffendingValue string // redacted if the original string was > 64 chars
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("property %q (%s): %s", e.PropertyName, e.Kind, e.Reason)
}

func newCodecError(name string, kind Kind, reason string, offending any) *CodecError {
	return &CodecError{
		PropertyName:   name,
		Kind:           kind,
		Reason:         reason,
		OffendingValue: redactOffending(offending),
	}
}

// redactOffending renders offending as a string, truncating anything over
// 64 characters so codec errors never leak large payloads (spec.md §4.3).
func redactOffending(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > 64 {
		return s[:64] + "...(redacted)"
	}
	return s
}
