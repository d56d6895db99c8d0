package property

import "strings"

// maxTextLength is the truncation limit for title/rich_text payloads
// (spec.md §4.3).
const maxTextLength = 2000

// textCodec implements title and rich_text, which share every rule except
// that title additionally participates in the "exactly one title
// property per page" page invariant (enforced by the store layer, not
// here).
type textCodec struct {
	titleKind bool
}

func (c textCodec) kind() Kind {
	if c.titleKind {
		return KindTitle
	}
	return KindRichText
}

// Decode returns the first segment's plain text, or "" for an empty
// segment array.
func (c textCodec) Decode(v Value) (any, error) {
	segments, ok := v.Payload.([]string)
	if !ok || len(segments) == 0 {
		return "", nil
	}
	return segments[0], nil
}

// Encode truncates to maxTextLength characters; nil/empty plain text
// encodes to an empty payload.
func (c textCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: c.kind(), Payload: []string{}}, nil
	}
	s, ok := plain.(string)
	if !ok {
		return Value{}, newCodecError(name, c.kind(), "expected string", plain)
	}
	if s == "" {
		return Value{Kind: c.kind(), Payload: []string{}}, nil
	}
	runes := []rune(s)
	if len(runes) > maxTextLength {
		s = string(runes[:maxTextLength])
	}
	return Value{Kind: c.kind(), Payload: []string{s}}, nil
}

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the ends. The codec round-trip does not call it, and the
// similarity matcher normalizes titles with its own normalizeTitle.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
