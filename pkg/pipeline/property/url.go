package property

import "net/url"

// urlCodec performs the syntactic half of the §4.4 SSRF rule set: parse,
// https-only scheme, max length. The resolved-host half (loopback/
// link-local/RFC1918 classification, which needs a DNS lookup and is
// therefore not a pure function) is enforced by the store client via
// pkg/pipeline/ssrf before any network I/O happens.
type urlCodec struct{}

func (urlCodec) Decode(v Value) (any, error) {
	s, _ := v.Payload.(string)
	return s, nil
}

func (urlCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{}, newCodecError(name, KindURL, "url must not be nil", plain)
	}
	s, ok := plain.(string)
	if !ok {
		return Value{}, newCodecError(name, KindURL, "expected string", plain)
	}
	if len(s) > maxURLLength {
		return Value{}, newCodecError(name, KindURL, "url exceeds maximum length", s)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return Value{}, newCodecError(name, KindURL, "malformed url", s)
	}
	if parsed.Scheme != "https" {
		return Value{}, newCodecError(name, KindURL, "only https urls are allowed", s)
	}
	return Value{Kind: KindURL, Payload: s}, nil
}

const maxURLLength = 2000
