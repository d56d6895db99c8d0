package property

import "errors"

// selectCodec implements both select (single string-or-nil) and
// multi_select (set of strings); multi applies the single-select
// membership rule to each member and collapses duplicates (spec.md
// §4.3).
type selectCodec struct {
	multi bool
}

func (c selectCodec) kind() Kind {
	if c.multi {
		return KindMultiSelect
	}
	return KindSelect
}

func (c selectCodec) Decode(v Value) (any, error) {
	if c.multi {
		if v.Payload == nil {
			return []string{}, nil
		}
		return v.Payload, nil
	}
	if v.Payload == nil {
		return nil, nil
	}
	return v.Payload, nil
}

func (c selectCodec) Encode(name string, plain any, schema SchemaEntry) (Value, error) {
	if c.multi {
		return c.encodeMulti(name, plain, schema)
	}
	return c.encodeSingle(name, plain, schema)
}

func (c selectCodec) encodeSingle(name string, plain any, schema SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: KindSelect, Payload: nil}, nil
	}
	s, ok := plain.(string)
	if !ok {
		return Value{}, newCodecError(name, KindSelect, "expected string or nil", plain)
	}
	if err := c.checkMembership(name, s, schema); err != nil {
		return Value{}, err
	}
	return Value{Kind: KindSelect, Payload: s}, nil
}

func (c selectCodec) encodeMulti(name string, plain any, schema SchemaEntry) (Value, error) {
	values, err := toStringSlice(plain)
	if err != nil {
		return Value{}, newCodecError(name, KindMultiSelect, "expected a list/set of strings", plain)
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, s := range values {
		if err := c.checkMembership(name, s, schema); err != nil {
			return Value{}, err
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return Value{Kind: KindMultiSelect, Payload: out}, nil
}

func (c selectCodec) checkMembership(name, s string, schema SchemaEntry) error {
	if schema.AllowNewOptions {
		return nil
	}
	for _, choice := range schema.Choices {
		if choice == s {
			return nil
		}
	}
	return newCodecError(name, c.kind(), "value is not a member of the schema's choice set", s)
}

func toStringSlice(plain any) ([]string, error) {
	switch v := plain.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errNotString
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, errNotString
	}
}

var errNotString = errors.New("expected a collection of strings")
