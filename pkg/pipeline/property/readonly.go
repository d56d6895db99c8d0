package property

// readOnlyCodec implements formula and rollup: decode yields the
// embedded typed value (whatever the store computed), encode always
// fails (spec.md §4.3: "Encoding forbidden ⇒ ValidationError").
type readOnlyCodec struct {
	kind Kind
}

func (c readOnlyCodec) Decode(v Value) (any, error) {
	return v.Payload, nil
}

func (c readOnlyCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	return Value{}, newCodecError(name, c.kind, "formula/rollup properties are read-only and cannot be encoded", plain)
}
