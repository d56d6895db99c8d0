package property

type checkboxCodec struct{}

func (checkboxCodec) Decode(v Value) (any, error) {
	b, _ := v.Payload.(bool)
	return b, nil
}

// Encode maps nil to false (spec.md §4.3).
func (checkboxCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: KindCheckbox, Payload: false}, nil
	}
	b, ok := plain.(bool)
	if !ok {
		return Value{}, newCodecError(name, KindCheckbox, "expected bool", plain)
	}
	return Value{Kind: KindCheckbox, Payload: b}, nil
}
