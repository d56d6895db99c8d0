package property

import "math"

type numberCodec struct{}

func (numberCodec) Decode(v Value) (any, error) {
	if v.Payload == nil {
		return nil, nil
	}
	return v.Payload, nil
}

// Encode rejects NaN and ±Inf with a Validation error (spec.md §4.3).
func (numberCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: KindNumber, Payload: nil}, nil
	}
	n, ok := toFloat64(plain)
	if !ok {
		return Value{}, newCodecError(name, KindNumber, "expected a number", plain)
	}
	if math.IsNaN(n) {
		return Value{}, newCodecError(name, KindNumber, "NaN is not a valid number value", plain)
	}
	if math.IsInf(n, 0) {
		return Value{}, newCodecError(name, KindNumber, "±Inf is not a valid number value", plain)
	}
	return Value{Kind: KindNumber, Payload: n}, nil
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
