package property

import "github.com/blackcore-intel/pipeline/pkg/pipeline/ssrf"

type emailCodec struct{}

func (emailCodec) Decode(v Value) (any, error) {
	s, _ := v.Payload.(string)
	return s, nil
}

func (emailCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: KindEmail, Payload: ""}, nil
	}
	s, ok := plain.(string)
	if !ok {
		return Value{}, newCodecError(name, KindEmail, "expected string", plain)
	}
	if s != "" && !ssrf.ValidEmail(s) {
		return Value{}, newCodecError(name, KindEmail, "not a valid email address", s)
	}
	return Value{Kind: KindEmail, Payload: s}, nil
}
