package property

import "github.com/blackcore-intel/pipeline/pkg/pipeline/ids"

type relationCodec struct{}

// Decode preserves the stored order (spec.md §4.3: "order preserved").
func (relationCodec) Decode(v Value) (any, error) {
	refs, _ := v.Payload.([]string)
	if refs == nil {
		return []string{}, nil
	}
	return refs, nil
}

func (relationCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	refs, err := toStringSlice(plain)
	if err != nil {
		return Value{}, newCodecError(name, KindRelation, "expected a list of page ids", plain)
	}
	for _, id := range refs {
		if !ids.ValidPageID(id) {
			return Value{}, newCodecError(name, KindRelation, "malformed page id", id)
		}
	}
	return Value{Kind: KindRelation, Payload: refs}, nil
}
