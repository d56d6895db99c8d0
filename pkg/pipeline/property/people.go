package property

import "github.com/blackcore-intel/pipeline/pkg/pipeline/ids"

// PersonRef is a single people-property member.
type PersonRef struct {
	ID string
}

type peopleCodec struct{}

func (peopleCodec) Decode(v Value) (any, error) {
	refs, _ := v.Payload.([]PersonRef)
	if refs == nil {
		return []PersonRef{}, nil
	}
	return refs, nil
}

func (peopleCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	refs, ok := plain.([]PersonRef)
	if !ok {
		if plain == nil {
			return Value{Kind: KindPeople, Payload: []PersonRef{}}, nil
		}
		return Value{}, newCodecError(name, KindPeople, "expected []PersonRef", plain)
	}
	for _, ref := range refs {
		if !ids.ValidOpaqueRef(ref.ID) {
			return Value{}, newCodecError(name, KindPeople, "malformed user reference id", ref.ID)
		}
	}
	return Value{Kind: KindPeople, Payload: refs}, nil
}
