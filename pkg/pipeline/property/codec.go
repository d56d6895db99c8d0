package property

// Codec is the pure decode/encode pair for one PropertyKind, per spec.md
// §4.3. Implementations must be side-effect free: no network I/O, no
// wall-clock reads beyond what's needed to normalize an explicit date
// value already present in the input.
type Codec interface {
	// Decode converts a store-side Value into a plain Go value.
	Decode(v Value) (any, error)
	// Encode converts a plain Go value into a store-side Value, validating
	// against the schema entry (choice sets, relation targets, etc).
	Encode(name string, plain any, schema SchemaEntry) (Value, error)
}

// registry maps each Kind to its codec. Built once in init() — an unknown
// kind reaching Decode/Encode at runtime is a startup-time wiring bug
// (spec.md §9: "unknown kinds are a compile-time or startup-time error,
// never a runtime branch"), not a recoverable runtime condition.
var registry map[Kind]Codec

func init() {
	registry = map[Kind]Codec{
		KindTitle:       textCodec{titleKind: true},
		KindRichText:    textCodec{titleKind: false},
		KindNumber:      numberCodec{},
		KindSelect:      selectCodec{multi: false},
		KindMultiSelect: selectCodec{multi: true},
		KindDate:        dateCodec{},
		KindCheckbox:    checkboxCodec{},
		KindURL:         urlCodec{},
		KindEmail:       emailCodec{},
		KindPhone:       phoneCodec{},
		KindPeople:      peopleCodec{},
		KindFiles:       filesCodec{},
		KindRelation:    relationCodec{},
		KindFormula:     readOnlyCodec{kind: KindFormula},
		KindRollup:      readOnlyCodec{kind: KindRollup},
	}
	for k := range validKinds {
		if _, ok := registry[k]; !ok {
			panic("property: kind " + string(k) + " has no registered codec")
		}
	}
}

// Decode looks up the codec for v.Kind and decodes it. Returns a
// CodecError if the kind is unrecognized.
func Decode(name string, v Value) (any, error) {
	codec, ok := registry[v.Kind]
	if !ok {
		return nil, newCodecError(name, v.Kind, "no codec registered for kind", nil)
	}
	return codec.Decode(v)
}

// Encode looks up the codec for schema.Kind and encodes plain into a
// store-side Value.
func Encode(name string, plain any, schema SchemaEntry) (Value, error) {
	codec, ok := registry[schema.Kind]
	if !ok {
		return Value{}, newCodecError(name, schema.Kind, "no codec registered for kind", plain)
	}
	return codec.Encode(name, plain, schema)
}
