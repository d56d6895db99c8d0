package property

// FileRef is a single files-property member.
type FileRef struct {
	Name string
	URL  string
}

type filesCodec struct{}

func (filesCodec) Decode(v Value) (any, error) {
	refs, _ := v.Payload.([]FileRef)
	if refs == nil {
		return []FileRef{}, nil
	}
	return refs, nil
}

// Encode validates each member's URL per the url-property rule.
func (filesCodec) Encode(name string, plain any, schema SchemaEntry) (Value, error) {
	refs, ok := plain.([]FileRef)
	if !ok {
		if plain == nil {
			return Value{Kind: KindFiles, Payload: []FileRef{}}, nil
		}
		return Value{}, newCodecError(name, KindFiles, "expected []FileRef", plain)
	}
	urlSchema := SchemaEntry{Kind: KindURL}
	for _, ref := range refs {
		if _, err := (urlCodec{}).Encode(name, ref.URL, urlSchema); err != nil {
			return Value{}, newCodecError(name, KindFiles, "file has an invalid url: "+ref.Name, ref.URL)
		}
	}
	return Value{Kind: KindFiles, Payload: refs}, nil
}
