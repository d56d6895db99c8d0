package property

import "time"

// DateValue is the plain representation of a date property: a point in
// time, or a range when End is non-nil. HasTime distinguishes a
// date-only value (decoded with no time component) from midnight UTC.
type DateValue struct {
	Start   time.Time
	End     *time.Time
	HasTime bool
}

type dateCodec struct{}

// Decode converts the storedDate payload back into a DateValue, carrying
// its HasTime flag over unchanged.
func (dateCodec) Decode(v Value) (any, error) {
	if v.Payload == nil {
		return nil, nil
	}
	stored, ok := v.Payload.(storedDate)
	if !ok {
		return nil, newCodecError("", KindDate, "malformed stored date payload", v.Payload)
	}
	dv := DateValue{Start: stored.Start, HasTime: stored.HasTime}
	if stored.End != nil {
		end := *stored.End
		dv.End = &end
	}
	return dv, nil
}

// storedDate is the normalized store-side representation: always UTC.
type storedDate struct {
	Start   time.Time
	End     *time.Time
	HasTime bool
}

// Encode normalizes Start/End to UTC time.Time values in a storedDate; a
// range requires End >= Start.
func (dateCodec) Encode(name string, plain any, _ SchemaEntry) (Value, error) {
	if plain == nil {
		return Value{Kind: KindDate, Payload: nil}, nil
	}
	dv, ok := plain.(DateValue)
	if !ok {
		return Value{}, newCodecError(name, KindDate, "expected a DateValue", plain)
	}
	stored := storedDate{Start: dv.Start.UTC(), HasTime: dv.HasTime}
	if dv.End != nil {
		if dv.End.Before(dv.Start) {
			return Value{}, newCodecError(name, KindDate, "range end must not precede start", plain)
		}
		end := dv.End.UTC()
		stored.End = &end
	}
	return Value{Kind: KindDate, Payload: stored}, nil
}
