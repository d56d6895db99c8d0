// Package property translates between the remote document store's
// semi-structured page-property shapes and plain in-memory Go values, one
// pure Encode/Decode pair per PropertyKind (spec.md §4.3).
//
// Kinds are a closed set, built the way pkg/config/enums.go builds the
// teacher's configuration enums: a validity map plus a Valid() method, so
// an unrecognized kind is rejected the same way everywhere it appears
// rather than falling through a runtime type switch.
package property

// Kind is the closed set of property kinds a database schema may declare.
type Kind string

// Recognized property kinds.
const (
	KindTitle        Kind = "title"
	KindRichText     Kind = "rich_text"
	KindNumber       Kind = "number"
	KindSelect       Kind = "select"
	KindMultiSelect  Kind = "multi_select"
	KindDate         Kind = "date"
	KindCheckbox     Kind = "checkbox"
	KindURL          Kind = "url"
	KindEmail        Kind = "email"
	KindPhone        Kind = "phone"
	KindPeople       Kind = "people"
	KindFiles        Kind = "files"
	KindRelation     Kind = "relation"
	KindFormula      Kind = "formula" // read-only
	KindRollup       Kind = "rollup"  // read-only
)

var validKinds = map[Kind]struct{}{
	KindTitle: {}, KindRichText: {}, KindNumber: {}, KindSelect: {},
	KindMultiSelect: {}, KindDate: {}, KindCheckbox: {}, KindURL: {},
	KindEmail: {}, KindPhone: {}, KindPeople: {}, KindFiles: {},
	KindRelation: {}, KindFormula: {}, KindRollup: {},
}

// Valid reports whether k is one of the fifteen recognized property kinds.
func (k Kind) Valid() bool {
	_, ok := validKinds[k]
	return ok
}

// ReadOnly reports whether values of this kind may never be encoded
// (formula/rollup are computed server-side).
func (k Kind) ReadOnly() bool {
	return k == KindFormula || k == KindRollup
}

// SchemaEntry is a single database-schema declaration: a property's kind
// plus whatever kind-specific parameters it carries (select choice set,
// relation target database, etc).
type SchemaEntry struct {
	Kind             Kind
	Choices          []string // select / multi_select
	AllowNewOptions  bool     // select / multi_select
	RelationDatabase string   // relation
}

// Value is a store-side property payload: a kind tag plus its raw decoded
// representation. Page.Properties holds these; PropertyCodec converts
// to/from the plain Go values TranscriptProcessor works with.
type Value struct {
	Kind    Kind
	Payload any
}
