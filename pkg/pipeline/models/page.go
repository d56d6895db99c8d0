package models

import (
	"time"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/property"
)

// Page is a remote-store record addressed by an opaque id. Every page has
// exactly one title property, and every property name it carries must be
// declared by its database's schema (spec.md §3 invariant).
type Page struct {
	ID             string
	DatabaseID     string
	Properties     map[string]property.Value
	LastEditedTime time.Time
}

// TitleProperty returns the name of p's title property and its decoded
// plain-text value, or ("", "", false) if none is present — callers that
// rely on the "exactly one title property" invariant should treat false
// as a data-integrity bug upstream, not a normal miss.
func (p Page) TitleProperty() (name string, title string, ok bool) {
	for propName, v := range p.Properties {
		if v.Kind != property.KindTitle {
			continue
		}
		plain, err := property.Decode(propName, v)
		if err != nil {
			continue
		}
		s, _ := plain.(string)
		return propName, s, true
	}
	return "", "", false
}

// DatabaseSchema declares, per database, the property name → kind(+params)
// map consumed for codec dispatch and validation (spec.md §3).
type DatabaseSchema struct {
	DatabaseID string
	Properties map[string]property.SchemaEntry
}
