package store

import (
	"encoding/json"
	"fmt"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/property"
)

// encodeProperties runs every plain value through property.Encode
// against its schema entry, rejecting unknown property names outright.
func encodeProperties(plain map[string]any, schema *models.DatabaseSchema) (map[string]property.Value, error) {
	out := make(map[string]property.Value, len(plain))
	for name, v := range plain {
		entry, ok := schema.Properties[name]
		if !ok {
			return nil, pipelineerr.Validation(fmt.Sprintf("unknown property %q for database %s", name, schema.DatabaseID), nil)
		}
		encoded, err := property.Encode(name, v, entry)
		if err != nil {
			return nil, pipelineerr.Validation(fmt.Sprintf("property %q failed to encode", name), err)
		}
		out[name] = encoded
	}
	return out, nil
}

// decodePage converts one wirePage into a models.Page, decoding its raw
// JSON property payloads against databaseSchema and failing structural
// validation up front (spec.md §4.4: "returned payloads are validated
// structurally before being returned").
func decodePage(wp wirePage, schema *models.DatabaseSchema) (*models.Page, error) {
	props := make(map[string]property.Value, len(wp.Properties))
	for name, raw := range wp.Properties {
		entry, ok := schema.Properties[name]
		if !ok {
			// Unknown properties on a returned page are tolerated — the
			// schema may have been extended server-side since our last
			// fetch — but they are only checked for well-formed JSON and
			// are left out of the decoded page.
			var anyVal any
			if err := json.Unmarshal(raw, &anyVal); err != nil {
				return nil, pipelineerr.Internal(fmt.Sprintf("page %s: malformed property %q", wp.ID, name), err)
			}
			continue
		}

		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, pipelineerr.Internal(fmt.Sprintf("page %s: malformed property %q", wp.ID, name), err)
		}
		props[name] = property.Value{Kind: entry.Kind, Payload: payload}
	}

	return &models.Page{
		ID:             wp.ID,
		DatabaseID:     wp.DatabaseID,
		Properties:     props,
		LastEditedTime: wp.LastEditedTime,
	}, nil
}
