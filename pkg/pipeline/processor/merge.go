package processor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/property"
)

var scalarKinds = map[property.Kind]struct{}{
	property.KindNumber: {}, property.KindSelect: {}, property.KindCheckbox: {},
	property.KindURL: {}, property.KindEmail: {}, property.KindPhone: {}, property.KindDate: {},
}

var collectionKinds = map[property.Kind]struct{}{
	property.KindMultiSelect: {}, property.KindRelation: {}, property.KindFiles: {}, property.KindPeople: {},
}

// mergeProperties applies the update policy of spec.md §4.7 to an
// existing page's properties plus a freshly-extracted entity's
// properties, returning the plain-value patch to send through
// Store.UpdatePage and any conflict warnings raised along the way. An
// empty returned map means no property actually changed — the caller
// treats that as SkipNoChange rather than issuing a write.
func mergeProperties(existing *models.Page, entity models.Entity, overwriteConfidence float64, transcriptID string) (patch map[string]any, warnings []string) {
	patch = map[string]any{}

	for name, incoming := range entity.Properties {
		existingValue, hasExisting := existing.Properties[name]

		if !hasExisting {
			if v, changed := mergeAgainstAbsent(name, incoming, transcriptID); changed {
				patch[name] = v
			}
			continue
		}

		switch existingValue.Kind {
		case property.KindTitle:
			v, warning := mergeTitle(name, existingValue.Payload, incoming)
			if warning != "" {
				warnings = append(warnings, warning)
			}
			if v != nil {
				patch[name] = v
			}
		case property.KindRichText:
			if v, changed := mergeRichText(existingValue.Payload, incoming, transcriptID); changed {
				patch[name] = v
			}
		default:
			if _, ok := collectionKinds[existingValue.Kind]; ok {
				if v := mergeCollection(existingValue.Payload, incoming); v != nil {
					patch[name] = v
				}
				continue
			}
			if _, ok := scalarKinds[existingValue.Kind]; ok {
				if v, changed := mergeScalar(existingValue.Payload, incoming, entity.Confidence, overwriteConfidence); changed {
					patch[name] = v
				}
			}
		}
	}

	return patch, warnings
}

// mergeAgainstAbsent handles a property the existing page has never set.
// Every kind, rich_text included, adopts the incoming value unchanged:
// no provenance tag is added on this first write. Nil and empty-string
// values are not written.
func mergeAgainstAbsent(name string, incoming any, transcriptID string) (any, bool) {
	if incoming == nil {
		return nil, false
	}
	if s, ok := incoming.(string); ok && s == "" {
		return nil, false
	}
	return incoming, true
}

func mergeTitle(name string, existingPlain, incoming any) (any, string) {
	existingStr, _ := existingPlain.(string)
	incomingStr, _ := incoming.(string)
	if existingStr == "" {
		if incomingStr == "" {
			return nil, ""
		}
		return incoming, ""
	}
	if incomingStr == "" || incomingStr == existingStr {
		return nil, ""
	}
	return nil, fmt.Sprintf("title conflict on %q: kept %q, discarded %q", name, existingStr, incomingStr)
}

func mergeScalar(existingPlain, incoming any, confidence, overwriteConfidence float64) (any, bool) {
	if incoming == nil || reflect.DeepEqual(existingPlain, incoming) {
		return nil, false
	}
	if existingPlain == nil {
		return incoming, true
	}
	if confidence >= overwriteConfidence {
		return incoming, true
	}
	return nil, false
}

func mergeCollection(existingPlain, incoming any) any {
	existingMembers := toStringSlice(existingPlain)
	incomingMembers := toStringSlice(incoming)
	if len(incomingMembers) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(existingMembers))
	union := make([]string, 0, len(existingMembers)+len(incomingMembers))
	for _, m := range existingMembers {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		union = append(union, m)
	}
	added := false
	for _, m := range incomingMembers {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		union = append(union, m)
		added = true
	}
	if !added {
		return nil
	}
	return union
}

// mergeRichText appends incoming content tagged with its transcript
// provenance, returning changed=false when that exact tagged block is
// already present — otherwise reprocessing the same transcript would
// append a duplicate block every time, violating the no-op-on-replay
// guarantee the rest of the merge policy upholds.
func mergeRichText(existingPlain, incoming any, transcriptID string) (value string, changed bool) {
	existingStr, _ := existingPlain.(string)
	incomingStr, _ := incoming.(string)
	if incomingStr == "" {
		return existingStr, false
	}
	tagged := fmt.Sprintf("%s\n[source: %s]", incomingStr, transcriptID)
	if existingStr == "" {
		return tagged, true
	}
	if strings.Contains(existingStr, tagged) {
		return existingStr, false
	}
	return existingStr + "\n\n" + tagged, true
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
