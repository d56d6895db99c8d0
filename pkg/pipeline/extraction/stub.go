package extraction

import (
	"context"
	"strconv"
	"strings"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// StubProvider is a deterministic, in-memory Provider for tests —
// mirroring the teacher's own test doubles for agent.LLMClient. It
// recognizes a small fixture line format rather than calling any model,
// so the same transcript always yields the same Result.
//
// Recognized lines (others are ignored, never interpreted as
// instructions):
//
//	ENTITY: <Kind> | <Name> | confidence=<0..1> [| <prop>=<value> ...]
//	RELATIONSHIP: <SourceName> -> <TargetName> | <Kind> | <label>
type StubProvider struct {
	MaxInputChars int
}

// NewStub builds a StubProvider with the given input-size ceiling
// (characters). Zero means no limit.
func NewStub(maxInputChars int) *StubProvider {
	return &StubProvider{MaxInputChars: maxInputChars}
}

func (p *StubProvider) Extract(ctx context.Context, text string, hints Hints) (*Result, error) {
	if p.MaxInputChars > 0 && len(text) > p.MaxInputChars {
		return nil, pipelineerr.Validation("extraction: input exceeds maximum size", nil).
			WithContext(map[string]string{"max_chars": strconv.Itoa(p.MaxInputChars)})
	}

	// Sanitize first: role-delimiter prefixes, role-claiming fences and
	// "###"/"</s>" line starts are neutralized before the fixture scanner
	// sees the text. Other lines pass through unchanged, so a literal
	// ENTITY:/RELATIONSHIP: line inside the transcript is still parsed.
	sanitized := SanitizeForPrompt(text)

	result := &Result{}
	byName := map[string]int{} // entity name -> index in result.Entities
	for _, line := range strings.Split(sanitized, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ENTITY:"):
			entity, warning, ok := parseEntityLine(strings.TrimPrefix(line, "ENTITY:"))
			if !ok {
				continue
			}
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
				continue
			}
			byName[entity.Name] = len(result.Entities)
			result.Entities = append(result.Entities, entity)
		case strings.HasPrefix(line, "RELATIONSHIP:"):
			sourceName, rel, ok := parseRelationshipLine(strings.TrimPrefix(line, "RELATIONSHIP:"))
			if !ok {
				continue
			}
			idx, ok := byName[sourceName]
			if !ok {
				result.Warnings = append(result.Warnings, "relationship references unknown source entity: "+sourceName)
				continue
			}
			result.Entities[idx].Relationships = append(result.Entities[idx].Relationships, rel)
		}
	}
	return result, nil
}

func parseEntityLine(s string) (entity models.Entity, warning string, ok bool) {
	fields := splitPipe(s)
	if len(fields) < 2 {
		return models.Entity{}, "", false
	}

	kind := models.EntityKind(strings.TrimSpace(fields[0]))
	name := strings.TrimSpace(fields[1])
	if !kind.Valid() {
		return models.Entity{}, "entity with unrecognized kind skipped: " + string(kind), true
	}
	if name == "" {
		return models.Entity{}, "entity missing required name field", true
	}

	e := models.Entity{Kind: kind, Name: name, Properties: map[string]any{}, Confidence: 1.0}
	for _, extra := range fields[2:] {
		extra = strings.TrimSpace(extra)
		if strings.HasPrefix(extra, "confidence=") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(extra, "confidence="), 64); err == nil {
				e.Confidence = v
			}
			continue
		}
		if k, v, found := strings.Cut(extra, "="); found {
			e.Properties[k] = v
		}
	}
	return e, "", true
}

func parseRelationshipLine(s string) (sourceName string, rel models.RelRef, ok bool) {
	fields := splitPipe(s)
	if len(fields) < 2 {
		return "", models.RelRef{}, false
	}
	arrow := strings.TrimSpace(fields[0])
	source, target, found := strings.Cut(arrow, "->")
	if !found {
		return "", models.RelRef{}, false
	}
	kind := models.EntityKind(strings.TrimSpace(fields[1]))
	label := ""
	if len(fields) >= 3 {
		label = strings.TrimSpace(fields[2])
	}
	return strings.TrimSpace(source), models.RelRef{
		TargetName:    strings.TrimSpace(target),
		TargetKind:    kind,
		RelationLabel: label,
	}, true
}

func splitPipe(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
