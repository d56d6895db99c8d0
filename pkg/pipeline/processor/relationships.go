package processor

import (
	"context"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
)

// createRelationships implements spec.md §4.7 step 6: resolve each
// relationship's target against this transcript's own freshly
// created/updated pages first, falling back to a single FindByTitle
// lookup per unresolved ref, then add the target page id to the
// relation property named by the relationship's label — never removing
// existing members.
func (p *Processor) createRelationships(ctx context.Context, staged []*stagedEntity) (created int, skipped []models.SkippedEntity, warnings []string) {
	byName := map[string]*stagedEntity{}
	for _, se := range staged {
		if se.page != nil {
			byName[se.entity.Name] = se
		}
	}

	// additions accumulates, per source page, the relation property name
	// -> set of target page ids to append, so multiple relationships
	// sharing a label collapse into a single UpdatePage call.
	additions := map[*stagedEntity]map[string][]string{}

	for _, se := range staged {
		if se.page == nil || se.failed != nil {
			continue
		}
		for _, rel := range se.entity.Relationships {
			targetID, ok := p.resolveRelationTarget(ctx, rel, byName)
			if !ok {
				skipped = append(skipped, models.SkippedEntity{
					EntityName: se.entity.Name,
					Reason:     models.SkipUnresolvedTarget,
				})
				continue
			}
			if additions[se] == nil {
				additions[se] = map[string][]string{}
			}
			additions[se][rel.RelationLabel] = append(additions[se][rel.RelationLabel], targetID)
		}
	}

	for se, byLabel := range additions {
		patch := map[string]any{}
		for label, targetIDs := range byLabel {
			existing := existingRelationMembers(se.page, label)
			patch[label] = unionIDs(existing, targetIDs)
		}
		updated, err := p.store.UpdatePage(ctx, se.page.ID, patch)
		if err != nil {
			warnings = append(warnings, "relationship update failed for "+se.entity.Name+": "+err.Error())
			continue
		}
		se.page = updated
		created += len(byLabel)
	}

	return created, skipped, warnings
}

func (p *Processor) resolveRelationTarget(ctx context.Context, rel models.RelRef, byName map[string]*stagedEntity) (string, bool) {
	if target, ok := byName[rel.TargetName]; ok {
		return target.page.ID, true
	}

	dbID, ok := p.router[rel.TargetKind]
	if !ok {
		return "", false
	}
	page, err := p.store.FindByTitle(ctx, dbID, rel.TargetName)
	if err != nil || page == nil {
		return "", false
	}
	return page.ID, true
}

func existingRelationMembers(page *models.Page, propertyName string) []string {
	v, ok := page.Properties[propertyName]
	if !ok {
		return nil
	}
	return toStringSlice(v.Payload)
}

func unionIDs(existing, additional []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(additional))
	out := make([]string, 0, len(existing)+len(additional))
	for _, id := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range additional {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
