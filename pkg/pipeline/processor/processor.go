// Package processor orchestrates one transcript end-to-end (spec.md
// §4.7): extract → dedupe → upsert → relate → assemble. It runs the
// seven numbered algorithm steps in order — validate, extract, dedup,
// write and createRelationships are private methods, while grouping and
// result assembly happen inline in Process — mirroring
// pkg/queue/executor.go's executeStage/
// executeStageInput decomposition of one session into named sub-phases
// with a stageResult-shaped accumulator per phase.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/extraction"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/similarity"
)

// Store is the subset of store.Client the processor depends on.
type Store interface {
	QueryDatabase(ctx context.Context, databaseID string, filter map[string]any, cursor *string) ([]models.Page, *string, error)
	CreatePage(ctx context.Context, databaseID string, plainProperties map[string]any) (*models.Page, error)
	UpdatePage(ctx context.Context, pageID string, plainProperties map[string]any) (*models.Page, error)
	FindByTitle(ctx context.Context, databaseID, title string) (*models.Page, error)
}

// DatabaseRouter resolves which target database an entity kind belongs
// to. The spec leaves this mapping to deployment configuration.
type DatabaseRouter map[models.EntityKind]string

// Processor runs TranscriptProcessor.Process (spec.md §4.7). The
// similarity matcher is rebuilt per dedup call rather than held fixed,
// since its thresholds can be overridden per Process call via Options.
type Processor struct {
	store     Store
	extractor extraction.Provider
	router    DatabaseRouter
	defaults  Defaults
	log       *slog.Logger
}

// New builds a Processor. router maps each EntityKind to the database id
// its pages live in; entities whose kind has no route are skipped with
// reason disallowed_kind.
func New(store Store, extractor extraction.Provider, router DatabaseRouter, defaults Defaults, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{store: store, extractor: extractor, router: router, defaults: defaults, log: log}
}

// stagedEntity tracks one extracted entity's journey through dedup and
// write, mirroring stageResult's per-phase accumulator shape.
type stagedEntity struct {
	entity     models.Entity
	databaseID string

	// decided after the dedup phase
	action    writeAction
	targetID  string // set when action == actionUpdate
	candidates []string

	// decided after the write phase
	page     *models.Page
	failed   *pipelineerr.Error
	warnings []string
}

type writeAction int

const (
	actionNone writeAction = iota
	actionCreate
	actionUpdate
	actionSkip
)

// Process runs the full algorithm against transcript.
func (p *Processor) Process(ctx context.Context, transcript models.Transcript, opts Options) (*models.ProcessingResult, error) {
	start := time.Now()
	settings, err := resolveOptions(p.defaults, opts)
	if err != nil {
		return nil, pipelineerr.Internal("processor: resolve options", err)
	}

	// Step 1: validate.
	if err := p.validate(transcript); err != nil {
		return nil, err
	}

	result := &models.ProcessingResult{DryRun: settings.dryRun}

	// Step 2: extract.
	source := transcript.Source
	if settings.sourceOverride != nil {
		source = *settings.sourceOverride
	}
	extractionResult, err := p.extract(ctx, transcript, source)
	if err != nil {
		var perr *pipelineerr.Error
		if errors.As(err, &perr) && perr.Kind == pipelineerr.KindTransient {
			result.Duration = time.Since(start)
			result.Errors = append(result.Errors, perr.ToRecord())
			return result, nil
		}
		return nil, err
	}
	for _, w := range extractionResult.Warnings {
		result.Warnings = append(result.Warnings, w)
	}

	staged := make([]*stagedEntity, 0, len(extractionResult.Entities))
	for _, e := range extractionResult.Entities {
		if !settings.kindAllowed(e.Kind) {
			result.Skipped = append(result.Skipped, models.SkippedEntity{EntityName: e.Name, Reason: models.SkipDisallowedKind})
			continue
		}
		dbID, ok := p.router[e.Kind]
		if !ok {
			result.Skipped = append(result.Skipped, models.SkippedEntity{EntityName: e.Name, Reason: models.SkipDisallowedKind})
			continue
		}
		staged = append(staged, &stagedEntity{entity: e, databaseID: dbID})
	}

	// Step 3: group by target database is implicit — dedup queries are
	// already scoped per-entity by databaseID above.

	// Step 4: dedup phase.
	if settings.enableDeduplication {
		for _, se := range staged {
			if err := p.dedup(ctx, se, settings); err != nil {
				se.failed = asError(err)
			}
		}
	} else {
		for _, se := range staged {
			se.action = actionCreate
		}
	}

	for _, se := range staged {
		switch se.action {
		case actionSkip:
			result.Skipped = append(result.Skipped, models.SkippedEntity{
				EntityName:   se.entity.Name,
				Reason:       models.SkipAmbiguousMatch,
				CandidateIDs: se.candidates,
			})
		}
	}

	// Step 5: write phase.
	if settings.dryRun {
		for _, se := range staged {
			if se.action == actionSkip || se.failed != nil {
				continue
			}
			result.Warnings = append(result.Warnings, fmt.Sprintf("dry_run: would %s %q", writeActionLabel(se.action), se.entity.Name))
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	for _, se := range staged {
		if se.action == actionSkip || se.failed != nil {
			continue
		}
		if err := p.write(ctx, se, settings, transcript.ID); err != nil {
			se.failed = asError(err)
		}
	}

	for _, se := range staged {
		result.Warnings = append(result.Warnings, se.warnings...)
		switch {
		case se.failed != nil:
			result.Errors = append(result.Errors, se.failed.ToRecord())
		case se.action == actionCreate && se.page != nil:
			result.Created = append(result.Created, models.PageRef{PageID: se.page.ID, DatabaseID: se.databaseID, EntityName: se.entity.Name})
		case se.action == actionUpdate && se.page != nil:
			result.Updated = append(result.Updated, models.PageRef{PageID: se.page.ID, DatabaseID: se.databaseID, EntityName: se.entity.Name})
		case se.action == actionSkip && se.page != nil:
			result.Skipped = append(result.Skipped, models.SkippedEntity{EntityName: se.entity.Name, Reason: models.SkipNoChange})
		}
	}

	// Step 6: relationship phase.
	if settings.createRelationships {
		created, skipped, warnings := p.createRelationships(ctx, staged)
		result.RelationshipsCreated = created
		result.Skipped = append(result.Skipped, skipped...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	// Step 7: assemble.
	result.Duration = time.Since(start)
	return result, nil
}

func (p *Processor) validate(t models.Transcript) error {
	if len(t.Title) > p.defaults.MaxTitleLength {
		return pipelineerr.Validation(fmt.Sprintf("transcript title exceeds %d characters", p.defaults.MaxTitleLength), nil)
	}
	if len(t.Body) > p.defaults.MaxBodyLength {
		return pipelineerr.Validation(fmt.Sprintf("transcript body exceeds %d characters", p.defaults.MaxBodyLength), nil)
	}
	if !t.Source.Valid() {
		return pipelineerr.Validation(fmt.Sprintf("unrecognized source tag %q", t.Source), nil)
	}
	return nil
}

func (p *Processor) extract(ctx context.Context, t models.Transcript, source models.SourceTag) (*extraction.Result, error) {
	return p.extractor.Extract(ctx, t.Body, extraction.Hints{SourceHint: source})
}

func (p *Processor) dedup(ctx context.Context, se *stagedEntity, settings resolved) error {
	candidates, err := p.gatherCandidates(ctx, se)
	if err != nil {
		return err
	}

	identifiers := identifierProperties(se.entity.Properties)
	matcher := similarity.New(settings.dedupHighThreshold, settings.dedupLowThreshold)
	decision := matcher.Decide(se.entity.Name, identifiers, similarity.Tokenize(se.entity.Name), candidates)

	switch decision.Outcome {
	case similarity.OutcomeMatch:
		se.action = actionUpdate
		se.targetID = decision.MatchedID
	case similarity.OutcomeAmbiguous:
		se.action = actionSkip
		se.candidates = decision.TopCandidates
	default:
		se.action = actionCreate
	}
	return nil
}

func (p *Processor) gatherCandidates(ctx context.Context, se *stagedEntity) ([]similarity.Candidate, error) {
	pages, _, err := p.store.QueryDatabase(ctx, se.databaseID, map[string]any{"title_contains_any_token": se.entity.Name}, nil)
	if err != nil {
		return nil, err
	}
	candidates := make([]similarity.Candidate, 0, len(pages))
	for _, page := range pages {
		_, title, _ := page.TitleProperty()
		candidates = append(candidates, similarity.Candidate{
			PageID:         page.ID,
			Title:          title,
			Identifiers:    pageIdentifiers(page),
			ContextTokens:  similarity.Tokenize(title),
			LastEditedUnix: page.LastEditedTime.Unix(),
		})
	}
	return candidates, nil
}

func (p *Processor) write(ctx context.Context, se *stagedEntity, settings resolved, transcriptID string) error {
	switch se.action {
	case actionCreate:
		page, err := p.store.CreatePage(ctx, se.databaseID, se.entity.Properties)
		if err != nil {
			return err
		}
		se.page = page
	case actionUpdate:
		existing, err := p.storeGetByID(ctx, se)
		if err != nil {
			return err
		}
		merged, warnings := mergeProperties(existing, se.entity, settings.overwriteConfidence, transcriptID)
		if len(merged) == 0 {
			se.action = actionSkip
			se.page = existing
			return nil
		}
		page, err := p.store.UpdatePage(ctx, se.targetID, merged)
		if err != nil {
			return err
		}
		se.page = page
		se.warnings = warnings
	}
	return nil
}

func (p *Processor) storeGetByID(ctx context.Context, se *stagedEntity) (*models.Page, error) {
	pages, _, err := p.store.QueryDatabase(ctx, se.databaseID, map[string]any{"id_equals": se.targetID}, nil)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page.ID == se.targetID {
			return &page, nil
		}
	}
	return nil, pipelineerr.Internal("processor: matched page vanished before write", nil)
}

func writeActionLabel(a writeAction) string {
	switch a {
	case actionCreate:
		return "create"
	case actionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// identifierProperties extracts the key identifier fields (email, phone,
// external_id) from an entity's properties for the similarity matcher's
// exact-match boost.
func identifierProperties(props map[string]any) map[string]string {
	out := map[string]string{}
	for _, key := range []string{"email", "phone", "external_id"} {
		if v, ok := props[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				out[key] = s
			}
		}
	}
	return out
}

func pageIdentifiers(page models.Page) map[string]string {
	out := map[string]string{}
	for _, key := range []string{"email", "phone", "external_id"} {
		if v, ok := page.Properties[key]; ok {
			if s, ok := v.Payload.(string); ok && s != "" {
				out[key] = s
			}
		}
	}
	return out
}

func asError(err error) *pipelineerr.Error {
	var perr *pipelineerr.Error
	if errors.As(err, &perr) {
		return perr
	}
	return pipelineerr.Internal(err.Error(), err)
}
