package models

import (
	"time"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
)

// PageRef is a lightweight pointer to a page the processor created or
// updated, returned in ProcessingResult rather than a full Page so
// callers aren't tempted to treat it as a fresh snapshot.
type PageRef struct {
	PageID     string
	DatabaseID string
	EntityName string
}

// SkipReason is the closed set of reasons an entity may be skipped
// instead of upserted.
type SkipReason string

// Recognized skip reasons.
const (
	SkipExtractionWarning SkipReason = "extraction_warning"
	SkipAmbiguousMatch    SkipReason = "ambiguous_match"
	SkipNoChange          SkipReason = "no_change"
	SkipUnresolvedTarget  SkipReason = "unresolved_target"
	SkipDisallowedKind    SkipReason = "disallowed_kind"
)

// SkippedEntity records why an entity did not result in a write.
type SkippedEntity struct {
	EntityName string
	Reason     SkipReason
	// CandidateIDs holds the ambiguous candidate page ids when
	// Reason == SkipAmbiguousMatch (spec.md §4.7 step 4).
	CandidateIDs []string
}

// ProcessingResult is the per-transcript outcome of TranscriptProcessor.Process.
type ProcessingResult struct {
	Created              []PageRef
	Updated               []PageRef
	Skipped               []SkippedEntity
	RelationshipsCreated  int
	Errors                []pipelineerr.ErrorRecord
	Warnings              []string
	DryRun                bool
	Duration              time.Duration
}

// EntitiesAccountedFor reports whether every extracted entity is
// represented in exactly one of created/updated/skipped/errors, the
// invariant spec.md §3 places on ProcessingResult.
func (r ProcessingResult) EntitiesAccountedFor(entitiesExtracted int) bool {
	failed := 0
	for range r.Errors {
		failed++
	}
	return len(r.Created)+len(r.Updated)+len(r.Skipped)+failed == entitiesExtracted
}

// BatchResult is the outcome of BatchRunner.RunBatch: one ProcessingResult
// per input transcript, index-aligned, plus aggregate counters.
type BatchResult struct {
	PerTranscript     []*ProcessingResult
	AggregateCounters AggregateCounters
	Errors            []pipelineerr.ErrorRecord
}

// AggregateCounters sums ProcessingResult fields across an entire batch.
type AggregateCounters struct {
	Created              int
	Updated               int
	Skipped               int
	RelationshipsCreated  int
	Failed                int
}
