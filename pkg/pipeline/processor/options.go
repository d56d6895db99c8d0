package processor

import (
	"dario.cat/mergo"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
)

// Defaults holds the processor-wide settings Options merges over,
// matching the teacher's own use of dario.cat/mergo in
// pkg/config/loader.go to merge user config on top of built-in defaults.
type Defaults struct {
	MaxTitleLength      int
	MaxBodyLength       int
	DedupHighThreshold  float64
	DedupLowThreshold   float64
	OverwriteConfidence float64
	EnableDeduplication bool
	CreateRelationships bool
}

// DefaultSettings returns the spec.md §4.1/§9 default values.
func DefaultSettings() Defaults {
	return Defaults{
		MaxTitleLength:      500,
		MaxBodyLength:       200_000,
		DedupHighThreshold:  90,
		DedupLowThreshold:   75,
		OverwriteConfidence: 0.85,
		EnableDeduplication: true,
		CreateRelationships: true,
	}
}

// Options is the per-call override set (spec.md §4.7). Pointer fields
// distinguish "not specified" (nil) from an explicit false/zero, the
// same reason pkg/config's YAML structs use pointers for optional
// booleans before a mergo pass.
type Options struct {
	DryRun                 bool
	EnableDeduplication    *bool
	DeduplicationThreshold *float64
	CreateRelationships    *bool
	AllowedKinds           map[models.EntityKind]struct{}
	SourceOverride         *models.SourceTag
}

// overridable is the subset of Defaults mergo.Merge can apply
// wholesale — numeric thresholds. mergo skips a zero source field, so a
// 0 reads as "not set" and keeps the default; for a threshold 0 is not a
// useful setting, unlike bool false, which is a real choice.
type overridable struct {
	DedupHighThreshold  float64
	OverwriteConfidence float64
}

// resolved is the effective, fully-determined setting set for one
// Process call: Defaults merged with the non-nil fields of Options.
type resolved struct {
	dryRun              bool
	enableDeduplication bool
	dedupHighThreshold  float64
	dedupLowThreshold   float64
	createRelationships bool
	overwriteConfidence float64
	allowedKinds        map[models.EntityKind]struct{}
	sourceOverride      *models.SourceTag
}

func resolveOptions(defaults Defaults, opts Options) (resolved, error) {
	merged := overridable{DedupHighThreshold: defaults.DedupHighThreshold, OverwriteConfidence: defaults.OverwriteConfidence}
	override := overridable{}
	if opts.DeduplicationThreshold != nil {
		override.DedupHighThreshold = *opts.DeduplicationThreshold
	}
	if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
		return resolved{}, err
	}

	r := resolved{
		dryRun:              opts.DryRun,
		enableDeduplication: defaults.EnableDeduplication,
		dedupHighThreshold:  merged.DedupHighThreshold,
		dedupLowThreshold:   defaults.DedupLowThreshold,
		createRelationships: defaults.CreateRelationships,
		overwriteConfidence: merged.OverwriteConfidence,
		allowedKinds:        opts.AllowedKinds,
		sourceOverride:      opts.SourceOverride,
	}
	if opts.EnableDeduplication != nil {
		r.enableDeduplication = *opts.EnableDeduplication
	}
	if opts.CreateRelationships != nil {
		r.createRelationships = *opts.CreateRelationships
	}
	return r, nil
}

func (r resolved) kindAllowed(k models.EntityKind) bool {
	if len(r.allowedKinds) == 0 {
		return true
	}
	_, ok := r.allowedKinds[k]
	return ok
}
