// Package extraction is the Go-side contract for invoking an LLM
// extraction vendor and parsing its structured entity output (spec.md
// §4.5), mirroring pkg/agent/llm_client.go's LLMClient interface: a
// contract the core calls, implemented by a vendor SDK the core never
// imports directly.
package extraction

import (
	"context"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
)

// Hints carries caller-supplied guidance for extraction — e.g. which
// entity kinds are in scope for this transcript's target databases.
type Hints struct {
	AllowedKinds []models.EntityKind
	SourceHint   models.SourceTag
}

// Result is the parsed extraction output (spec.md §4.5). Relationships
// live on their source Entity (Entity.Relationships), not as a separate
// top-level list — every relationship has exactly one origin entity, so
// that is where the processor looks for them.
type Result struct {
	Entities []models.Entity
	Warnings []string
}

// Provider is the contract every extraction vendor integration
// satisfies. Implementations must: treat text as untrusted data (never
// instructions); enforce a maximum input size, rejecting oversized input
// with Validation rather than truncating; time out and return Transient;
// downgrade entities with missing required fields to warnings rather
// than failing the whole extraction.
type Provider interface {
	Extract(ctx context.Context, text string, hints Hints) (*Result, error)
}
