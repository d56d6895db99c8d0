// Package batch runs TranscriptProcessor.Process over a set of
// transcripts with bounded parallelism (spec.md §4.8), the same
// goroutine-per-unit-of-work plus concurrency cap shape as
// pkg/queue/pool.go's WorkerPool, but scoped to a single batch call
// rather than a long-lived pod-wide worker pool: no DB polling, no
// orphan recovery, just a fixed list of transcripts fanned out and
// joined.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/processor"
)

const (
	defaultConcurrency = 4
	maxConcurrency     = 16
)

// Processor is the subset of processor.Processor BatchRunner depends on.
type Processor interface {
	Process(ctx context.Context, transcript models.Transcript, opts processor.Options) (*models.ProcessingResult, error)
}

// Runner runs a batch of transcripts through a Processor.
type Runner struct {
	proc Processor
}

// New builds a Runner over proc.
func New(proc Processor) *Runner {
	return &Runner{proc: proc}
}

// RunBatch implements spec.md §4.8: up to concurrency TranscriptProcessor
// invocations run in parallel (each itself serialized against the shared
// RateLimiter inside the store layer, so overall store QPS is unaffected
// by concurrency), results are dense and index-aligned with the input,
// and one transcript's failure never cancels the rest.
func (r *Runner) RunBatch(ctx context.Context, transcripts []models.Transcript, opts processor.Options, concurrency int) *models.BatchResult {
	concurrency = clampConcurrency(concurrency)

	result := &models.BatchResult{PerTranscript: make([]*models.ProcessingResult, len(transcripts))}
	var mu sync.Mutex // guards result.AggregateCounters and result.Errors

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, transcript := range transcripts {
		i, transcript := i, transcript
		group.Go(func() error {
			pr, err := r.proc.Process(groupCtx, transcript, opts)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				rec := toErrorRecord(err)
				result.PerTranscript[i] = &models.ProcessingResult{Errors: []pipelineerr.ErrorRecord{rec}}
				result.Errors = append(result.Errors, rec)
				result.AggregateCounters.Failed++
				return nil
			}

			result.PerTranscript[i] = pr
			addToCounters(&result.AggregateCounters, pr)
			return nil
		})
	}

	// group.Go never returns a non-nil error itself (every failure is
	// captured per-transcript above), so Wait's error is always nil —
	// it only joins the goroutines.
	_ = group.Wait()

	return result
}

func clampConcurrency(c int) int {
	if c <= 0 {
		return defaultConcurrency
	}
	if c > maxConcurrency {
		return maxConcurrency
	}
	return c
}

func addToCounters(c *models.AggregateCounters, pr *models.ProcessingResult) {
	c.Created += len(pr.Created)
	c.Updated += len(pr.Updated)
	c.Skipped += len(pr.Skipped)
	c.RelationshipsCreated += pr.RelationshipsCreated
	if len(pr.Errors) > 0 {
		c.Failed += len(pr.Errors)
	}
}

func toErrorRecord(err error) pipelineerr.ErrorRecord {
	perr := asError(err)
	return perr.ToRecord()
}

func asError(err error) *pipelineerr.Error {
	if perr, ok := err.(*pipelineerr.Error); ok {
		return perr
	}
	return pipelineerr.Internal(err.Error(), err)
}
