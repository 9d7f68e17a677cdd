// Package runner reconciles many groupings with bounded concurrency.
//
// A failed grouping is logged and recorded; the batch carries on with the
// rest. Only context cancellation stops a batch early.
package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/logger"
	"github.com/roach88/autocat/internal/reconcile"
)

// DefaultConcurrency is used when New is given a non-positive limit.
const DefaultConcurrency = 4

// Maintainer is the part of *reconcile.Reconciler the runner drives.
type Maintainer interface {
	Maintain(ctx context.Context, ref int64, candidates []int64) (*reconcile.Result, error)
}

// Outcome is the result of one grouping within a batch.
type Outcome struct {
	GroupingID int64             `json:"grouping_id"`
	Result     *reconcile.Result `json:"result,omitempty"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// Report aggregates a batch. Outcomes are in request order.
type Report struct {
	Outcomes []Outcome     `json:"outcomes"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Deleted  int64         `json:"deleted"`
	Inserted int64         `json:"inserted"`
	Duration time.Duration `json:"duration_ns"`
}

// OK reports whether every grouping succeeded.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Runner runs reconciliation batches.
type Runner struct {
	maintainer  Maintainer
	log         *logger.Logger
	concurrency int
}

// New creates a Runner. log may be nil.
func New(m Maintainer, log *logger.Logger, concurrency int) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{maintainer: m, log: log, concurrency: concurrency}
}

// Run maintains each referenced grouping once with the same candidates.
// Duplicate refs run once.
func (r *Runner) Run(ctx context.Context, refs []int64, candidates []int64) *Report {
	start := time.Now()
	refs = dedupe(refs)
	report := &Report{Outcomes: make([]Outcome, len(refs))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, ref := range refs {
		g.Go(func() error {
			out := Outcome{GroupingID: ref}
			if err := gctx.Err(); err != nil {
				out.Err = err
			} else {
				out.Result, out.Err = r.maintainer.Maintain(gctx, ref, candidates)
			}
			if out.Err != nil {
				out.Error = out.Err.Error()
				r.log.Error("grouping run failed", "grouping_id", ref, "error", out.Err)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Outcomes[i] = out
			switch {
			case out.Err != nil:
				report.Failed++
			case out.Result.Skipped != "":
				report.Skipped++
			default:
				report.Deleted += out.Result.Deleted
				report.Inserted += out.Result.Inserted
			}
			// Failures never cancel the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	r.log.Info("batch finished",
		"groupings", len(refs),
		"failed", report.Failed,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"inserted", report.Inserted,
		"duration", report.Duration,
	)
	return report
}

// RunAll maintains every grouping known to source.
func (r *Runner) RunAll(ctx context.Context, source grouping.Source, candidates []int64) *Report {
	all := source.All()
	refs := make([]int64, len(all))
	for i, g := range all {
		refs[i] = g.ID
	}
	return r.Run(ctx, refs, candidates)
}

func dedupe(refs []int64) []int64 {
	seen := make(map[int64]bool, len(refs))
	out := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}
