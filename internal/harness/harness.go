package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/logger"
	"github.com/roach88/autocat/internal/reconcile"
	"github.com/roach88/autocat/internal/runner"
	"github.com/roach88/autocat/internal/store"
	"github.com/roach88/autocat/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	runner     *runner.Runner
	source     *grouping.Registry
	clock      *testutil.FixedClock
	logger     *logger.Logger
}

// Run executes a scenario with a discarding logger.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, logger.Nop())
}

// RunContext executes a scenario.
//
// Each scenario runs in a fresh in-memory database with a fixed clock
// and sequential run ids.
//
// Execution flow:
// 1. Build the grouping registry and open the store
// 2. Seed catalog and initial membership
// 3. Execute steps, checking expect clauses
// 4. Read the final membership and evaluate assertions
//
// Failed expectations and assertions are reported in Result; the error
// return is reserved for scenarios that cannot be executed at all.
func RunContext(ctx context.Context, scenario *Scenario, log *logger.Logger) (*Result, error) {
	if log == nil {
		log = logger.Nop()
	}
	registry, err := scenario.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build groupings: %w", err)
	}
	seed, err := scenario.SeedCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	now, err := scenario.Clock()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFixedClock(now)
	rec, err := reconcile.New(st, registry,
		reconcile.WithClock(clock.Now),
		reconcile.WithRunIDGenerator(testutil.NewSequentialRunIDs("run")),
		reconcile.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:      st,
		reconciler: rec,
		runner:     runner.New(rec, log, 1),
		source:     registry,
		clock:      clock,
		logger:     log.With("scenario", scenario.Name),
	}

	if _, err := seed.Apply(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}
	if len(scenario.Membership) > 0 {
		if _, err := st.WriteMembership(ctx, scenario.Membership); err != nil {
			return nil, fmt.Errorf("failed to seed membership: %w", err)
		}
	}
	initial, err := st.ReadAllMembership(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeded membership: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	final, err := st.ReadAllMembership(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final membership: %w", err)
	}
	result.Membership = final

	actx := &AssertionContext{Initial: initial, Final: final}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep runs one step. Reconciler failures are recorded as events
// and checked against expect; catalog write failures abort the scenario.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	switch step.Action() {
	case ActionMaintain:
		res, err := h.reconciler.Maintain(ctx, step.Maintain, step.Items)
		event := newEvent(i, ActionMaintain, step.Maintain, step.Items, res, err)
		result.AddEvent(event)
		checkExpect(result, i, step.Expect, event.Deleted, event.Inserted, event.Skipped, event.Error, 0)
		h.logger.Debug("maintain step completed", "step", i, "grouping", step.Maintain, "error", event.Error)

	case ActionMaintainAll:
		report := h.runner.RunAll(ctx, h.source, step.Items)
		var skipped string
		for _, o := range report.Outcomes {
			event := newEvent(i, ActionMaintainAll, o.GroupingID, step.Items, o.Result, o.Err)
			result.AddEvent(event)
			if skipped == "" {
				skipped = event.Skipped
			}
		}
		checkExpect(result, i, step.Expect, report.Deleted, report.Inserted, skipped, "", report.Failed)
		h.logger.Debug("batch step completed", "step", i, "groupings", len(report.Outcomes), "failed", report.Failed)

	case ActionUpsert:
		if _, err := step.Upsert.Apply(ctx, h.store); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}

	case ActionDeleteItems:
		for _, id := range step.DeleteItems {
			if err := h.store.DeleteItem(ctx, id); err != nil {
				return fmt.Errorf("delete item %d: %w", id, err)
			}
		}

	case ActionAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)

	default:
		return fmt.Errorf("no action set")
	}
	return nil
}

func newEvent(step int, action string, groupingID int64, candidates []int64, res *reconcile.Result, err error) StepEvent {
	event := StepEvent{
		Step:       step,
		Action:     action,
		GroupingID: groupingID,
		Candidates: candidates,
	}
	if res != nil {
		event.Deleted = res.Deleted
		event.Inserted = res.Inserted
		event.Skipped = string(res.Skipped)
	}
	if err != nil {
		event.Error = string(reconcile.CodeOf(err))
		if event.Error == "" {
			event.Error = err.Error()
		}
	}
	return event
}

// checkExpect compares a step outcome with its expect clause. A step
// without expect must not fail.
func checkExpect(result *Result, step int, exp *Expect, deleted, inserted int64, skipped, errCode string, failed int) {
	if exp == nil {
		if errCode != "" {
			result.AddError(fmt.Sprintf("step %d: unexpected error %s", step, errCode))
		}
		if failed > 0 {
			result.AddError(fmt.Sprintf("step %d: %d groupings failed", step, failed))
		}
		return
	}
	if exp.Error != nil && *exp.Error != errCode {
		result.AddError(fmt.Sprintf("step %d: expected error %q, got %q", step, *exp.Error, errCode))
	}
	if exp.Error == nil && errCode != "" {
		result.AddError(fmt.Sprintf("step %d: unexpected error %s", step, errCode))
	}
	if exp.Deleted != nil && *exp.Deleted != deleted {
		result.AddError(fmt.Sprintf("step %d: expected %d deleted, got %d", step, *exp.Deleted, deleted))
	}
	if exp.Inserted != nil && *exp.Inserted != inserted {
		result.AddError(fmt.Sprintf("step %d: expected %d inserted, got %d", step, *exp.Inserted, inserted))
	}
	if exp.Skipped != nil && *exp.Skipped != skipped {
		result.AddError(fmt.Sprintf("step %d: expected skipped %q, got %q", step, *exp.Skipped, skipped))
	}
	if exp.Failed != nil && *exp.Failed != failed {
		result.AddError(fmt.Sprintf("step %d: expected %d failed groupings, got %d", step, *exp.Failed, failed))
	} else if exp.Failed == nil && failed > 0 {
		result.AddError(fmt.Sprintf("step %d: %d groupings failed", step, failed))
	}
}

// rowsFor filters rows to one grouping.
func rowsFor(rows []ir.MembershipRow, groupingID int64) []ir.MembershipRow {
	out := []ir.MembershipRow{}
	for _, r := range rows {
		if r.GroupingID == groupingID {
			out = append(out, r)
		}
	}
	return out
}
