package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/lock"
	"github.com/roach88/autocat/internal/logger"
	"github.com/roach88/autocat/internal/observability"
	"github.com/roach88/autocat/internal/queryir"
	"github.com/roach88/autocat/internal/querysql"
	"github.com/roach88/autocat/internal/store"
)

// Store is the persisted store a Reconciler writes to. *store.Store
// implements it.
type Store interface {
	store.Execer

	// WithTx runs fn in one transaction.
	WithTx(ctx context.Context, fn func(store.Execer) error) error

	// Dialect selects the SQL placeholder syntax.
	Dialect() querysql.Dialect

	// MembershipTable is the default target table.
	MembershipTable() string
}

// RunIDGenerator produces the id stamped on each Result.
type RunIDGenerator interface {
	Generate() string
}

// uuidV7Generator generates time-ordered UUIDv7 run ids.
type uuidV7Generator struct{}

func (uuidV7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SkipReason explains a run that changed nothing on purpose.
type SkipReason string

const (
	// SkipDisabled means the grouping is disabled; its rows were not touched.
	SkipDisabled SkipReason = "disabled"

	// SkipEmptyScope means candidates were given but none was a valid id.
	SkipEmptyScope SkipReason = "empty_scope"
)

// Result describes one run.
type Result struct {
	RunID       string        `json:"run_id"`
	GroupingID  int64         `json:"grouping_id"`
	Fingerprint string        `json:"fingerprint"`
	Scoped      bool          `json:"scoped"`
	Candidates  int           `json:"candidates"`
	Deleted     int64         `json:"deleted"`
	Inserted    int64         `json:"inserted"`
	Skipped     SkipReason    `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Changed reports whether the run added or removed any row.
func (r *Result) Changed() bool {
	return r.Deleted > 0 || r.Inserted > 0
}

// Plan is the pair of statements a run would execute.
type Plan struct {
	GroupingID  int64              `json:"grouping_id"`
	Fingerprint string             `json:"fingerprint"`
	Table       string             `json:"table"`
	Scoped      bool               `json:"scoped"`
	Candidates  []int64            `json:"candidates,omitempty"`
	Skipped     SkipReason         `json:"skipped,omitempty"`
	Match       querysql.Statement `json:"match"`
	Delete      querysql.Statement `json:"delete"`
	Insert      querysql.Statement `json:"insert"`
}

// Reconciler maintains grouping membership.
//
// A Reconciler holds no per-run state and is safe for concurrent use. Runs
// of the same grouping are serialized through its Locker.
type Reconciler struct {
	store       Store
	source      grouping.Source
	compiler    *querysql.Compiler
	table       string
	transaction bool
	locker      lock.Locker
	log         *logger.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	env         grouping.Env
	runIDs      RunIDGenerator
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTable overrides the membership table. Defaults to the store's table.
func WithTable(name string) Option {
	return func(r *Reconciler) { r.table = name }
}

// WithTransaction controls whether delete and insert run in one
// transaction. Enabled by default. When disabled, a failed insert leaves
// the delete applied.
func WithTransaction(enabled bool) Option {
	return func(r *Reconciler) { r.transaction = enabled }
}

// WithLocker sets the per-grouping lock. Defaults to lock.NewLocal().
func WithLocker(l lock.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithLogger sets the logger. Defaults to logger.Nop().
func WithLogger(l *logger.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithTracer sets the tracer. Defaults to the global autocat tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) { r.tracer = t }
}

// WithClock sets the reference time for relative rules such as
// new_arrivals.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.env.Now = now }
}

// WithRunIDGenerator sets the run id source. Defaults to UUIDv7.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Reconciler) { r.runIDs = g }
}

// New creates a Reconciler over s, resolving references through source.
func New(s Store, source grouping.Source, opts ...Option) (*Reconciler, error) {
	if s == nil {
		return nil, errors.New("reconcile: store is required")
	}
	r := &Reconciler{
		store:       s,
		source:      source,
		compiler:    querysql.NewCompiler(s.Dialect()),
		table:       s.MembershipTable(),
		transaction: true,
		locker:      lock.NewLocal(),
		log:         logger.Nop(),
		tracer:      observability.Tracer(),
		env:         grouping.DefaultEnv(),
		runIDs:      uuidV7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if !queryir.ValidIdentifier(r.table) {
		return nil, fmt.Errorf("reconcile: invalid membership table name %q", r.table)
	}
	return r, nil
}

// Maintain resolves ref and reconciles it.
//
// candidates scopes the run: nil or empty means every item. Otherwise ids
// are deduplicated and non-positive ids dropped; if nothing remains the run
// changes nothing and reports SkipEmptyScope.
//
// Resolution and compilation errors are returned before any write.
func (r *Reconciler) Maintain(ctx context.Context, ref int64, candidates []int64) (*Result, error) {
	if ref <= 0 {
		return nil, &Error{
			Code: CodeInvalidGrouping, GroupingID: ref, Step: StepResolve,
			Err: fmt.Errorf("%w: id must be positive, got %d", grouping.ErrInvalidGrouping, ref),
		}
	}
	if r.source == nil {
		return nil, &Error{
			Code: CodeGroupingNotFound, GroupingID: ref, Step: StepResolve,
			Err: fmt.Errorf("%w: no grouping source configured", grouping.ErrGroupingNotFound),
		}
	}

	g, err := r.source.Lookup(ref)
	if err != nil {
		code := CodeInvalidGrouping
		if errors.Is(err, grouping.ErrGroupingNotFound) {
			code = CodeGroupingNotFound
		}
		return nil, &Error{Code: code, GroupingID: ref, Step: StepResolve, Err: err}
	}
	return r.MaintainGrouping(ctx, g, candidates)
}

// MaintainGrouping reconciles an already resolved grouping.
func (r *Reconciler) MaintainGrouping(ctx context.Context, g grouping.Grouping, candidates []int64) (_ *Result, err error) {
	start := time.Now()
	res := &Result{RunID: r.runIDs.Generate(), GroupingID: g.ID}

	ctx, span := r.tracer.Start(ctx, "reconcile.maintain", trace.WithAttributes(
		attribute.Int64("grouping.id", g.ID),
		attribute.String("run.id", res.RunID),
	))
	log := r.log.With("grouping_id", g.ID, "run_id", res.RunID)

	defer func() {
		res.Duration = time.Since(start)
		r.finish(span, log, g, res, err)
		span.End()
	}()

	plan, err := r.Plan(g, candidates)
	if err != nil {
		return nil, err
	}
	res.Fingerprint = plan.Fingerprint
	res.Scoped = plan.Scoped
	res.Candidates = len(plan.Candidates)
	if plan.Skipped != "" {
		res.Skipped = plan.Skipped
		return res, nil
	}

	lockStart := time.Now()
	unlock, err := r.locker.Lock(ctx, lock.GroupingKey(g.ID))
	if err != nil {
		return nil, &Error{Code: CodeLockFailure, GroupingID: g.ID, Step: StepLock, Err: err}
	}
	r.metrics.ObserveLockWait(time.Since(lockStart))
	defer func() {
		// The lock may have expired mid-run. The run itself already
		// finished, so this is only worth a warning.
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			log.Warn("failed to release grouping lock", "error", uerr)
		}
	}()

	apply := func(ex store.Execer) error {
		return r.apply(ctx, ex, plan, res, log)
	}
	if r.transaction {
		err = r.store.WithTx(ctx, apply)
	} else {
		err = apply(r.store)
	}
	if err != nil {
		return nil, r.storeError(g.ID, err)
	}
	return res, nil
}

// apply runs the delete then the insert, recording row counts on res.
func (r *Reconciler) apply(ctx context.Context, ex store.Execer, plan *Plan, res *Result, log *logger.Logger) error {
	log.Debug("deleting stale rows", "sql", plan.Delete.SQL, "args", plan.Delete.Args)
	deleted, err := ex.Exec(ctx, plan.Delete)
	if err != nil {
		return &Error{Code: CodeStoreFailure, GroupingID: plan.GroupingID, Step: StepDelete, Err: err}
	}
	res.Deleted = deleted

	log.Debug("inserting missing rows", "sql", plan.Insert.SQL, "args", plan.Insert.Args)
	inserted, err := ex.Exec(ctx, plan.Insert)
	if err != nil {
		return &Error{Code: CodeStoreFailure, GroupingID: plan.GroupingID, Step: StepInsert, Err: err}
	}
	res.Inserted = inserted
	return nil
}

// storeError maps a run failure to *Error. Transaction begin and commit
// failures surface as store.TxError.
func (r *Reconciler) storeError(groupingID int64, err error) error {
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	var txErr *store.TxError
	if errors.As(err, &txErr) {
		step := StepCommit
		if txErr.Op == "begin" {
			step = StepBegin
		}
		return &Error{Code: CodeStoreFailure, GroupingID: groupingID, Step: step, Err: err}
	}
	return &Error{Code: CodeStoreFailure, GroupingID: groupingID, Step: StepCommit, Err: err}
}

// finish logs, records metrics and closes out the span for a run.
func (r *Reconciler) finish(span trace.Span, log *logger.Logger, g grouping.Grouping, res *Result, err error) {
	label := strconv.FormatInt(g.ID, 10)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.ObserveRun(label, observability.OutcomeFailed, res.Duration, 0, 0)
		log.Error("grouping maintenance failed", "error", err, "duration", res.Duration)
	case res.Skipped != "":
		span.SetAttributes(attribute.String("run.skipped", string(res.Skipped)))
		r.metrics.ObserveRun(label, observability.OutcomeSkipped, res.Duration, 0, 0)
		log.Info("grouping maintenance skipped", "reason", res.Skipped)
	default:
		span.SetAttributes(
			attribute.Bool("run.scoped", res.Scoped),
			attribute.Int64("rows.deleted", res.Deleted),
			attribute.Int64("rows.inserted", res.Inserted),
		)
		r.metrics.ObserveRun(label, observability.OutcomeOK, res.Duration, res.Deleted, res.Inserted)
		log.Info("grouping maintained",
			"name", g.Name,
			"scoped", res.Scoped,
			"candidates", res.Candidates,
			"deleted", res.Deleted,
			"inserted", res.Inserted,
			"duration", res.Duration,
		)
	}
}

// Plan compiles the statements a run of g would execute without running
// them. Disabled groupings and empty scopes yield a plan with Skipped set
// and no statements.
func (r *Reconciler) Plan(g grouping.Grouping, candidates []int64) (*Plan, error) {
	invalid := func(err error) error {
		return &Error{Code: CodeInvalidGrouping, GroupingID: g.ID, Step: StepPlan, Err: err}
	}

	if err := g.Validate(); err != nil {
		return nil, invalid(err)
	}
	fingerprint, err := g.Fingerprint()
	if err != nil {
		return nil, invalid(err)
	}

	ids, scoped := grouping.NormalizeCandidates(candidates)
	plan := &Plan{
		GroupingID:  g.ID,
		Fingerprint: fingerprint,
		Table:       r.table,
		Scoped:      scoped,
		Candidates:  ids,
	}

	switch {
	case !g.Enabled:
		plan.Skipped = SkipDisabled
		return plan, nil
	case scoped && len(ids) == 0:
		plan.Skipped = SkipEmptyScope
		return plan, nil
	}

	matching, err := grouping.Apply(queryir.Universe(), g, r.env)
	if err != nil {
		return nil, invalid(err)
	}

	if plan.Match, err = r.compiler.CompileSelect(matching); err != nil {
		return nil, invalid(err)
	}

	// The delete compares against the full matching set; the candidate
	// list only limits which rows it may remove.
	var deleteScope []int64
	insertQuery := matching
	if scoped {
		deleteScope = ids
		insertQuery = grouping.WithCandidates(matching, ids)
	}

	if plan.Delete, err = r.compiler.CompileDeleteStale(r.table, g.ID, matching, deleteScope); err != nil {
		return nil, invalid(err)
	}
	if plan.Insert, err = r.compiler.CompileInsertMatching(r.table, g.ID, insertQuery, g.Position); err != nil {
		return nil, invalid(err)
	}
	return plan, nil
}
