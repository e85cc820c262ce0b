// Package orchestrator runs the scheduling engine against the store: it
// loads a project, serializes writers per project, persists the result and
// records logs, metrics, traces and run records along the way.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joshharrison/schedloom/internal/baseline"
	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/ctxlog"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/metrics"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/schedule"
	"github.com/joshharrison/schedloom/internal/state"
	"github.com/joshharrison/schedloom/internal/store"
	"github.com/joshharrison/schedloom/internal/wbs"
)

var tracer = otel.Tracer("schedloom.orchestrator")

// Orchestrator drives scheduling operations against a Store.
type Orchestrator struct {
	Config  Config
	store   Store
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a new Orchestrator. A nil m records into unregistered
// collectors.
func New(st Store, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Orchestrator{
		Config:  cfg,
		store:   st,
		metrics: m,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock takes the writer lock of pid and returns its release.
func (o *Orchestrator) lock(pid string) func() {
	o.mu.Lock()
	l, ok := o.locks[pid]
	if !ok {
		l = &sync.Mutex{}
		o.locks[pid] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) span(ctx context.Context, name, pid string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "orchestrator."+name, trace.WithAttributes(attribute.String("schedloom.project", pid)))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Run schedules one project and persists every task in one write. A run
// that fails in either pass writes nothing.
func (o *Orchestrator) Run(ctx context.Context, pid string, opts RunOptions) (*RunReport, error) {
	ctx, span := o.span(ctx, "Run", pid)
	defer span.End()

	unlock := o.lock(pid)
	defer unlock()

	started := time.Now()
	runID := uuid.NewString()
	span.SetAttributes(attribute.String("schedloom.run_id", runID), attribute.Bool("schedloom.tentative", opts.Tentative))
	ctx = ctxlog.With(ctx, "project", pid, "run_id", runID)
	log := ctxlog.FromContext(ctx)

	p, err := o.store.Project(pid)
	if err != nil {
		return nil, fail(span, err)
	}
	tasks, err := o.store.Tasks(pid)
	if err != nil {
		return nil, fail(span, err)
	}
	deps, err := o.store.Dependencies(pid)
	if err != nil {
		return nil, fail(span, err)
	}

	anchor := p.Anchor(o.Config.Now())
	rec := o.newRecord(log, runID, pid)
	if rec != nil {
		rec.Mode = string(anchor.Mode)
		rec.Anchor = anchor.Date
		rec.Tentative = opts.Tentative
	}

	log.Debug("scheduling", "tasks", len(tasks), "dependencies", len(deps), "mode", anchor.Mode, "anchor", anchor.Date.Format(project.DateLayout))

	out, err := schedule.Run(tasks, deps, schedule.Options{
		Anchor:    anchor,
		Tentative: opts.Tentative,
		Fixed:     p.OutsideWindow,
	})
	if err == nil {
		err = o.store.PutTasks(pid, tasks)
	}

	elapsed := time.Since(started)
	o.metrics.RunDuration.Observe(elapsed.Seconds())
	o.metrics.Runs.WithLabelValues(string(anchor.Mode), strconv.FormatBool(opts.Tentative), outcomeOf(err)).Inc()

	if err != nil {
		log.Error("schedule run failed", "error", err)
		o.finishRecord(log, rec, err)
		return nil, fail(span, err)
	}

	res := out.Result
	o.metrics.ScheduledTasks.WithLabelValues(pid).Set(float64(out.ScheduledCount))
	o.metrics.CriticalTasks.WithLabelValues(pid).Set(float64(out.CriticalCount))
	o.metrics.ProjectDuration.WithLabelValues(pid).Set(float64(res.TotalDuration))
	span.SetAttributes(
		attribute.Int("schedloom.scheduled", out.ScheduledCount),
		attribute.Int("schedloom.critical", out.CriticalCount),
	)

	for _, w := range res.Warnings {
		log.Warn("schedule warning", "warning", w)
	}
	log.Info("schedule run complete",
		"scheduled", out.ScheduledCount,
		"critical", out.CriticalCount,
		"duration_days", res.TotalDuration,
		"tentative", opts.Tentative,
		"elapsed", elapsed)

	if rec != nil {
		rec.ScheduledCount = out.ScheduledCount
		rec.CriticalCount = out.CriticalCount
		if out.ScheduledCount > 0 {
			ps, pe := res.Date(res.ProjectStart), res.Date(res.ProjectEnd)
			rec.ProjectStart, rec.ProjectFinish = &ps, &pe
		}
		for _, id := range res.CriticalPath {
			rec.CriticalPath = append(rec.CriticalPath, int64(id))
		}
		for _, w := range res.Warnings {
			rec.Warnings = append(rec.Warnings, w.Error())
		}
		o.finishRecord(log, rec, nil)
	}

	return &RunReport{
		RunID:    runID,
		Project:  p,
		Outcome:  out,
		Tasks:    tasks,
		Duration: elapsed,
	}, nil
}

// outcomeOf maps a run error to its metrics label.
func outcomeOf(err error) string {
	var ige *graph.InvalidGraphError
	var cde *cpm.CycleDetectedError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &ige):
		return metrics.OutcomeInvalid
	case errors.As(err, &cde):
		return metrics.OutcomeCycle
	default:
		return metrics.OutcomeError
	}
}

func (o *Orchestrator) newRecord(log *slog.Logger, runID, pid string) *state.RunState {
	if o.Config.StateDir == "" {
		return nil
	}
	rec, err := state.Dir(o.Config.StateDir).New(runID, pid)
	if err != nil {
		log.Warn("could not create run record", "error", err)
		return nil
	}
	return rec
}

func (o *Orchestrator) finishRecord(log *slog.Logger, rec *state.RunState, runErr error) {
	if rec == nil {
		return
	}
	if err := rec.Finish(runErr); err != nil {
		log.Warn("could not save run record", "error", err)
	}
}

func (o *Orchestrator) recordEvent(ctx context.Context, pid, action string, n int) {
	o.metrics.Transitions.WithLabelValues(action).Add(float64(n))
	if o.Config.StateDir == "" {
		return
	}
	dir := state.Dir(o.Config.StateDir)
	if !dir.Exists(pid) {
		return
	}
	rec, err := dir.Load(pid)
	if err == nil {
		err = rec.Record(action, n)
	}
	if err != nil {
		ctxlog.FromContext(ctx).Warn("could not update run record", "project", pid, "error", err)
	}
}

// mutate loads the tasks of pid, applies fn and stores them again, all
// under the project's writer lock.
func (o *Orchestrator) mutate(ctx context.Context, name, pid string, fn func([]*graph.Task) int) (int, error) {
	ctx, span := o.span(ctx, name, pid)
	defer span.End()

	unlock := o.lock(pid)
	defer unlock()

	tasks, err := o.store.Tasks(pid)
	if err != nil {
		return 0, fail(span, err)
	}
	n := fn(tasks)
	if err := o.store.PutTasks(pid, tasks); err != nil {
		return 0, fail(span, err)
	}
	span.SetAttributes(attribute.Int("schedloom.tasks", n))
	ctxlog.FromContext(ctx).Info(name, "project", pid, "tasks", n)
	return n, nil
}

// Publish commits every tentative schedule of pid and returns how many
// tasks were committed.
func (o *Orchestrator) Publish(ctx context.Context, pid string) (int, error) {
	n, err := o.mutate(ctx, "publish", pid, schedule.Publish)
	if err != nil {
		return 0, err
	}
	o.recordEvent(ctx, pid, "publish", n)
	return n, nil
}

// Discard clears every tentative schedule of pid.
func (o *Orchestrator) Discard(ctx context.Context, pid string) (int, error) {
	n, err := o.mutate(ctx, "discard", pid, schedule.Discard)
	if err != nil {
		return 0, err
	}
	o.recordEvent(ctx, pid, "discard", n)
	return n, nil
}

// Shift moves the canonical dates of every unlocked task of pid by days.
func (o *Orchestrator) Shift(ctx context.Context, pid string, days int) (int, error) {
	n, err := o.mutate(ctx, "shift", pid, func(tasks []*graph.Task) int {
		return schedule.Shift(tasks, days)
	})
	if err != nil {
		return 0, err
	}
	o.recordEvent(ctx, pid, "shift", n)
	return n, nil
}

// RecomputeWBS renumbers the task tree of pid and returns it.
func (o *Orchestrator) RecomputeWBS(ctx context.Context, pid string) ([]*wbs.Node, error) {
	var tree []*wbs.Node
	_, err := o.mutate(ctx, "recompute_wbs", pid, func(tasks []*graph.Task) int {
		wbs.Recompute(tasks)
		tree = wbs.Tree(tasks)
		return len(tasks)
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// AddDependency inserts a dependency through the cycle guard.
func (o *Orchestrator) AddDependency(ctx context.Context, pid string, dep graph.Dependency) error {
	ctx, span := o.span(ctx, "AddDependency", pid)
	defer span.End()

	unlock := o.lock(pid)
	defer unlock()

	if err := o.store.AddDependency(pid, dep); err != nil {
		reason := rejection(err)
		o.metrics.DependencyErrors.WithLabelValues(reason).Inc()
		ctxlog.FromContext(ctx).Warn("dependency rejected", "project", pid, "dependency", dep.String(), "reason", reason)
		return fail(span, err)
	}
	ctxlog.FromContext(ctx).Info("dependency added", "project", pid, "dependency", dep.String())
	return nil
}

// rejection maps an AddDependency error to its metrics label.
func rejection(err error) string {
	var circ *graph.CircularDependencyError
	var dup *graph.DuplicateDependencyError
	switch {
	case errors.As(err, &circ):
		return "circular"
	case errors.As(err, &dup):
		return "duplicate"
	case errors.Is(err, graph.ErrSelfDependency):
		return "self"
	case errors.Is(err, store.ErrCrossProject):
		return "cross_project"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}

// RemoveDependency deletes the edge pred → succ.
func (o *Orchestrator) RemoveDependency(ctx context.Context, pid string, pred, succ graph.TaskID) error {
	ctx, span := o.span(ctx, "RemoveDependency", pid)
	defer span.End()

	unlock := o.lock(pid)
	defer unlock()

	if err := o.store.RemoveDependency(pid, pred, succ); err != nil {
		return fail(span, err)
	}
	ctxlog.FromContext(ctx).Info("dependency removed", "project", pid, "predecessor", pred, "successor", succ)
	return nil
}

// Import stores the project in f, replacing any previous version, with
// freshly computed WBS codes. The last-run record of a replaced project is
// dropped; its history is kept.
func (o *Orchestrator) Import(ctx context.Context, f *project.File) (*project.Project, error) {
	p, tasks, deps, err := f.Build()
	if err != nil {
		return nil, err
	}

	ctx, span := o.span(ctx, "Import", p.ID)
	defer span.End()

	unlock := o.lock(p.ID)
	defer unlock()

	wbs.Recompute(tasks)
	if err := o.store.Import(p, tasks, deps); err != nil {
		return nil, fail(span, err)
	}
	if o.Config.StateDir != "" {
		if err := state.Dir(o.Config.StateDir).Clean(p.ID); err != nil {
			ctxlog.FromContext(ctx).Warn("could not clear run record", "project", p.ID, "error", err)
		}
	}
	ctxlog.FromContext(ctx).Info("project imported", "project", p.ID, "tasks", len(tasks), "dependencies", len(deps))
	return p, nil
}

// Preview schedules the project in f without touching the store. The
// returned tasks carry the computed dates.
func (o *Orchestrator) Preview(ctx context.Context, f *project.File) (*schedule.Outcome, []*graph.Task, error) {
	p, tasks, deps, err := f.Build()
	if err != nil {
		return nil, nil, err
	}
	_, span := o.span(ctx, "Preview", p.ID)
	defer span.End()

	wbs.Recompute(tasks)
	out, err := schedule.Run(tasks, deps, schedule.Options{
		Anchor:    p.Anchor(o.Config.Now()),
		Tentative: true,
		Fixed:     p.OutsideWindow,
	})
	if err != nil {
		return nil, nil, fail(span, err)
	}
	return out, tasks, nil
}

// CreateBaseline snapshots the canonical dates of pid under the next
// revision.
func (o *Orchestrator) CreateBaseline(ctx context.Context, pid, name string) (*baseline.Baseline, error) {
	ctx, span := o.span(ctx, "CreateBaseline", pid)
	defer span.End()

	unlock := o.lock(pid)
	defer unlock()

	tasks, err := o.store.Tasks(pid)
	if err != nil {
		return nil, fail(span, err)
	}
	b := baseline.Capture(pid, 0, name, tasks, o.Config.Now())
	if _, err := o.store.PutBaseline(b); err != nil {
		return nil, fail(span, err)
	}
	ctxlog.FromContext(ctx).Info("baseline created", "project", pid, "revision", b.Revision, "tasks", len(b.Tasks))
	return b, nil
}

// CompareBaseline reports the drift of pid against a baseline revision
// (0 for the latest).
func (o *Orchestrator) CompareBaseline(ctx context.Context, pid string, rev int) (*baseline.Baseline, []baseline.Variance, error) {
	_, span := o.span(ctx, "CompareBaseline", pid)
	defer span.End()

	b, err := o.store.Baseline(pid, rev)
	if err != nil {
		return nil, nil, fail(span, err)
	}
	tasks, err := o.store.Tasks(pid)
	if err != nil {
		return nil, nil, fail(span, err)
	}
	return b, baseline.Compare(b, tasks), nil
}

// RunAll schedules every project in the store, at most Config.MaxParallel
// at a time. A failing project does not stop the others; its error is in
// its ProjectResult. The returned error is only set when the batch itself
// could not run.
func (o *Orchestrator) RunAll(ctx context.Context, opts RunOptions) ([]ProjectResult, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.RunAll")
	defer span.End()

	projects, err := o.store.Projects()
	if err != nil {
		return nil, fail(span, err)
	}

	results := make([]ProjectResult, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Config.MaxParallel)

	for i, p := range projects {
		i, pid := i, p.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = ProjectResult{ProjectID: pid, Err: err}
				return nil
			}
			rep, err := o.Run(gctx, pid, opts)
			results[i] = ProjectResult{ProjectID: pid, Report: rep, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, fail(span, err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("schedloom.projects", len(projects)), attribute.Int("schedloom.failed", failed))
	if err := ctx.Err(); err != nil {
		return results, fail(span, fmt.Errorf("run all: %w", err))
	}
	return results, nil
}
