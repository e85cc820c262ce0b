package cpm

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joshharrison/schedloom/internal/graph"
)

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func mkTask(id graph.TaskID, dur int) *graph.Task {
	return &graph.Task{ID: id, Duration: dur}
}

func dep(pred, succ graph.TaskID, typ graph.DepType, lag int) graph.Dependency {
	return graph.Dependency{Predecessor: pred, Successor: succ, Type: typ, Lag: lag}
}

func analyze(t *testing.T, tasks []*graph.Task, deps []graph.Dependency, mode Mode) *CPMResult {
	t.Helper()
	g, err := graph.Build(tasks, deps, nil)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	result, err := Analyze(g, Anchor{Date: day0, Mode: mode})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestAnalyze_LinearChain(t *testing.T) {
	// 1(5) -> 2(3), FS lag 0
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 3)},
		[]graph.Dependency{dep(1, 2, graph.FS, 0)},
		FromStart)

	assertSchedule(t, result.Tasks[1], 0, 5, 0, 5, 0, true)
	assertSchedule(t, result.Tasks[2], 5, 8, 5, 8, 0, true)

	if result.ProjectEnd != 8 {
		t.Errorf("expected project end 8, got %d", result.ProjectEnd)
	}
	if result.CriticalCount != 2 || result.ScheduledCount != 2 {
		t.Errorf("expected 2 scheduled and 2 critical, got %d/%d", result.ScheduledCount, result.CriticalCount)
	}
	if got := result.Date(result.Tasks[2].EF); !got.Equal(day0.AddDate(0, 0, 8)) {
		t.Errorf("expected finish date %v, got %v", day0.AddDate(0, 0, 8), got)
	}
}

func TestAnalyze_ParallelBranchWithLag(t *testing.T) {
	// 1(5) -> 2(3) FS +2
	// 1(5) -> 3(1) FS
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 3), mkTask(3, 1)},
		[]graph.Dependency{dep(1, 2, graph.FS, 2), dep(1, 3, graph.FS, 0)},
		FromStart)

	if result.ProjectEnd != 10 {
		t.Fatalf("expected project end 10, got %d", result.ProjectEnd)
	}
	assertSchedule(t, result.Tasks[1], 0, 5, 0, 5, 0, true)
	assertSchedule(t, result.Tasks[2], 7, 10, 7, 10, 0, true)
	// LS = 10-1 = 9, ES = 5
	assertSchedule(t, result.Tasks[3], 5, 6, 9, 10, 4, false)

	if diff := cmp.Diff([]graph.TaskID{1, 2}, result.CriticalPath); diff != "" {
		t.Errorf("critical path mismatch (-want +got):\n%s", diff)
	}
	if result.CriticalPathLength != 8 {
		t.Errorf("expected critical path length 8, got %d", result.CriticalPathLength)
	}
}

func TestAnalyze_MilestoneDurationForcedToZero(t *testing.T) {
	m := mkTask(2, 7)
	m.IsMilestone = true
	result := analyze(t,
		[]*graph.Task{mkTask(1, 4), m},
		[]graph.Dependency{dep(1, 2, graph.FS, 0)},
		FromStart)

	assertSchedule(t, result.Tasks[1], 0, 4, 0, 4, 0, true)
	assertSchedule(t, result.Tasks[2], 4, 4, 4, 4, 0, true)
}

func TestAnalyze_DiamondWithEstimates(t *testing.T) {
	// 1(5) -> 2(1) -> 4(1)
	// 1(5) -> 3(10) -> 4(1)
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 1), mkTask(3, 10), mkTask(4, 1)},
		[]graph.Dependency{
			dep(1, 2, graph.FS, 0), dep(1, 3, graph.FS, 0),
			dep(2, 4, graph.FS, 0), dep(3, 4, graph.FS, 0),
		},
		FromStart)

	if result.TotalDuration != 16 {
		t.Errorf("expected total duration 16, got %d", result.TotalDuration)
	}
	if result.Tasks[2].IsCritical {
		t.Error("expected task 2 to NOT be critical")
	}
	if result.Tasks[2].Float != 9 {
		t.Errorf("expected task 2 float=9, got %d", result.Tasks[2].Float)
	}
	for _, id := range []graph.TaskID{1, 3, 4} {
		if !result.Tasks[id].IsCritical {
			t.Errorf("expected task %d to be critical", id)
		}
	}

	// 3 waves: [1], [2,3], [4] with the critical task first
	if len(result.Waves) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(result.Waves))
	}
	if w := result.Waves[1].TaskIDs; len(w) != 2 || w[0] != 3 {
		t.Errorf("expected wave 1 = [3 2], got %v", w)
	}
}

func TestAnalyze_ParallelIndependent(t *testing.T) {
	result := analyze(t,
		[]*graph.Task{mkTask(1, 2), mkTask(2, 5), mkTask(3, 1)},
		nil, FromStart)

	if len(result.Waves) != 1 {
		t.Errorf("expected 1 wave, got %d", len(result.Waves))
	}
	if result.ProjectEnd != 5 {
		t.Errorf("expected project end 5, got %d", result.ProjectEnd)
	}
	// Every task is both a root and a leaf.
	assertSchedule(t, result.Tasks[1], 0, 2, 3, 5, 3, false)
	assertSchedule(t, result.Tasks[2], 0, 5, 0, 5, 0, true)
	assertSchedule(t, result.Tasks[3], 0, 1, 4, 5, 4, false)
}

func TestAnalyze_NegativeLag(t *testing.T) {
	// 2 may overlap the last two days of 1.
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 4)},
		[]graph.Dependency{dep(1, 2, graph.FS, -2)},
		FromStart)

	assertSchedule(t, result.Tasks[2], 3, 7, 3, 7, 0, true)
	assertSchedule(t, result.Tasks[1], 0, 5, 0, 5, 0, true)
}

func TestAnalyze_ConstraintTable(t *testing.T) {
	// Predecessor 1 has ES=0, EF=6; successor 2 has duration 2; lag 1.
	tests := []struct {
		typ    graph.DepType
		wantES int
	}{
		{graph.FS, 7}, // EF + lag
		{graph.SS, 1}, // ES + lag
		{graph.FF, 7}, // EF + lag
		{graph.SF, 1}, // ES + lag
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			result := analyze(t,
				[]*graph.Task{mkTask(1, 6), mkTask(2, 2)},
				[]graph.Dependency{dep(1, 2, tt.typ, 1)},
				FromStart)
			if got := result.Tasks[2].ES; got != tt.wantES {
				t.Errorf("expected successor ES=%d, got %d", tt.wantES, got)
			}
		})
	}
}

func TestConstraintFunctions(t *testing.T) {
	ref := window{start: 10, finish: 14}
	lag := 3

	forward := map[graph.DepType]int{graph.FS: 17, graph.SS: 13, graph.FF: 17, graph.SF: 13}
	backward := map[graph.DepType]int{graph.FS: 7, graph.SS: 7, graph.FF: 11, graph.SF: 11}

	for _, dt := range graph.DepTypes {
		if got := forwardConstraint[dt](ref, lag); got != forward[dt] {
			t.Errorf("forward %s: expected %d, got %d", dt, forward[dt], got)
		}
		if got := backwardConstraint[dt](ref, lag); got != backward[dt] {
			t.Errorf("backward %s: expected %d, got %d", dt, backward[dt], got)
		}
	}
}

func TestAnalyze_BackwardSSAndFF(t *testing.T) {
	// 1(4) -SS+1-> 2(6): 2.ES=1, 2.EF=7 = end. 1.LF = 2.LS - 1 = 0, so 1.LS = -4.
	result := analyze(t,
		[]*graph.Task{mkTask(1, 4), mkTask(2, 6)},
		[]graph.Dependency{dep(1, 2, graph.SS, 1)},
		FromStart)
	assertSchedule(t, result.Tasks[2], 1, 7, 1, 7, 0, true)
	assertSchedule(t, result.Tasks[1], 0, 4, -4, 0, -4, false)

	// 1(4) -FF+1-> 2(2): 2.ES = 1.EF+1 = 5, EF=7. 1.LF = 2.LF - 1 = 6.
	result = analyze(t,
		[]*graph.Task{mkTask(1, 4), mkTask(2, 2)},
		[]graph.Dependency{dep(1, 2, graph.FF, 1)},
		FromStart)
	assertSchedule(t, result.Tasks[2], 5, 7, 5, 7, 0, true)
	assertSchedule(t, result.Tasks[1], 0, 4, 2, 6, 2, false)
}

func TestAnalyze_FromFinish(t *testing.T) {
	// 1(5) -> 2(3), anchored on the finish date.
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 3)},
		[]graph.Dependency{dep(1, 2, graph.FS, 0)},
		FromFinish)

	if result.ProjectEnd != 0 || result.ProjectStart != -8 {
		t.Errorf("expected window [-8, 0], got [%d, %d]", result.ProjectStart, result.ProjectEnd)
	}
	assertSchedule(t, result.Tasks[1], -8, -3, -8, -3, 0, true)
	assertSchedule(t, result.Tasks[2], -3, 0, -3, 0, 0, true)

	if got := result.Date(result.Tasks[1].ES); !got.Equal(day0.AddDate(0, 0, -8)) {
		t.Errorf("expected start %v, got %v", day0.AddDate(0, 0, -8), got)
	}
}

func TestAnalyze_FromFinishParallel(t *testing.T) {
	result := analyze(t,
		[]*graph.Task{mkTask(1, 5), mkTask(2, 2)},
		nil, FromFinish)

	// Both leaves finish on the anchor; the short task gains float forward.
	assertSchedule(t, result.Tasks[1], -5, 0, -5, 0, 0, true)
	assertSchedule(t, result.Tasks[2], -5, -3, -2, 0, 3, false)
}

func TestAnalyze_LockedPredecessorConstrains(t *testing.T) {
	start := day0.AddDate(0, 0, 10)
	finish := day0.AddDate(0, 0, 12)
	locked := &graph.Task{ID: 1, Duration: 2, Locked: true, Start: &start, Finish: &finish}

	result := analyze(t,
		[]*graph.Task{locked, mkTask(2, 3), mkTask(3, 1)},
		[]graph.Dependency{dep(1, 2, graph.FS, 0)},
		FromStart)

	if _, ok := result.Tasks[1]; ok {
		t.Fatal("locked task must not be scheduled")
	}
	if result.ScheduledCount != 2 {
		t.Errorf("expected 2 scheduled tasks, got %d", result.ScheduledCount)
	}
	assertSchedule(t, result.Tasks[2], 12, 15, 12, 15, 0, true)
	assertSchedule(t, result.Tasks[3], 0, 1, 14, 15, 14, false)
}

func TestAnalyze_LockedSuccessorWithoutDates(t *testing.T) {
	locked := &graph.Task{ID: 2, Duration: 2, Locked: true}
	result := analyze(t,
		[]*graph.Task{mkTask(1, 3), locked},
		[]graph.Dependency{dep(1, 2, graph.FS, 0)},
		FromStart)

	// No dates on the locked task, so it imposes nothing.
	assertSchedule(t, result.Tasks[1], 0, 3, 0, 3, 0, true)
}

func TestAnalyze_EmptySchedule(t *testing.T) {
	locked := &graph.Task{ID: 1, Duration: 2, Locked: true}
	result := analyze(t, []*graph.Task{locked}, nil, FromStart)

	if result.ScheduledCount != 0 || result.CriticalCount != 0 {
		t.Errorf("expected nothing scheduled, got %d/%d", result.ScheduledCount, result.CriticalCount)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	var w *EmptyScheduleWarning
	if !errors.As(result.Warnings[0], &w) {
		t.Errorf("expected EmptyScheduleWarning, got %v", result.Warnings[0])
	}
}

func TestAnalyze_CycleDetected(t *testing.T) {
	// 1 -> 2 -> 3 -> 2
	g, err := graph.Build(
		[]*graph.Task{mkTask(1, 1), mkTask(2, 1), mkTask(3, 1)},
		[]graph.Dependency{dep(1, 2, graph.FS, 0), dep(2, 3, graph.FS, 0), dep(3, 2, graph.FS, 0)},
		nil)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	_, err = Analyze(g, Anchor{Date: day0, Mode: FromStart})
	var cerr *CycleDetectedError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
	if cerr.Pass != "forward" {
		t.Errorf("expected forward pass to fail, got %s", cerr.Pass)
	}
	if diff := cmp.Diff([]graph.TaskID{2, 3}, cerr.Pending); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
	t.Logf("cycle error (expected): %v", err)
}

func TestAnalyze_IsolatedCycle(t *testing.T) {
	// No schedulable root can reach the cycle.
	g, err := graph.Build(
		[]*graph.Task{mkTask(1, 1), mkTask(2, 1)},
		[]graph.Dependency{dep(1, 2, graph.FS, 0), dep(2, 1, graph.FS, 0)},
		nil)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	_, err = Analyze(g, Anchor{Date: day0, Mode: FromFinish})
	var cerr *CycleDetectedError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
}

func TestAnalyze_WideMultiRootNetwork(t *testing.T) {
	// 30 roots (1..30), a 30-task chain (31..60), and 30 sinks (61..90)
	// that each wait on every root and on the chain tail.
	var tasks []*graph.Task
	var deps []graph.Dependency
	for id := graph.TaskID(1); id <= 90; id++ {
		tasks = append(tasks, mkTask(id, 1))
	}
	for id := graph.TaskID(31); id < 60; id++ {
		deps = append(deps, dep(id, id+1, graph.FS, 0))
	}
	for sink := graph.TaskID(61); sink <= 90; sink++ {
		for root := graph.TaskID(1); root <= 30; root++ {
			deps = append(deps, dep(root, sink, graph.FS, 0))
		}
		deps = append(deps, dep(60, sink, graph.FS, 0))
	}

	for _, mode := range []Mode{FromStart, FromFinish} {
		result := analyze(t, tasks, deps, mode)
		if result.ScheduledCount != 90 {
			t.Fatalf("%s: expected 90 scheduled, got %d", mode, result.ScheduledCount)
		}
		if result.TotalDuration != 31 {
			t.Errorf("%s: expected total duration 31, got %d", mode, result.TotalDuration)
		}
		if result.CriticalCount != 60 {
			t.Errorf("%s: expected chain and sinks critical (60), got %d", mode, result.CriticalCount)
		}
		if got := result.Tasks[1].Float; got != 29 {
			t.Errorf("%s: expected root float 29, got %d", mode, got)
		}
	}

	result := analyze(t, tasks, deps, FromStart)
	assertSchedule(t, result.Tasks[60], 29, 30, 29, 30, 0, true)
	assertSchedule(t, result.Tasks[90], 30, 31, 30, 31, 0, true)
}

func TestAnalyze_Idempotent(t *testing.T) {
	tasks := []*graph.Task{mkTask(1, 5), mkTask(2, 3), mkTask(3, 1), mkTask(4, 2)}
	deps := []graph.Dependency{
		dep(1, 2, graph.FS, 2), dep(1, 3, graph.SS, 1), dep(3, 4, graph.FF, 0), dep(2, 4, graph.FS, 0),
	}
	first := analyze(t, tasks, deps, FromStart)
	second := analyze(t, tasks, deps, FromStart)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ between identical runs (-first +second):\n%s", diff)
	}
}

func TestAnalyze_Properties(t *testing.T) {
	tasks := []*graph.Task{mkTask(1, 3), mkTask(2, 4), mkTask(3, 2), mkTask(4, 6), mkTask(5, 1)}
	deps := []graph.Dependency{
		dep(1, 3, graph.FS, 0), dep(2, 3, graph.SS, 2), dep(3, 5, graph.FS, 1), dep(4, 5, graph.FF, 0),
	}
	g, err := graph.Build(tasks, deps, nil)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	result, err := Analyze(g, Anchor{Date: day0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range g.Roots {
		if ts := result.Tasks[g.ID(r)]; ts.ES != 0 {
			t.Errorf("root %d: expected ES=0, got %d", ts.TaskID, ts.ES)
		}
	}
	for _, l := range g.Leaves {
		if ts := result.Tasks[g.ID(l)]; ts.LF != result.ProjectEnd {
			t.Errorf("leaf %d: expected LF=%d, got %d", ts.TaskID, result.ProjectEnd, ts.LF)
		}
	}
	for _, ts := range result.Tasks {
		if ts.EF != ts.ES+ts.Duration {
			t.Errorf("task %d: EF %d != ES %d + duration %d", ts.TaskID, ts.EF, ts.ES, ts.Duration)
		}
		if ts.Float != ts.LS-ts.ES {
			t.Errorf("task %d: float %d != LS-ES %d", ts.TaskID, ts.Float, ts.LS-ts.ES)
		}
		if ts.IsCritical != (ts.Float == 0) {
			t.Errorf("task %d: critical=%v with float %d", ts.TaskID, ts.IsCritical, ts.Float)
		}
	}
}

func TestCalculateFloat_MissingPassDefaults(t *testing.T) {
	result := &CPMResult{Tasks: map[graph.TaskID]*TaskSchedule{
		1: {TaskID: 1, ES: 2, HasEarly: true, Float: 7, IsCritical: true},
	}}
	calculateFloat(result)
	if ts := result.Tasks[1]; ts.Float != 0 || ts.IsCritical {
		t.Errorf("expected float=0 critical=false, got %d/%v", ts.Float, ts.IsCritical)
	}
}

func assertSchedule(t *testing.T, ts *TaskSchedule, es, ef, ls, lf, float int, critical bool) {
	t.Helper()
	if ts == nil {
		t.Fatal("missing task schedule")
	}
	if ts.ES != es {
		t.Errorf("task %d: expected ES=%d, got %d", ts.TaskID, es, ts.ES)
	}
	if ts.EF != ef {
		t.Errorf("task %d: expected EF=%d, got %d", ts.TaskID, ef, ts.EF)
	}
	if ts.LS != ls {
		t.Errorf("task %d: expected LS=%d, got %d", ts.TaskID, ls, ts.LS)
	}
	if ts.LF != lf {
		t.Errorf("task %d: expected LF=%d, got %d", ts.TaskID, lf, ts.LF)
	}
	if ts.Float != float {
		t.Errorf("task %d: expected float=%d, got %d", ts.TaskID, float, ts.Float)
	}
	if ts.IsCritical != critical {
		t.Errorf("task %d: expected critical=%v, got %v", ts.TaskID, critical, ts.IsCritical)
	}
}
