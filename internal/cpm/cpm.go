package cpm

import (
	"sort"

	"github.com/joshharrison/schedloom/internal/graph"
)

// Analyze performs critical path method analysis on a task graph.
//
// In FromStart mode the forward pass runs first from day 0 and the backward
// pass is seeded with the latest early finish. In FromFinish mode the
// backward pass runs first from day 0 (the finish date) and the forward pass
// starts at the earliest late start. Fixed nodes are never computed; their
// stored dates act as both their early and late windows.
func Analyze(g *graph.TaskGraph, anchor Anchor) (*CPMResult, error) {
	anchor.Date = Day(anchor.Date)
	if anchor.Mode == "" {
		anchor.Mode = FromStart
	}

	result := &CPMResult{
		Anchor: anchor,
		Tasks:  make(map[graph.TaskID]*TaskSchedule),
	}

	schedulable := g.Schedulable()
	if len(schedulable) == 0 {
		result.Warnings = append(result.Warnings, &EmptyScheduleWarning{Fixed: g.TaskCount()})
		return result, nil
	}

	p := &passes{
		g:      g,
		anchor: anchor,
		sched:  make([]*TaskSchedule, len(g.Nodes)),
		fixed:  make([]*window, len(g.Nodes)),
	}
	for i, n := range g.Nodes {
		if n.Fixed {
			p.fixed[i] = fixedWindow(n.Task, anchor)
			continue
		}
		ts := &TaskSchedule{TaskID: n.Task.ID, Duration: n.Task.EffectiveDuration()}
		p.sched[i] = ts
		result.Tasks[ts.TaskID] = ts
	}

	switch anchor.Mode {
	case FromFinish:
		result.ProjectEnd = 0
		if err := p.backward(result.ProjectEnd); err != nil {
			return nil, err
		}
		result.ProjectStart = p.minLateStart()
		order, err := p.forward(result.ProjectStart)
		if err != nil {
			return nil, err
		}
		result.TopoOrder = order
	default:
		order, err := p.forward(0)
		if err != nil {
			return nil, err
		}
		result.TopoOrder = order
		result.ProjectStart = p.minEarlyStart()
		result.ProjectEnd = p.maxEarlyFinish()
		if err := p.backward(result.ProjectEnd); err != nil {
			return nil, err
		}
	}
	result.TotalDuration = result.ProjectEnd - result.ProjectStart

	calculateFloat(result)

	for _, id := range result.TopoOrder {
		if result.Tasks[id].IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}
	sort.SliceStable(result.CriticalPath, func(a, b int) bool {
		ta, tb := result.Tasks[result.CriticalPath[a]], result.Tasks[result.CriticalPath[b]]
		if ta.ES != tb.ES {
			return ta.ES < tb.ES
		}
		return ta.TaskID < tb.TaskID
	})

	result.ScheduledCount = len(result.Tasks)
	result.CriticalCount = len(result.CriticalPath)
	for _, id := range result.CriticalPath {
		result.CriticalPathLength += result.Tasks[id].Duration
	}

	// Compute waves: group tasks by earliest start day
	result.Waves = computeWaves(result)

	return result, nil
}

// calculateFloat derives float and criticality. Tasks missing either pass
// keep the zero default and are not critical.
func calculateFloat(result *CPMResult) {
	for _, ts := range result.Tasks {
		if ts.HasEarly && ts.HasLate {
			ts.Float = ts.LS - ts.ES
			ts.IsCritical = ts.Float == 0
		} else {
			ts.Float = 0
			ts.IsCritical = false
		}
	}
}

// passes carries the per-run arena state shared by the forward and
// backward computations.
type passes struct {
	g      *graph.TaskGraph
	anchor Anchor
	sched  []*TaskSchedule // nil for fixed nodes
	fixed  []*window       // nil for schedulable nodes or fixed nodes without dates
}

// fixedWindow reads a fixed task's stored dates as day offsets.
func fixedWindow(t *graph.Task, anchor Anchor) *window {
	switch {
	case t.Start != nil && t.Finish != nil:
		return &window{start: DaysBetween(anchor.Date, *t.Start), finish: DaysBetween(anchor.Date, *t.Finish)}
	case t.Start != nil:
		s := DaysBetween(anchor.Date, *t.Start)
		return &window{start: s, finish: s + t.EffectiveDuration()}
	case t.Finish != nil:
		f := DaysBetween(anchor.Date, *t.Finish)
		return &window{start: f - t.EffectiveDuration(), finish: f}
	}
	return nil
}

func (p *passes) early(i int) (window, bool) {
	if ts := p.sched[i]; ts != nil {
		return window{start: ts.ES, finish: ts.EF}, ts.HasEarly
	}
	if w := p.fixed[i]; w != nil {
		return *w, true
	}
	return window{}, false
}

func (p *passes) late(i int) (window, bool) {
	if ts := p.sched[i]; ts != nil {
		return window{start: ts.LS, finish: ts.LF}, ts.HasLate
	}
	if w := p.fixed[i]; w != nil {
		return *w, true
	}
	return window{}, false
}

// forward computes ES/EF for every schedulable node and returns the order
// in which they were computed.
func (p *passes) forward(start int) ([]graph.TaskID, error) {
	var order []graph.TaskID
	err := p.relax("forward", p.g.Preds, p.g.Succs, func(i int) {
		ts := p.sched[i]
		es, constrained := start, false
		for _, e := range p.g.Preds[i] {
			ref, ok := p.early(e.Node)
			if !ok {
				continue
			}
			c := forwardConstraint[e.Type](ref, e.Lag)
			if !constrained || c > es {
				es, constrained = c, true
			}
		}
		ts.ES = es
		ts.EF = es + ts.Duration
		ts.HasEarly = true
		order = append(order, ts.TaskID)
	})
	return order, err
}

// backward computes LS/LF for every schedulable node.
func (p *passes) backward(end int) error {
	return p.relax("backward", p.g.Succs, p.g.Preds, func(i int) {
		ts := p.sched[i]
		lf, constrained := end, false
		for _, e := range p.g.Succs[i] {
			ref, ok := p.late(e.Node)
			if !ok {
				continue
			}
			c := backwardConstraint[e.Type](ref, e.Lag)
			if !constrained || c < lf {
				lf, constrained = c, true
			}
		}
		ts.LF = lf
		ts.LS = lf - ts.Duration
		ts.HasLate = true
	})
}

// relax is the worklist driver shared by both passes. Each schedulable node
// carries a count of blockers not yet done and is queued once that count
// reaches zero, so every node is visited exactly once. Nodes still pending
// when the queue drains sit on or behind a cycle.
func (p *passes) relax(pass string, blockers, next [][]graph.Edge, visit func(int)) error {
	n := len(p.g.Nodes)
	pending := make([]int, n)
	done := make([]bool, n)
	remaining := 0

	var queue []int
	for i := range p.g.Nodes {
		if p.sched[i] == nil {
			done[i] = true
			continue
		}
		remaining++
		for _, e := range blockers[i] {
			if p.sched[e.Node] != nil {
				pending[i]++
			}
		}
		if pending[i] == 0 {
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		visit(i)
		done[i] = true
		remaining--

		for _, e := range next[i] {
			j := e.Node
			if p.sched[j] == nil {
				continue
			}
			pending[j]--
			if pending[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if remaining > 0 {
		cerr := &CycleDetectedError{Pass: pass, Cycle: p.g.DetectCycle()}
		for i := range p.g.Nodes {
			if !done[i] {
				cerr.Pending = append(cerr.Pending, p.g.ID(i))
			}
		}
		return cerr
	}
	return nil
}

func (p *passes) minEarlyStart() int {
	first, v := true, 0
	for _, ts := range p.sched {
		if ts != nil && (first || ts.ES < v) {
			first, v = false, ts.ES
		}
	}
	return v
}

func (p *passes) maxEarlyFinish() int {
	first, v := true, 0
	for _, ts := range p.sched {
		if ts != nil && (first || ts.EF > v) {
			first, v = false, ts.EF
		}
	}
	return v
}

func (p *passes) minLateStart() int {
	first, v := true, 0
	for _, ts := range p.sched {
		if ts != nil && (first || ts.LS < v) {
			first, v = false, ts.LS
		}
	}
	return v
}

// computeWaves groups tasks by their earliest start day.
func computeWaves(result *CPMResult) []Wave {
	esGroups := make(map[int][]graph.TaskID)
	for _, id := range result.TopoOrder {
		es := result.Tasks[id].ES
		esGroups[es] = append(esGroups[es], id)
	}

	esValues := make([]int, 0, len(esGroups))
	for es := range esGroups {
		esValues = append(esValues, es)
	}
	sort.Ints(esValues)

	waves := make([]Wave, len(esValues))
	for i, es := range esValues {
		taskIDs := esGroups[es]
		sort.Slice(taskIDs, func(a, b int) bool { return taskIDs[a] < taskIDs[b] })

		hasCritical := false
		for _, id := range taskIDs {
			result.Tasks[id].Wave = i
			if result.Tasks[id].IsCritical {
				hasCritical = true
			}
		}

		// Critical tasks first within a wave
		sort.SliceStable(taskIDs, func(a, b int) bool {
			return result.Tasks[taskIDs[a]].IsCritical && !result.Tasks[taskIDs[b]].IsCritical
		})

		waves[i] = Wave{
			Index:      i,
			Day:        es,
			TaskIDs:    taskIDs,
			IsCritical: hasCritical,
		}
	}

	return waves
}
