package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshharrison/schedloom/internal/baseline"
	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/schedule"
	"github.com/joshharrison/schedloom/internal/state"
	"github.com/joshharrison/schedloom/internal/ui"
	"github.com/joshharrison/schedloom/internal/wbs"
)

// Reporter renders a project's schedule for the terminal or as JSON.
type Reporter struct {
	Project *project.Project
	Tasks   []*graph.Task
}

// New creates a Reporter over the active tasks of p, in WBS order.
func New(p *project.Project, tasks []*graph.Task) *Reporter {
	active := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Archived {
			active = append(active, t)
		}
	}
	wbs.Sort(active)
	return &Reporter{Project: p, Tasks: active}
}

// window returns the dates a task is currently planned for: the tentative
// ones while a preview is pending, the canonical ones otherwise.
func window(t *graph.Task) (start, finish *time.Time, tentative bool) {
	if t.TentativeActive {
		return t.TentativeStart, t.TentativeFinish, true
	}
	return t.Start, t.Finish, false
}

// PrintSchedule writes the task table. With criticalOnly set, only critical
// tasks are listed.
func (r *Reporter) PrintSchedule(w io.Writer, criticalOnly bool) {
	tentative := schedule.HasTentative(r.Tasks)
	critical := 0
	for _, t := range r.Tasks {
		if t.IsCritical {
			critical++
		}
	}

	fmt.Fprintf(w, "%s %s: %d tasks, %d critical",
		ui.BoldCyan("📅 "+r.Project.ID), ui.Dim(r.Project.Name), len(r.Tasks), critical)
	if tentative {
		fmt.Fprintf(w, " %s", ui.Cyan("(tentative schedule pending)"))
	}
	fmt.Fprint(w, "\n\n")

	fmt.Fprintf(w, "    %-10s %-6s %-36s %5s  %-10s  %-10s  %6s\n",
		"WBS", "ID", "NAME", "DUR", "START", "FINISH", "FLOAT")
	for _, t := range r.Tasks {
		if criticalOnly && !t.IsCritical {
			continue
		}
		r.printTask(w, t)
	}
}

func (r *Reporter) printTask(w io.Writer, t *graph.Task) {
	icon := ui.StatusIcon(string(schedule.StateOf(t)))

	name := strings.Repeat("  ", max(t.WBSLevel-1, 0)) + t.Name
	if len(name) > 36 {
		name = name[:33] + "..."
	}

	start, finish, tentative := window(t)
	startStr, finishStr := project.FormatDate(start), project.FormatDate(finish)
	if startStr == "" {
		startStr = "-"
	}
	if finishStr == "" {
		finishStr = "-"
	}
	if tentative {
		startStr, finishStr = ui.Cyan(startStr), ui.Cyan(finishStr)
	}

	dur := fmt.Sprintf("%dd", t.EffectiveDuration())
	if t.IsMilestone {
		dur = "◆"
	}

	float := ui.Dim("-")
	if t.EarlyStart != nil && t.LateStart != nil {
		float = ui.Float(t.FloatDays)
	}

	marker := " "
	if t.IsCritical {
		marker = ui.BoldYellow("⚡")
	}

	fmt.Fprintf(w, "  %s %-10s %-6d %-36s %5s  %-10s  %-10s  %6s %s\n",
		icon, t.WBSCode, t.ID, name, dur, startStr, finishStr, float, marker)
}

// PrintWaves writes the tasks of res grouped by early start day.
func (r *Reporter) PrintWaves(w io.Writer, res *cpm.CPMResult) {
	names := make(map[graph.TaskID]string, len(r.Tasks))
	for _, t := range r.Tasks {
		names[t.ID] = t.Name
	}

	for _, wave := range res.Waves {
		label := fmt.Sprintf("%s %d", ui.BoldWhite("DAY"), wave.Day)
		fmt.Fprintf(w, "  🌊 %s %s\n", label, ui.Dim(res.Date(wave.Day).Format(project.DateLayout)))
		for _, id := range wave.TaskIDs {
			marker := " "
			if ts := res.Tasks[id]; ts != nil && ts.IsCritical {
				marker = ui.BoldYellow("⚡")
			}
			fmt.Fprintf(w, "    %s %-6d %s\n", marker, id, names[id])
		}
	}
}

// PrintTree writes a WBS tree.
func PrintTree(w io.Writer, nodes []*wbs.Node) {
	type frame struct {
		node  *wbs.Node
		depth int
	}
	stack := make([]frame, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, frame{nodes[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		t := f.node.Task
		code := t.WBSCode
		if code == "" {
			code = "?"
		}
		fmt.Fprintf(w, "%s%s %s %s\n", strings.Repeat("  ", f.depth), ui.Bold(code), t.Name, ui.Dim(fmt.Sprintf("#%d", t.ID)))

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
}

// PrintRun writes a last-run record.
func PrintRun(w io.Writer, rec *state.RunState) {
	statusText := ui.BoldGreen(string(rec.Status))
	switch rec.Status {
	case state.StatusFailed:
		statusText = ui.BoldRed(string(rec.Status))
	case state.StatusRunning:
		statusText = ui.Cyan(string(rec.Status))
	}

	mode := "direct"
	if rec.Tentative {
		mode = "tentative"
	}

	fmt.Fprintf(w, "%s %s\n", ui.StatusIcon(string(rec.Status)), ui.BoldCyan("Last run of "+rec.ProjectID))
	fmt.Fprintf(w, "%s\n", ui.Cyan("══════════════════════════"))
	fmt.Fprintf(w, "Run:       %s\n", ui.Dim(rec.RunID))
	fmt.Fprintf(w, "Status:    %s\n", statusText)
	fmt.Fprintf(w, "Started:   %s\n", rec.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Duration:  %s\n", rec.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Anchor:    %s (%s, %s)\n", rec.Anchor.Format(project.DateLayout), rec.Mode, mode)
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", ui.Red(rec.Error))
		return
	}
	fmt.Fprintf(w, "Tasks:     %d scheduled, %d critical\n", rec.ScheduledCount, rec.CriticalCount)
	if rec.ProjectStart != nil && rec.ProjectFinish != nil {
		fmt.Fprintf(w, "Window:    %s → %s\n", project.FormatDate(rec.ProjectStart), project.FormatDate(rec.ProjectFinish))
	}
	if len(rec.CriticalPath) > 0 {
		ids := make([]string, len(rec.CriticalPath))
		for i, id := range rec.CriticalPath {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "Critical:  %s\n", ui.BoldYellow("⚡ "+strings.Join(ids, " → ")))
	}
	for _, warn := range rec.Warnings {
		fmt.Fprintf(w, "%s %s\n", ui.Yellow("⚠️  Warning:"), warn)
	}
	for _, e := range rec.Events {
		fmt.Fprintf(w, "  %s %s %d tasks %s\n", ui.Dim("•"), e.Action, e.Tasks, ui.Dim(e.At.Local().Format(time.DateTime)))
	}
}

// PrintVariance writes a baseline comparison.
func PrintVariance(w io.Writer, b *baseline.Baseline, vs []baseline.Variance) {
	fmt.Fprintf(w, "%s %s %s\n\n",
		ui.BoldCyan(fmt.Sprintf("Baseline r%d", b.Revision)), b.Name,
		ui.Dim("taken "+b.CreatedAt.Local().Format(time.DateTime)))

	fmt.Fprintf(w, "  %-10s %-6s %-30s %-10s %7s %7s %7s\n", "WBS", "ID", "NAME", "STATUS", "START", "FINISH", "DUR")
	for _, v := range vs {
		name := v.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(w, "  %-10s %-6d %-30s %-10s %7s %7s %7s\n",
			v.WBSCode, v.TaskID, name, ui.VarianceStatus(string(v.Status)),
			ui.Signed(v.StartDays), ui.Signed(v.FinishDays), ui.Signed(v.DurationDays))
	}
}

// Summary returns a short description of a scheduling run.
func Summary(runID string, out *schedule.Outcome) string {
	var b strings.Builder
	res := out.Result

	title := "Schedule committed"
	if out.Tentative {
		title = "Tentative schedule ready"
	}
	fmt.Fprintf(&b, "\n✅ %s\n", ui.BoldCyan(title))
	fmt.Fprintf(&b, "%s\n", ui.Cyan("═════════════════════════"))
	if runID != "" {
		fmt.Fprintf(&b, "Run:       %s\n", ui.Dim(runID))
	}
	fmt.Fprintf(&b, "Tasks:     %d scheduled, %s\n", out.ScheduledCount, ui.BoldYellow(fmt.Sprintf("%d critical", out.CriticalCount)))
	if out.ScheduledCount > 0 {
		fmt.Fprintf(&b, "Window:    %s → %s (%d days)\n",
			res.Date(res.ProjectStart).Format(project.DateLayout),
			res.Date(res.ProjectEnd).Format(project.DateLayout),
			res.TotalDuration)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(&b, "%s %v\n", ui.Yellow("⚠️  Warning:"), warn)
	}
	if out.Tentative {
		fmt.Fprintf(&b, "%s\n", ui.Dim("Run `schedloom publish` to commit or `schedloom discard` to drop it."))
	}
	return b.String()
}

// JSON returns the machine-readable schedule.
func (r *Reporter) JSON() ([]byte, error) {
	type taskView struct {
		*graph.Task
		State schedule.TaskState `json:"state"`
	}
	type output struct {
		Project *project.Project `json:"project"`
		Tasks   []taskView       `json:"tasks"`
	}

	o := output{Project: r.Project, Tasks: make([]taskView, 0, len(r.Tasks))}
	for _, t := range r.Tasks {
		o.Tasks = append(o.Tasks, taskView{Task: t, State: schedule.StateOf(t)})
	}
	return json.MarshalIndent(o, "", "  ")
}
