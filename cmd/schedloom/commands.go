package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/orchestrator"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/reporter"
	"github.com/joshharrison/schedloom/internal/state"
	"github.com/joshharrison/schedloom/internal/store"
	"github.com/joshharrison/schedloom/internal/ui"
	"github.com/joshharrison/schedloom/internal/viewer"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a YAML or JSON project file, replacing the stored project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := project.Load(args[0])
			if err != nil {
				return err
			}
			p, err := env.orch.Import(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			if flagJSON {
				return outputJSON(p)
			}
			fmt.Printf("📥 %s %s: %d tasks, %d dependencies\n",
				ui.BoldCyan("Imported"), ui.Bold(p.ID), len(f.Tasks), len(f.Dependencies))
			return nil
		},
	}
}

func scheduleCmd() *cobra.Command {
	var flagDirect, flagAll, flagWaves bool

	cmd := &cobra.Command{
		Use:   "schedule [project]",
		Short: "Run the critical path analysis and store the result",
		Long: `Computes early/late dates, float and criticality for every task.
By default the early dates are written as a tentative schedule that can be
published or discarded; --direct writes them straight to the planned dates.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := orchestrator.RunOptions{Tentative: env.cfg.Tentative && !flagDirect}

			if flagAll {
				if len(args) > 0 {
					return fmt.Errorf("--all cannot be combined with a project")
				}
				return scheduleAll(cmd, opts)
			}

			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			rep, err := env.orch.Run(cmd.Context(), pid, opts)
			if err != nil {
				return err
			}

			rpt := reporter.New(rep.Project, rep.Tasks)
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Print(reporter.Summary(rep.RunID, rep.Outcome))
			if flagWaves {
				fmt.Println()
				rpt.PrintWaves(os.Stdout, rep.Outcome.Result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagDirect, "direct", false, "Write planned dates directly instead of a tentative schedule")
	cmd.Flags().BoolVar(&flagAll, "all", false, "Schedule every stored project")
	cmd.Flags().BoolVar(&flagWaves, "waves", false, "Also list tasks grouped by early start day")

	return cmd
}

func scheduleAll(cmd *cobra.Command, opts orchestrator.RunOptions) error {
	results, err := env.orch.RunAll(cmd.Context(), opts)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	if flagJSON {
		type entry struct {
			Project   string `json:"project"`
			RunID     string `json:"run_id,omitempty"`
			Scheduled int    `json:"scheduled,omitempty"`
			Critical  int    `json:"critical,omitempty"`
			Error     string `json:"error,omitempty"`
		}
		out := make([]entry, 0, len(results))
		for _, r := range results {
			e := entry{Project: r.ProjectID}
			if r.Err != nil {
				e.Error = r.Err.Error()
			} else {
				e.RunID = r.Report.RunID
				e.Scheduled = r.Report.Outcome.ScheduledCount
				e.Critical = r.Report.Outcome.CriticalCount
			}
			out = append(out, e)
		}
		if err := outputJSON(out); err != nil {
			return err
		}
	} else {
		ui.PrintLogo()
		fmt.Printf("🚀 %s %d projects (max %d parallel)\n",
			ui.BoldCyan("Scheduling"), len(results), env.cfg.MaxParallel)
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("  %s %-20s %s\n", ui.StatusIcon("failed"), r.ProjectID, ui.Red(r.Err.Error()))
				continue
			}
			o := r.Report.Outcome
			fmt.Printf("  %s %-20s %d scheduled, %s  %s\n", ui.StatusIcon("completed"), r.ProjectID,
				o.ScheduledCount, ui.BoldYellow(fmt.Sprintf("%d critical", o.CriticalCount)),
				ui.Dim(r.Report.Duration.String()))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed to schedule", failed, len(results))
	}
	return nil
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [project]",
		Short: "Commit the tentative schedule to the planned dates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			n, err := env.orch.Publish(cmd.Context(), pid)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Printf("%s No tentative schedule to publish.\n", ui.Dim("◌"))
				return nil
			}
			fmt.Printf("%s Published %s tasks in %s\n", ui.Green("✓"), ui.Bold(n), ui.Bold(pid))
			return nil
		},
	}
}

func discardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard [project]",
		Short: "Drop the tentative schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			n, err := env.orch.Discard(cmd.Context(), pid)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Printf("%s No tentative schedule to discard.\n", ui.Dim("◌"))
				return nil
			}
			fmt.Printf("%s Discarded tentative dates of %s tasks in %s\n", ui.Yellow("🗑"), ui.Bold(n), ui.Bold(pid))
			return nil
		},
	}
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Manage task dependencies",
	}

	var flagType string
	var flagLag int

	add := &cobra.Command{
		Use:   "add <predecessor> <successor>",
		Short: "Add a dependency, refusing ones that would close a cycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(nil, 0)
			if err != nil {
				return err
			}
			pred, succ, err := parseEdge(args)
			if err != nil {
				return err
			}
			typ, err := graph.ParseDepType(flagType)
			if err != nil {
				return err
			}
			dep := graph.Dependency{Predecessor: pred, Successor: succ, Type: typ, Lag: flagLag}
			if err := env.orch.AddDependency(cmd.Context(), pid, dep); err != nil {
				var circ *graph.CircularDependencyError
				if errors.As(err, &circ) && len(circ.Path) > 0 {
					fmt.Fprintf(os.Stderr, "%s existing path: %s\n", ui.Yellow("⚠️"), joinIDs(circ.Path))
				}
				return err
			}
			fmt.Printf("%s Added %s\n", ui.Green("✓"), dep)
			return nil
		},
	}
	add.Flags().StringVarP(&flagType, "type", "t", "FS", "Dependency type: FS, SS, FF, SF")
	add.Flags().IntVar(&flagLag, "lag", 0, "Lag in days (negative for lead)")

	rm := &cobra.Command{
		Use:   "rm <predecessor> <successor>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(nil, 0)
			if err != nil {
				return err
			}
			pred, succ, err := parseEdge(args)
			if err != nil {
				return err
			}
			if err := env.orch.RemoveDependency(cmd.Context(), pid, pred, succ); err != nil {
				return err
			}
			fmt.Printf("%s Removed %d → %d\n", ui.Green("✓"), pred, succ)
			return nil
		},
	}

	ls := &cobra.Command{
		Use:   "ls [project]",
		Short: "List dependencies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			deps, err := env.store.Dependencies(pid)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(deps)
			}
			if len(deps) == 0 {
				fmt.Println(ui.Dim("No dependencies."))
				return nil
			}
			for _, d := range deps {
				fmt.Printf("  %s %s\n", ui.Dim("└──→"), d)
			}
			return nil
		},
	}

	cmd.AddCommand(add, rm, ls)
	return cmd
}

func parseEdge(args []string) (graph.TaskID, graph.TaskID, error) {
	pred, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid predecessor id %q", args[0])
	}
	succ, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid successor id %q", args[1])
	}
	return graph.TaskID(pred), graph.TaskID(succ), nil
}

func joinIDs(ids []graph.TaskID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, " → ")
}

func wbsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wbs [project]",
		Short: "Recompute WBS codes and print the task tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			nodes, err := env.orch.RecomputeWBS(cmd.Context(), pid)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(nodes)
			}
			fmt.Printf("🧵 %s\n", ui.BoldCyan("Work breakdown of "+pid))
			fmt.Println(ui.Cyan("═══════════════════════"))
			reporter.PrintTree(os.Stdout, nodes)
			return nil
		},
	}
}

// load reads a project and its tasks for the read-only commands.
func load(pid string) (*project.Project, []*graph.Task, error) {
	p, err := env.store.Project(pid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("project %q not found (run `schedloom projects` to list them)", pid)
		}
		return nil, nil, err
	}
	tasks, err := env.store.Tasks(pid)
	if err != nil {
		return nil, nil, err
	}
	return p, tasks, nil
}

func showCmd() *cobra.Command {
	var flagCritical bool

	cmd := &cobra.Command{
		Use:   "show [project]",
		Short: "Show the task table in WBS order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			p, tasks, err := load(pid)
			if err != nil {
				return err
			}
			rpt := reporter.New(p, tasks)
			if flagJSON {
				data, err := rpt.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			rpt.PrintSchedule(os.Stdout, flagCritical)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagCritical, "critical", false, "Only show critical tasks")
	return cmd
}

func vizCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "viz [project]",
		Short: "Print the dependency graph in DOT format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			_, tasks, err := load(pid)
			if err != nil {
				return err
			}
			deps, err := env.store.Dependencies(pid)
			if err != nil {
				return err
			}
			printDOT(pid, tasks, deps)
			return nil
		},
	}
}

func printDOT(pid string, tasks []*graph.Task, deps []graph.Dependency) {
	critical := make(map[graph.TaskID]bool, len(tasks))

	fmt.Printf("digraph %q {\n", pid)
	fmt.Println("  rankdir=LR;")
	fmt.Println("  node [shape=box, style=rounded];")
	fmt.Println()

	for _, t := range tasks {
		if t.Archived {
			continue
		}
		critical[t.ID] = t.IsCritical
		label := fmt.Sprintf("%s %s\\n%dd", t.WBSCode, t.Name, t.EffectiveDuration())
		attrs := fmt.Sprintf("label=%q", label)
		switch {
		case t.IsCritical:
			attrs += `, style="rounded,bold", color=red`
		case t.Locked:
			attrs += `, style="rounded,dashed"`
		}
		fmt.Printf("  t%d [%s];\n", t.ID, attrs)
	}

	fmt.Println()

	for _, d := range deps {
		if _, ok := critical[d.Predecessor]; !ok {
			continue
		}
		if _, ok := critical[d.Successor]; !ok {
			continue
		}
		label := d.Type.String()
		if d.Lag != 0 {
			label += fmt.Sprintf("%+dd", d.Lag)
		}
		attrs := fmt.Sprintf("label=%q", label)
		if critical[d.Predecessor] && critical[d.Successor] {
			attrs += ", color=red, penwidth=2"
		}
		fmt.Printf("  t%d -> t%d [%s];\n", d.Predecessor, d.Successor, attrs)
	}

	fmt.Println("}")
}

func shiftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shift [project] <days>",
		Short: "Move the planned dates of every unlocked task",
		Example: `  schedloom shift close-q1 5
  schedloom shift close-q1 -- -3`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			daysArg := args[len(args)-1]
			days, err := strconv.Atoi(daysArg)
			if err != nil {
				return fmt.Errorf("invalid day count %q", daysArg)
			}
			pid, err := projectArg(args[:len(args)-1], 0)
			if err != nil {
				return err
			}
			n, err := env.orch.Shift(cmd.Context(), pid, days)
			if err != nil {
				return err
			}
			fmt.Printf("%s Shifted %s tasks by %s\n", ui.Green("✓"), ui.Bold(n), ui.Bold(fmt.Sprintf("%+dd", days)))
			return nil
		},
	}
}

func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Snapshot planned dates and compare against them",
	}

	var flagName string
	create := &cobra.Command{
		Use:   "create [project]",
		Short: "Snapshot the current planned dates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			b, err := env.orch.CreateBaseline(cmd.Context(), pid, flagName)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(b)
			}
			fmt.Printf("📸 %s r%d of %s (%d tasks)\n", ui.BoldCyan("Baseline"), b.Revision, ui.Bold(pid), len(b.Tasks))
			return nil
		},
	}
	create.Flags().StringVar(&flagName, "name", "", "Baseline name")

	var flagRev int
	diff := &cobra.Command{
		Use:   "diff [project]",
		Short: "Compare planned dates against a baseline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			b, vs, err := env.orch.CompareBaseline(cmd.Context(), pid, flagRev)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no baseline for %s (create one with `schedloom baseline create`)", pid)
				}
				return err
			}
			if flagJSON {
				return outputJSON(vs)
			}
			reporter.PrintVariance(os.Stdout, b, vs)
			return nil
		},
	}
	diff.Flags().IntVar(&flagRev, "rev", 0, "Baseline revision (default latest)")

	ls := &cobra.Command{
		Use:   "ls [project]",
		Short: "List baselines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			bs, err := env.store.Baselines(pid)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(bs)
			}
			for _, b := range bs {
				fmt.Printf("  r%-4d %-24s %s → %s  %s\n", b.Revision, b.Name,
					project.FormatDate(b.Start), project.FormatDate(b.Finish),
					ui.Dim(b.CreatedAt.Local().Format("2006-01-02 15:04")))
			}
			return nil
		},
	}

	cmd.AddCommand(create, diff, ls)
	return cmd
}

func statusCmd() *cobra.Command {
	var flagHistory bool

	cmd := &cobra.Command{
		Use:         "status [project]",
		Short:       "Show the last scheduling run",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{noStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := projectArg(args, 0)
			if err != nil {
				return err
			}
			dir := state.Dir(env.cfg.StateDir)

			if flagHistory {
				runs, err := dir.History(pid)
				if err != nil {
					return err
				}
				if flagJSON {
					return outputJSON(runs)
				}
				if len(runs) == 0 {
					fmt.Println(ui.Dim("No archived runs."))
					return nil
				}
				for _, r := range runs {
					fmt.Printf("  %s %s %-10s %d scheduled, %d critical  %s\n",
						ui.StatusIcon(string(r.Status)), r.StartedAt.Local().Format("2006-01-02 15:04:05"),
						r.Status, r.ScheduledCount, r.CriticalCount, ui.Dim(r.RunID))
				}
				return nil
			}

			if !dir.Exists(pid) {
				return fmt.Errorf("no run recorded for %s (run `schedloom schedule %s`)", pid, pid)
			}
			rec, err := dir.Load(pid)
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(rec)
			}
			reporter.PrintRun(os.Stdout, rec)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagHistory, "history", false, "List archived runs, newest first")
	return cmd
}

func projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List stored projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := env.store.Projects()
			if err != nil {
				return err
			}
			if flagJSON {
				return outputJSON(ps)
			}
			if len(ps) == 0 {
				fmt.Println(ui.Dim("No projects. Import one with `schedloom import <file>`."))
				return nil
			}
			fmt.Printf("  %-20s %-30s %-7s %-10s %-10s\n", "ID", "NAME", "FROM", "START", "FINISH")
			for _, p := range ps {
				fmt.Printf("  %-20s %-30s %-7s %-10s %-10s\n", ui.BoldMagenta(p.ID), p.Name, p.ScheduleFrom,
					project.FormatDate(p.StartDate), project.FormatDate(p.FinishDate))
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve project graphs and metrics over HTTP (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if viewer.IsPortOpen(flagAddr) {
				return fmt.Errorf("something is already listening on %s", flagAddr)
			}
			ln, err := net.Listen("tcp", flagAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", flagAddr, err)
			}
			ui.PrintLogo()
			fmt.Printf("🌐 %s http://%s %s\n", ui.BoldCyan("Serving"), ln.Addr(), ui.Dim("(Ctrl-C to stop)"))

			h := viewer.Handler(env.store, env.registry, env.log.With("component", "viewer"))
			return viewer.Serve(cmd.Context(), ln, h)
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", "localhost:7171", "Listen address")
	return cmd
}
