package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joshharrison/schedloom/internal/ctxlog"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/reporter"
	"github.com/joshharrison/schedloom/internal/ui"
	"github.com/spf13/cobra"
)

// settle is how long the watcher waits for a burst of writes to finish.
const settle = 150 * time.Millisecond

func previewCmd() *cobra.Command {
	var flagWatch, flagCritical bool

	cmd := &cobra.Command{
		Use:         "preview <file>",
		Short:       "Schedule a project file without storing anything",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{noStore: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagWatch && flagJSON {
				return fmt.Errorf("--watch cannot be combined with --json")
			}
			if !flagWatch {
				return preview(cmd.Context(), args[0], flagCritical)
			}
			return watch(cmd.Context(), args[0], flagCritical)
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "Re-run whenever the file changes")
	cmd.Flags().BoolVar(&flagCritical, "critical", false, "Only show critical tasks")
	return cmd
}

func preview(ctx context.Context, path string, criticalOnly bool) error {
	f, err := project.Load(path)
	if err != nil {
		return err
	}
	out, tasks, err := env.orch.Preview(ctx, f)
	if err != nil {
		return err
	}

	rpt := reporter.New(&project.Project{ID: f.Project.ID, Name: f.Project.Name}, tasks)
	if flagJSON {
		data, err := rpt.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	rpt.PrintSchedule(os.Stdout, criticalOnly)
	fmt.Print(reporter.Summary("", out))
	return nil
}

// watch re-runs preview on every change to path until ctx is cancelled.
// The directory is watched rather than the file so that editors which
// replace the file on save are still seen.
func watch(ctx context.Context, path string, criticalOnly bool) error {
	log := ctxlog.FromContext(ctx)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	render := func() {
		fmt.Print("\033[2J\033[H") // clear screen
		fmt.Printf("👀 %s %s\n\n", ui.BoldCyan("Watching"), ui.Dim(path))
		if err := preview(ctx, path, criticalOnly); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.BoldRed("Error:"), err)
		}
	}
	render()

	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\n🛑 %s\n", ui.Yellow("Stopped watching."))
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				log.Debug("project file changed", "file", event.Name, "op", event.Op.String())
				timer.Reset(settle)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("fsnotify error", "error", err)

		case <-timer.C:
			render()
		}
	}
}
