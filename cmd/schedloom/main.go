package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshharrison/schedloom/internal/config"
	"github.com/joshharrison/schedloom/internal/ctxlog"
	"github.com/joshharrison/schedloom/internal/metrics"
	"github.com/joshharrison/schedloom/internal/orchestrator"
	"github.com/joshharrison/schedloom/internal/store"
	"github.com/joshharrison/schedloom/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagDB          string
	flagProject     string
	flagJSON        bool
	flagLogLevel    string
	flagLogFormat   string
	flagMetricsFile string
)

// noStore marks commands that never open the database.
const noStore = "no-store"

// env is what every command runs against, set up by the root pre-run hook.
var env struct {
	cfg      config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	store    *store.Store
	orch     *orchestrator.Orchestrator
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "schedloom",
		Short: "Critical path scheduling for project task graphs",
		Long: `Schedloom keeps projects, tasks and their FS/SS/FF/SF dependencies in a
local database, computes early/late dates, float and the critical path,
and lets you review a tentative schedule before publishing it.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.DefaultFile+")")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database directory")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Project id (overrides default_project)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: text, json")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(discardCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(wbsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(vizCmd())
	rootCmd.AddCommand(shiftCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(projectsCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if cerr := shutdown(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.BoldRed("Error:"), err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides, installs the
// logger and opens the store unless the command is marked noStore.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = flagDB
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = flagMetricsFile
	}
	if flags.Changed("project") {
		cfg.DefaultProject = flagProject
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	env.cfg = cfg

	env.log = newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(env.log)
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), env.log))

	env.registry = prometheus.NewRegistry()
	m := metrics.New(env.registry)
	orchCfg := orchestrator.Config{MaxParallel: cfg.MaxParallel, StateDir: cfg.StateDir}

	if cmd.Annotations[noStore] != "" {
		env.orch = orchestrator.New(nil, m, orchCfg)
		return nil
	}

	if err := os.MkdirAll(cfg.DBPath, 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	scfg := store.DefaultConfig(cfg.DBPath)
	scfg.Logger = env.log.With("component", "badger")
	st, err := store.Open(scfg)
	if err != nil {
		return err
	}
	env.store = st
	env.orch = orchestrator.New(st, m, orchCfg)
	return nil
}

// shutdown closes the store and writes the metrics file.
func shutdown() error {
	var errs []error
	if env.store != nil {
		errs = append(errs, env.store.Close())
		env.store = nil
	}
	if env.registry != nil && env.cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(env.cfg.MetricsFile, env.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newLogger(levelStr, formatStr string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// projectArg resolves the project id: the positional argument at i if
// present, then --project, then default_project from the config.
func projectArg(args []string, i int) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	if env.cfg.DefaultProject != "" {
		return env.cfg.DefaultProject, nil
	}
	return "", fmt.Errorf("no project given (pass one, use --project, or set default_project in %s)", config.DefaultFile)
}

func outputJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
