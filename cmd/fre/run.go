package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/journal"
	"mercator-hq/fre/pkg/manager"
	"mercator-hq/fre/pkg/scheduler"
	"mercator-hq/fre/pkg/telemetry/health"
	"mercator-hq/fre/pkg/telemetry/logging"
	"mercator-hq/fre/pkg/telemetry/metrics"
	"mercator-hq/fre/pkg/telemetry/tracing"
)

var runFlags struct {
	rules        []string
	tickInterval time.Duration
	watch        bool
	noConsole    bool
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine",
	Long: `Load rule sets and run the engine.

The engine ticks on the configured interval. Lines read from stdin are
console commands (type "help"); with a tick interval of 0 the engine only
ticks on the "tick" command. Rule files are reloaded when they change if
rules.watch is set, and the new rules take effect at the next tick.

Examples:
  # Run with the rules directory from the config file
  fre run --config fre.yaml

  # Run a rules directory with manual ticks only
  fre run --rules examples/game/rules --tick-interval 0

  # Validate config and rule files without running
  fre run --config fre.yaml --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVarP(&runFlags.rules, "rules", "r", nil, "rule files or directories (forces file mode)")
	runCmd.Flags().DurationVar(&runFlags.tickInterval, "tick-interval", -1, "override runtime.tick_interval (0 ticks on request only)")
	runCmd.Flags().BoolVarP(&runFlags.watch, "watch", "w", false, "reload rule files when they change")
	runCmd.Flags().BoolVar(&runFlags.noConsole, "no-console", false, "do not read console commands from stdin")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and rules without running")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(runFlags.rules) > 0 {
		cfg.Rules.Mode = "file"
		cfg.Rules.Paths = runFlags.rules
	}
	if runFlags.tickInterval >= 0 {
		cfg.Runtime.TickInterval = &runFlags.tickInterval
	}
	if runFlags.watch {
		cfg.Rules.Watch = true
	}

	logger, err := newLogger(cfg.Telemetry.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	ctx = logging.WithRunID(ctx, uuid.NewString())

	if runFlags.dryRun {
		return dryRun(ctx, cfg, logger, cmd.OutOrStdout())
	}

	rt, err := newHost(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer rt.Close()

	var in io.Reader
	if !runFlags.noConsole {
		in = cmd.InOrStdin()
	}
	if err := rt.Run(ctx, in); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

func dryRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	src, err := newRuleSource(cfg, logger)
	if err != nil {
		return err
	}
	eng, err := engine.New(engineConfig(cfg.Engine), engine.WithLogger(logger))
	if err != nil {
		return cli.NewConfigError("engine", err.Error())
	}
	mgr, err := manager.New(src, eng, manager.WithLogger(logger))
	if err != nil {
		return err
	}
	sets, err := mgr.ValidateDryRun(ctx)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	rules := 0
	for _, s := range sets {
		rules += len(s.Rules)
	}
	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "✓ %d rule sets, %d rules\n", len(sets), rules)
	return nil
}

// host owns the engine and the services around it. Only the goroutine
// in Run ticks the engine or changes its contexts.
type host struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	engine    *engine.Engine
	manager   *manager.Manager
	scheduler *scheduler.Scheduler
	collector *metrics.Collector
	checker   *health.Checker
	server    *metrics.Server
	tracer    *tracing.Tracer
	journal   *journal.Store
}

func newHost(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (_ *host, err error) {
	rt := &host{cfg: cfg, logger: logger, out: out}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	rt.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	observers := engine.MultiObserver{engine.NewLogObserver(logger), rt.collector}
	if cfg.Journal.Enabled {
		rt.journal, err = journal.Open(&cfg.Journal, logger)
		if err != nil {
			return nil, err
		}
		observers = append(observers, rt.journal)
	}

	actions := engine.NewActionRegistry()
	actions.Register("log", engine.LogAction(logger))
	actions.SetDefault(printAction(out))

	rt.engine, err = engine.New(engineConfig(cfg.Engine),
		engine.WithLogger(logger),
		engine.WithObserver(observers),
		engine.WithActions(actions),
		engine.WithTracer(rt.tracer.Tracer()),
	)
	if err != nil {
		return nil, cli.NewConfigError("engine", err.Error())
	}

	src, err := newRuleSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.manager, err = manager.New(src, rt.engine,
		manager.WithLogger(logger),
		manager.WithDebounce(cfg.Rules.Debounce),
		manager.WithReloadHook(func(r manager.ReloadResult) {
			rt.collector.RecordReload(r.Duration, r.Rules, r.Err)
		}),
	)
	if err != nil {
		return nil, err
	}

	rt.checker = health.New(0)
	rt.checker.RegisterCheck("rules", rt.manager.HealthCheck)
	if rt.journal != nil {
		rt.checker.RegisterCheck("journal", rt.journal.Ping)
	}
	if cfg.Telemetry.Metrics.Enabled {
		rt.server, err = metrics.NewServer(&cfg.Telemetry.Metrics, rt.collector, rt.checker, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	rt.scheduler = scheduler.New(rt.engine, logger)
	if err := rt.scheduler.AddAll(cfg.Schedules); err != nil {
		return nil, cli.NewConfigError("schedules", err.Error())
	}
	return rt, nil
}

// printAction is the default action handler of fre run.
func printAction(w io.Writer) engine.ActionHandler {
	return func(_ context.Context, a engine.Action) error {
		_, err := fmt.Fprintf(w, "action %s (rule %s, event %s)\n", a.ID, a.RuleID, a.Event.Name)
		return err
	}
}

// Run loads the rule sets and drives the engine until ctx is cancelled,
// the console quits, or the console input ends with automatic ticks off.
func (rt *host) Run(ctx context.Context, in io.Reader) error {
	if err := rt.manager.Load(ctx); err != nil {
		return err
	}
	if rt.server != nil {
		rt.server.Start()
	}
	rt.scheduler.Start(ctx)

	var watchErr chan error
	if rt.cfg.Rules.Watch {
		watchErr = make(chan error, 1)
		go func() { watchErr <- rt.manager.Watch(ctx) }()
	}

	var tickC <-chan time.Time
	if iv := rt.tickInterval(); iv > 0 {
		ticker := time.NewTicker(iv)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var lines <-chan string
	if in != nil {
		lines = readLines(ctx, in)
		fmt.Fprintln(rt.out, `fre ready (type "help" for commands)`)
	}
	if tickC == nil && lines == nil {
		return errors.New("nothing drives the engine: tick interval is 0 and the console is disabled")
	}

	for {
		select {
		case <-ctx.Done():
			rt.logger.InfoContext(ctx, "shutting down")
			return nil
		case <-tickC:
			rt.tick(ctx)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if tickC == nil {
					return nil
				}
				continue
			}
			cmd, err := parseCommand(line)
			if err == nil {
				err = rt.execute(ctx, cmd, rt.out)
			}
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(rt.out, "error:", err)
			}
		case err := <-watchErr:
			if err != nil {
				return err
			}
			watchErr = nil
		}
	}
}

func (rt *host) tickInterval() time.Duration {
	if rt.cfg.Runtime.TickInterval == nil {
		return config.DefaultTickInterval
	}
	return *rt.cfg.Runtime.TickInterval
}

func (rt *host) tick(ctx context.Context) *engine.TickReport {
	return rt.engine.Tick(ctx)
}

// Close stops every service. It is safe on a partly built host.
func (rt *host) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rt.scheduler != nil {
		rt.scheduler.Stop()
	}
	if rt.manager != nil {
		rt.manager.Close()
	}
	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil {
			rt.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("journal close failed", "error", err)
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(ctx); err != nil {
			rt.logger.Warn("tracer shutdown failed", "error", err)
		}
	}
}

// readLines forwards lines from in until it ends or ctx is cancelled.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
