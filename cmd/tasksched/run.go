package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aristath/tasksched/internal/config"
	"github.com/aristath/tasksched/internal/events"
	"github.com/aristath/tasksched/internal/jobfile"
	"github.com/aristath/tasksched/internal/logger"
	"github.com/aristath/tasksched/internal/metrics"
	"github.com/aristath/tasksched/internal/process"
	"github.com/aristath/tasksched/internal/profile"
	"github.com/aristath/tasksched/internal/resilience"
	"github.com/aristath/tasksched/internal/scheduler"
	"github.com/aristath/tasksched/internal/tui"
)

// ErrTasksFailed is returned by run when at least one task body failed.
var ErrTasksFailed = errors.New("tasks failed")

const shutdownTimeout = 10 * time.Second

// runOptions holds the run flags. Flags override config only when set.
type runOptions struct {
	configPath  string
	workers     int
	recheck     time.Duration
	metricsAddr string
	profileDB   string
	logLevel    string
	logFormat   string
	logFile     string
	tui         bool
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "Run every task of a job file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), cfg)
			return runJob(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Project config file (default .tasksched/config.json)")
	f.IntVarP(&opts.workers, "workers", "w", 0, "Number of worker loops (0 = one per CPU)")
	f.DurationVar(&opts.recheck, "recheck", 0, "Re-check period for idle workers")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.StringVar(&opts.profileDB, "profile-db", "", "Record task spans into this SQLite file")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	f.StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	f.BoolVar(&opts.tui, "tui", false, "Show live progress in a terminal UI")
	return cmd
}

func (o runOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("recheck") {
		cfg.RecheckInterval = config.Duration(o.recheck)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("profile-db") {
		cfg.ProfileDB = o.profileDB
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
}

// runJob loads the job at path and runs it to completion, writing a summary
// to out and logs to errOut (or the log file).
func runJob(ctx context.Context, out, errOut io.Writer, cfg *config.Config, path string, opts runOptions) error {
	job, err := jobfile.Load(path)
	if err != nil {
		return err
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	logW := errOut
	if opts.tui {
		// The alt screen owns the terminal
		logW = io.Discard
	}
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logW = f
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, logW)

	r, err := newRun(ctx, cfg, job, log)
	if err != nil {
		return err
	}
	defer r.close()

	if opts.tui {
		err = r.executeWithTUI(ctx, opts.configPath)
	} else {
		err = r.execute(ctx)
	}

	r.printSummary(ctx, out)
	if err != nil {
		return err
	}

	if p := r.progress.Progress(); p.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrTasksFailed, p.Failed, p.Total)
	}
	return nil
}

// run holds the components wired for one job execution.
type run struct {
	cfg      *config.Config
	job      *jobfile.Job
	log      zerolog.Logger
	sched    *scheduler.Scheduler
	executor *jobfile.Executor
	bus      *events.EventBus
	progress *events.Publisher
	metrics  *metrics.Collector
	store    *profile.Store
	recorder *profile.Recorder
	procs    *process.Manager
	server   *http.Server
}

func newRun(ctx context.Context, cfg *config.Config, job *jobfile.Job, log zerolog.Logger) (*run, error) {
	r := &run{
		cfg:     cfg,
		job:     job,
		log:     log,
		bus:     events.NewEventBus(),
		metrics: metrics.NewCollector(prometheus.NewRegistry()),
		procs:   process.NewManager(log),
	}
	r.progress = events.NewPublisher(r.bus)

	observers := []scheduler.Observer{r.metrics, r.progress}

	if cfg.ProfileDB != "" {
		store, err := profile.Open(ctx, cfg.ProfileDB)
		if err != nil {
			r.close()
			return nil, err
		}
		r.store = store

		rec, err := profile.NewRecorder(ctx, store, job.Name, log)
		if err != nil {
			r.close()
			return nil, fmt.Errorf("starting profile run: %w", err)
		}
		r.recorder = rec
		observers = append(observers, rec)
		log.Info().Str("run_id", rec.RunID()).Str("db", cfg.ProfileDB).Msg("recording profile")
	}

	if cfg.MetricsAddr != "" {
		srv, err := serveMetrics(cfg.MetricsAddr, r.metrics.Handler(), log)
		if err != nil {
			r.close()
			return nil, err
		}
		r.server = srv
	}

	r.sched = scheduler.New(
		scheduler.WithRecheckInterval(cfg.RecheckInterval.Std()),
		scheduler.WithObserver(observers...),
		scheduler.WithLogger(log),
	)

	policy := &resilience.Policy{
		Retry:    resilience.FromConfig(cfg.Retry),
		Breakers: resilience.NewBreakerRegistry(log),
		Log:      log,
	}
	r.executor = &jobfile.Executor{
		Kinds:  cfg.Kinds,
		Policy: policy,
		Locks:  scheduler.NewResourceLocks(),
		Procs:  r.procs,
	}
	if r.recorder != nil {
		r.executor.Span = r.recorder.Span
	}
	return r, nil
}

// execute submits the job and runs workers until the scheduler drains.
func (r *run) execute(ctx context.Context) error {
	if _, err := jobfile.Submit(r.sched, r.job, r.executor); err != nil {
		return err
	}

	r.log.Info().
		Str("job", r.job.Name).
		Int("tasks", r.job.Count()).
		Int("workers", r.cfg.Workers).
		Msg("running job")

	start := time.Now()
	err := scheduler.RunWorkers(ctx, r.sched, r.cfg.Workers)
	if err != nil {
		if stuck, uerr := r.sched.Unresolvable(); uerr == nil && len(stuck) > 0 {
			r.log.Warn().Int("count", len(stuck)).Msg("tasks left with unsubmitted predecessors")
		}
		return err
	}

	r.log.Info().Dur("elapsed", time.Since(start)).Msg("job finished")
	return nil
}

// executeWithTUI runs the job while a Bubble Tea program renders progress.
// Quitting the UI cancels the run; the UI stays open after the run ends
// until the user quits.
func (r *run) executeWithTUI(ctx context.Context, projectPath string) error {
	globalPath, defaultProject, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	if projectPath == "" {
		projectPath = defaultProject
	}

	// Subscribe before submitting so no event is missed
	model := tui.New(r.bus, r.cfg, globalPath, projectPath)
	p := tea.NewProgram(model, tea.WithAltScreen())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		cancel()
		uiDone <- err
	}()

	runErr := r.execute(runCtx)
	p.Send(tui.RunFinishedMsg{Err: runErr})

	select {
	case err := <-uiDone:
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}
	case <-ctx.Done():
		p.Quit()
		select {
		case <-uiDone:
		case <-time.After(shutdownTimeout):
			r.log.Warn().Msg("TUI did not exit within timeout")
		}
	}

	if runErr != nil && ctx.Err() == nil && errors.Is(runErr, context.Canceled) {
		// Quit from the UI before the run drained
		return errors.New("run cancelled from TUI")
	}
	return runErr
}

// printSummary writes final counts and, when profiling, the span table.
func (r *run) printSummary(ctx context.Context, out io.Writer) {
	// Record the summary even after an interrupt
	ctx = context.WithoutCancel(ctx)

	p := r.progress.Progress()
	fmt.Fprintf(out, "%s: %d tasks, %d finished, %d failed\n", r.job.Name, p.Total, p.Finished, p.Failed)

	if r.recorder == nil {
		return
	}
	if err := r.recorder.Finish(ctx); err != nil {
		r.log.Warn().Err(err).Msg("closing profile run")
	}
	rows, err := r.recorder.Summary(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("reading profile summary")
		return
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, summaryTable(rows))
	}
}

func summaryTable(rows []profile.SummaryRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KIND", "NAME", "COUNT", "FAILED", "TOTAL", "MEAN")
	for _, row := range rows {
		t.Row(
			row.Kind,
			row.Name,
			strconv.Itoa(row.Count),
			strconv.Itoa(row.Failed),
			row.Total.Round(time.Microsecond).String(),
			row.Mean().Round(time.Microsecond).String(),
		)
	}
	return t.Render()
}

func (r *run) close() {
	if n := r.procs.Count(); n > 0 {
		r.log.Warn().Int("count", n).Msg("killing leftover commands")
		if err := r.procs.KillAll(); err != nil {
			r.log.Warn().Err(err).Msg("killing commands")
		}
	}
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.Warn().Err(err).Msg("metrics server shutdown")
		}
		cancel()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn().Err(err).Msg("closing profile store")
		}
	}
	r.bus.Close()
}

// serveMetrics exposes h at /metrics on addr.
func serveMetrics(addr string, h http.Handler, log zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, nil
}
