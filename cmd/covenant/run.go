package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/evidence/export"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/evidence/snapshot"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/policy/git"
	"mercator-hq/covenant/pkg/policy/source"
	"mercator-hq/covenant/pkg/server"
	"mercator-hq/covenant/pkg/telemetry/health"
	"mercator-hq/covenant/pkg/telemetry/metrics"
	"mercator-hq/covenant/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the enforcement server",
	Long: `Start the HTTP enforcement server with the specified configuration.

Policy documents are loaded from policy.paths (and policy.git when enabled)
before the server accepts requests. With policy.watch set, edits to those
files are applied without a restart.

Examples:
  # Start with defaults and a policy directory from the environment
  COVENANT_POLICY_PATHS=./policies covenant run

  # Start with a config file
  covenant run --config /etc/covenant/config.yaml

  # Override listen address
  covenant run --listen 0.0.0.0:8080

  # Validate config without starting the server
  covenant run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
		if err := config.Validate(cfg); err != nil {
			return cli.NewConfigError("server.listen_address", err.Error())
		}
	}
	config.SetConfig(cfg)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tp, err := tracing.New(ctx, &cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var col *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		col = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	rec, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open audit trail: %w", err))
	}
	defer rec.Close()
	logger.Info("audit trail opened", "backend", cfg.Audit.Backend, "entries", rec.Len())

	var opts []engine.Option
	if col != nil {
		opts = append(opts, engine.WithObserver(col))
	}
	eng, err := newEngine(cfg, rec, logger, opts...)
	if err != nil {
		return err
	}

	policies, err := startPolicySources(ctx, cfg, eng, col, logger)
	if err != nil {
		return err
	}
	defer policies.stop()

	if cfg.Audit.Snapshot.Enabled {
		sched, err := startSnapshots(ctx, &cfg.Audit.Snapshot, rec, col)
		if err != nil {
			return cli.NewConfigError("audit.snapshot", err.Error())
		}
		defer sched.Stop()
	}

	srv, err := server.New(&cfg.Server, server.Dependencies{
		Engine:      eng,
		Recorder:    rec,
		Metrics:     col,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Artifact:    artifactOptions(cfg),
		Version:     health.NewVersionInfo(Version, GitCommit, BuildDate),
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("covenant starting",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"rules", len(eng.Rules()),
		"rule_set_version", eng.Version())

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("covenant stopped")
	return nil
}

// policySources holds the background reloaders started for run.
type policySources struct {
	watcher *source.Watcher
	poller  *git.Poller
}

func (p *policySources) stop() {
	if p.poller != nil {
		p.poller.Stop()
	}
	if p.watcher != nil {
		p.watcher.Stop()
	}
}

// startPolicySources performs the initial policy sync and starts the
// file watcher and Git poller when configured. A failed initial sync of
// some documents is logged; the server still starts with what loaded.
func startPolicySources(ctx context.Context, cfg *config.Config, eng *engine.Engine, col *metrics.Collector, logger *slog.Logger) (*policySources, error) {
	var (
		sources []source.Source
		files   *source.FileSource
		repo    *git.Repository
		err     error
	)
	if len(cfg.Policy.Paths) > 0 {
		files = source.NewFileSource(cfg.Policy.Paths, cfg.Policy.Extensions)
		sources = append(sources, files)
	}
	if cfg.Policy.Git.Enabled {
		repo, err = git.NewRepository(&cfg.Policy.Git, cfg.Policy.Extensions)
		if err != nil {
			return nil, cli.NewConfigError("policy.git", err.Error())
		}
		sources = append(sources, source.NewGitSource(repo))
	}
	if len(sources) == 0 {
		logger.Warn("no policy sources configured; every request will fail until policies are uploaded")
		return &policySources{}, nil
	}

	syncer := source.NewSyncer(eng, logger, sources...)
	observe := func(res source.SyncResult, err error) {
		if col != nil {
			col.ObservePolicySync(err)
		}
	}

	res, err := syncer.Sync(ctx)
	observe(res, err)
	if err != nil {
		logger.Warn("initial policy sync incomplete", "failed", res.Failed, "error", err)
	}
	logger.Info("policies loaded", "documents", len(res.Loaded), "version", res.Version)

	ps := &policySources{}
	if cfg.Policy.Watch && files != nil {
		w, err := source.NewWatcher(files, syncer, cfg.Policy.DebounceInterval, logger)
		if err != nil {
			return nil, cli.NewCommandError("run", err)
		}
		w.OnSync = observe
		ps.watcher = w
		go func() {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	if repo != nil && cfg.Policy.Git.Poll.Enabled {
		reload := func(ctx context.Context, commit *git.CommitInfo) error {
			res, err := syncer.Sync(ctx)
			observe(res, err)
			if err == nil {
				logger.Info("policies reloaded from git", "commit", commit.Short(), "version", res.Version)
			}
			return err
		}
		ps.poller = git.NewPoller(repo, cfg.Policy.Git.Poll.Interval, reload, logger)
		if err := ps.poller.Start(ctx); err != nil {
			ps.stop()
			return nil, cli.NewCommandError("run", err)
		}
	}
	return ps, nil
}

// startSnapshots schedules periodic exports of the recorder's trail.
func startSnapshots(ctx context.Context, cfg *config.SnapshotConfig, rec *recorder.Recorder, col *metrics.Collector) (*snapshot.Scheduler, error) {
	exporter, err := export.ForFormat(cfg.Format, true)
	if err != nil {
		return nil, err
	}
	sched := snapshot.NewScheduler(snapshot.NewWriter(rec, exporter, cfg.Directory), cfg.Schedule)
	if col != nil {
		sched.OnSnapshot = func(_ string, err error) { col.ObserveAuditSnapshot(err) }
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}
