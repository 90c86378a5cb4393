package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/covenant/pkg/artifact"
	"mercator-hq/covenant/pkg/cli"
	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/evidence/recorder"
	"mercator-hq/covenant/pkg/evidence/storage"
	"mercator-hq/covenant/pkg/policy/engine"
	"mercator-hq/covenant/pkg/policy/source"
	"mercator-hq/covenant/pkg/rules/extractor"
	"mercator-hq/covenant/pkg/security/secrets"
	"mercator-hq/covenant/pkg/telemetry/logging"
)

// loadConfig reads --config with COVENANT_* overrides, resolves secret
// references and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) && len(verr.Errors) > 0 {
			return nil, cli.NewConfigError(verr.Errors[0].Field, verr.Error())
		}
		return nil, cli.NewConfigError("", err.Error())
	}
	resolver, err := secrets.FromConfig(&cfg.Secrets, nil)
	if err != nil {
		return nil, cli.NewConfigError("secrets.directory", err.Error())
	}
	if err := resolver.ResolveConfig(context.Background(), cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	switch {
	case logLevel != "":
		cfg.Telemetry.Logging.Level = logLevel
	case verbose:
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. One-shot commands log to stderr so
// stdout carries only results.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, w))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// setup loads configuration and the stderr logger shared by every command.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func extractorConfig(cfg *config.Config) *extractor.Config {
	return &extractor.Config{
		IDLength:       cfg.Extraction.IDLength,
		DefaultSection: cfg.Extraction.DefaultSection,
		NumberedRules:  cfg.Extraction.NumberedRules,
	}
}

func engineConfig(cfg *config.Config) *engine.Config {
	return &engine.Config{
		EnforcementTimeout: cfg.Enforcement.Timeout,
		ExtractionTimeout:  cfg.Extraction.Timeout,
		MaxRules:           cfg.Enforcement.MaxRules,
	}
}

func artifactOptions(cfg *config.Config) *artifact.Options {
	return &artifact.Options{
		PackageName: cfg.Artifact.PackageName,
		Generator:   cfg.Artifact.Generator,
	}
}

// newEngine builds an engine over trail using the configured extractor.
func newEngine(cfg *config.Config, trail engine.AuditTrail, logger *slog.Logger, opts ...engine.Option) (*engine.Engine, error) {
	x, err := extractor.New(extractorConfig(cfg), logger)
	if err != nil {
		return nil, cli.NewConfigError("extraction", err.Error())
	}
	opts = append([]engine.Option{engine.WithLogger(logger), engine.WithExtractor(x)}, opts...)
	return engine.New(engineConfig(cfg), trail, opts...)
}

// openStorage opens the configured audit backend.
func openStorage(ctx context.Context, cfg *config.AuditConfig) (evidence.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "postgres":
		return storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		})
	default:
		return nil, cli.NewConfigError("audit.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}

// openRecorder opens the audit backend and resumes its hash chain.
func openRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recorder.Recorder, error) {
	backend, err := openStorage(ctx, &cfg.Audit)
	if err != nil {
		return nil, err
	}
	rec := recorder.New(backend, &recorder.Config{WriteTimeout: cfg.Audit.WriteTimeout}, logger)
	if err := rec.Open(ctx); err != nil {
		rec.Close()
		return nil, err
	}
	return rec, nil
}

// policyPaths returns the --policy flag values or the configured paths.
func policyPaths(cfg *config.Config, flagPaths []string) []string {
	if len(flagPaths) > 0 {
		return flagPaths
	}
	return cfg.Policy.Paths
}

// loadPolicies syncs every policy document under paths into eng.
func loadPolicies(ctx context.Context, cfg *config.Config, eng *engine.Engine, paths []string, logger *slog.Logger) (source.SyncResult, error) {
	if len(paths) == 0 {
		return source.SyncResult{}, cli.NewConfigError("policy.paths", "no policy paths given (use --policy or policy.paths)")
	}
	files := source.NewFileSource(paths, cfg.Policy.Extensions)
	return source.NewSyncer(eng, logger, files).Sync(ctx)
}

// printResult writes v in the --output format.
func printResult(cmd *cobra.Command, v any) error {
	format, err := cli.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}

// writeOutput opens path for writing, or returns stdout when path is empty
// or "-".
func writeOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
