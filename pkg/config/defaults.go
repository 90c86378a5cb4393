package config

import "time"

// Default values for configuration fields.
const (
	// Extraction defaults
	DefaultIDLength          = 12
	DefaultSection           = "General"
	DefaultExtractionTimeout = 5 * time.Second

	// Enforcement defaults
	DefaultEnforcementTimeout = 100 * time.Millisecond
	DefaultMaxRules           = 10000

	// Policy defaults
	DefaultDebounceInterval = 250 * time.Millisecond
	DefaultGitBranch        = "main"
	DefaultGitAuthType      = "none"
	DefaultGitPollInterval  = time.Minute
	DefaultGitPollTimeout   = 30 * time.Second
	DefaultGitLocalPath     = "data/policy-repo"

	// Audit defaults
	DefaultAuditBackend       = "memory"
	DefaultAuditWriteTimeout  = 5 * time.Second
	DefaultSQLitePath         = "data/audit.db"
	DefaultSQLiteDriver       = "sqlite"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultPostgresMaxConns   = int32(10)
	DefaultPostgresMinConns   = int32(1)
	DefaultPostgresIdleTime   = 5 * time.Minute
	DefaultPostgresConnect    = 10 * time.Second
	DefaultSnapshotSchedule   = "0 * * * *"
	DefaultSnapshotDirectory  = "data/snapshots"
	DefaultSnapshotFormat     = "json"

	// Artifact defaults
	DefaultArtifactPackage   = "grcrules"
	DefaultArtifactGenerator = "covenant"

	// Server defaults
	DefaultListenAddress     = "127.0.0.1:8080"
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultMaxBodyBytes      = int64(1 << 20)
	DefaultRequestsPerSecond = 100.0
	DefaultRateLimitBurst    = 200
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReload         = 5 * time.Minute

	// Secrets defaults
	DefaultSecretEnvPrefix = "COVENANT_SECRET_"
	DefaultSecretCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "covenant"
	DefaultTracingService     = "covenant"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
)

// DefaultPolicyExtensions are the file extensions loaded from policy directories.
var DefaultPolicyExtensions = []string{".txt", ".md", ".policy"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
// Fields that are already set are left untouched.
func ApplyDefaults(cfg *Config) {
	applyExtractionDefaults(&cfg.Extraction)
	applyEnforcementDefaults(&cfg.Enforcement)
	applyPolicyDefaults(&cfg.Policy)
	applyAuditDefaults(&cfg.Audit)
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.Artifact.PackageName == "" {
		cfg.Artifact.PackageName = DefaultArtifactPackage
	}
	if cfg.Artifact.Generator == "" {
		cfg.Artifact.Generator = DefaultArtifactGenerator
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretCacheTTL
	}
}

func applyExtractionDefaults(cfg *ExtractionConfig) {
	if cfg.IDLength == 0 {
		cfg.IDLength = DefaultIDLength
	}
	if cfg.DefaultSection == "" {
		cfg.DefaultSection = DefaultSection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultExtractionTimeout
	}
}

func applyEnforcementDefaults(cfg *EnforcementConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultEnforcementTimeout
	}
	if cfg.MaxRules == 0 {
		cfg.MaxRules = DefaultMaxRules
	}
}

func applyPolicyDefaults(cfg *PolicyConfig) {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = append([]string(nil), DefaultPolicyExtensions...)
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}

	git := &cfg.Git
	if git.Branch == "" {
		git.Branch = DefaultGitBranch
	}
	if git.Auth.Type == "" {
		git.Auth.Type = DefaultGitAuthType
	}
	if git.Poll.Interval == 0 {
		git.Poll.Interval = DefaultGitPollInterval
	}
	if git.Poll.Timeout == 0 {
		git.Poll.Timeout = DefaultGitPollTimeout
	}
	if git.Clone.LocalPath == "" {
		git.Clone.LocalPath = DefaultGitLocalPath
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAuditBackend
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultAuditWriteTimeout
	}

	sqlite := &cfg.SQLite
	if sqlite.Path == "" {
		sqlite.Path = DefaultSQLitePath
		sqlite.WALMode = DefaultSQLiteWALMode
	}
	if sqlite.Driver == "" {
		sqlite.Driver = DefaultSQLiteDriver
	}
	if sqlite.MaxOpenConns == 0 {
		sqlite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if sqlite.MaxIdleConns == 0 {
		sqlite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if sqlite.BusyTimeout == 0 {
		sqlite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	pg := &cfg.Postgres
	if pg.MaxConns == 0 {
		pg.MaxConns = DefaultPostgresMaxConns
	}
	if pg.MinConns == 0 {
		pg.MinConns = DefaultPostgresMinConns
	}
	if pg.MaxConnIdleTime == 0 {
		pg.MaxConnIdleTime = DefaultPostgresIdleTime
	}
	if pg.ConnectTimeout == 0 {
		pg.ConnectTimeout = DefaultPostgresConnect
	}

	snap := &cfg.Snapshot
	if snap.Schedule == "" {
		snap.Schedule = DefaultSnapshotSchedule
	}
	if snap.Directory == "" {
		snap.Directory = DefaultSnapshotDirectory
	}
	if snap.Format == "" {
		snap.Format = DefaultSnapshotFormat
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.TLS.ReloadInterval == 0 {
		cfg.TLS.ReloadInterval = DefaultTLSReload
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
