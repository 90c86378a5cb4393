package config

import "time"

// Config is the root configuration structure for covenant.
type Config struct {
	// Extraction controls how policy text is turned into rules.
	Extraction ExtractionConfig `yaml:"extraction"`

	// Enforcement bounds per-request enforcement.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Policy lists policy document sources and watch settings.
	Policy PolicyConfig `yaml:"policy"`

	// Audit selects the audit trail backend and snapshot schedule.
	Audit AuditConfig `yaml:"audit"`

	// Artifact controls validator generation.
	Artifact ArtifactConfig `yaml:"artifact"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures how ${secret:name} references are resolved.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ExtractionConfig configures the rule extractor.
type ExtractionConfig struct {
	// IDLength is the number of hex characters kept from the rule hash.
	// Default: 12
	IDLength int `yaml:"id_length" validate:"min=4,max=64"`

	// DefaultSection labels rules that precede any section header.
	// Default: "General"
	DefaultSection string `yaml:"default_section" validate:"required"`

	// NumberedRules treats numbered lines that contain an obligation as
	// rules instead of section headers.
	// Default: false
	NumberedRules bool `yaml:"numbered_rules"`

	// Timeout bounds one extraction pass.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// EnforcementConfig configures the enforcement engine.
type EnforcementConfig struct {
	// Timeout bounds matching and evaluation of one request.
	// Default: 100ms
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// MaxRules caps the size of the loaded rule set.
	// Default: 10000
	MaxRules int `yaml:"max_rules" validate:"gt=0"`
}

// PolicyConfig configures where policy documents are read from.
type PolicyConfig struct {
	// Paths are files or directories of policy text.
	Paths []string `yaml:"paths"`

	// Extensions limits directory loading to these file extensions.
	// Default: [".txt", ".md", ".policy"]
	Extensions []string `yaml:"extensions" validate:"min=1,dive,startswith=."`

	// Watch reloads documents when files under Paths change.
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a change is applied.
	// Default: 250ms
	DebounceInterval time.Duration `yaml:"debounce_interval" validate:"gte=0"`

	// Git configures a Git repository as an additional source.
	Git GitPolicyConfig `yaml:"git"`
}

// GitPolicyConfig configures a Git policy source.
type GitPolicyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Repository is the clone URL.
	Repository string `yaml:"repository" validate:"required_if=Enabled true"`

	// Branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the policy directory inside the repository.
	Path string `yaml:"path"`

	Auth  GitAuthConfig  `yaml:"auth"`
	Poll  GitPollConfig  `yaml:"poll"`
	Clone GitCloneConfig `yaml:"clone"`
}

// GitAuthConfig configures Git authentication.
type GitAuthConfig struct {
	// Type is "token", "ssh" or "none".
	Type string `yaml:"type" validate:"omitempty,oneof=token ssh none"`

	Token            string `yaml:"token"`
	SSHKeyPath       string `yaml:"ssh_key_path"`
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// GitPollConfig configures repository polling.
type GitPollConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between pulls.
	// Default: 1m
	Interval time.Duration `yaml:"interval" validate:"gte=0"`

	// Timeout for a single clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// GitCloneConfig configures the local clone.
type GitCloneConfig struct {
	// LocalPath is where the repository is cloned.
	LocalPath string `yaml:"local_path"`

	// Depth limits history for shallow clones. Zero clones everything.
	Depth int `yaml:"depth" validate:"gte=0"`

	// CleanOnStart removes an existing clone before cloning.
	CleanOnStart bool `yaml:"clean_on_start"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// Backend is "memory", "sqlite" or "postgres".
	// Default: "memory"
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// WriteTimeout bounds a single append.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SQLiteConfig configures the SQLite audit backend.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite sqlite3"`

	MaxOpenConns int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int `yaml:"max_idle_conns" validate:"gte=0"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// PostgresConfig configures the PostgreSQL audit backend.
type PostgresConfig struct {
	// DSN is a libpq connection string or URL.
	DSN string `yaml:"dsn"`

	MaxConns        int32         `yaml:"max_conns" validate:"gte=0"`
	MinConns        int32         `yaml:"min_conns" validate:"gte=0"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" validate:"gte=0"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" validate:"gte=0"`
}

// SnapshotConfig configures scheduled audit snapshots.
type SnapshotConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a standard five-field cron expression.
	// Default: "0 * * * *"
	Schedule string `yaml:"schedule"`

	// Directory receives snapshot files.
	// Default: "data/snapshots"
	Directory string `yaml:"directory"`

	// Format is "json" or "csv".
	// Default: "json"
	Format string `yaml:"format" validate:"omitempty,oneof=json csv"`
}

// ArtifactConfig configures validator generation.
type ArtifactConfig struct {
	// PackageName is the package clause of generated source.
	// Default: "grcrules"
	PackageName string `yaml:"package_name"`

	// Generator is recorded in exported documents.
	// Default: "covenant"
	Generator string `yaml:"generator"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// ListenAddress is "host:port".
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address" validate:"hostname_port"`

	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// MaxBodyBytes limits request bodies.
	// Default: 1MiB
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures HTTPS for the server.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	CertFile string `yaml:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `yaml:"key_file" validate:"required_if=Enabled true"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version" validate:"omitempty,oneof=1.2 1.3"`

	// CipherSuites restricts TLS 1.2 suites. Empty uses Go's defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often the certificate files are checked for
	// changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval" validate:"gte=0"`
}

// RateLimitConfig configures the token bucket in front of /v1/enforce.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate.
	// Default: 100
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket size.
	// Default: 200
	Burst int `yaml:"burst" validate:"gte=0"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format" validate:"oneof=json text"`

	AddSource bool `yaml:"add_source"`

	// RedactKeys lists additional attribute keys whose values are masked.
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is where metrics are served.
	// Default: "/metrics"
	Path string `yaml:"path" validate:"startswith=/"`

	// Namespace prefixes every metric name.
	// Default: "covenant"
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported on every span.
	// Default: "covenant"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// SecretsConfig configures secret references in configuration values.
// A value such as "postgres://app:${secret:db-password}@db/audit" has the
// reference replaced when the configuration is loaded.
type SecretsConfig struct {
	// EnvPrefix prefixes environment variables holding secrets. The secret
	// "db-password" is read from COVENANT_SECRET_DB_PASSWORD.
	// Default: "COVENANT_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Directory holds one file per secret, as mounted by Kubernetes or
	// Docker. Files take precedence over environment variables.
	Directory string `yaml:"directory"`

	// CacheTTL bounds how long a resolved secret is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}
