package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "COVENANT_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values and validates the result. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow COVENANT_SECTION_FIELD,
// e.g. COVENANT_AUDIT_BACKEND overrides audit.backend.
//
// The loading sequence is:
//  1. Load YAML from file (or start from defaults when path is empty)
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := ApplyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

type override struct {
	key   string
	apply func(cfg *Config, val string) error
}

func str(set func(*Config, string)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		set(cfg, val)
		return nil
	}
}

func list(set func(*Config, []string)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		set(cfg, out)
		return nil
	}
}

func boolean(set func(*Config, bool)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

func integer(set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		set(cfg, n)
		return nil
	}
}

func float(set func(*Config, float64)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		set(cfg, f)
		return nil
	}
}

func duration(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		set(cfg, d)
		return nil
	}
}

var overrides = []override{
	{"EXTRACTION_ID_LENGTH", integer(func(c *Config, v int) { c.Extraction.IDLength = v })},
	{"EXTRACTION_DEFAULT_SECTION", str(func(c *Config, v string) { c.Extraction.DefaultSection = v })},
	{"EXTRACTION_NUMBERED_RULES", boolean(func(c *Config, v bool) { c.Extraction.NumberedRules = v })},
	{"EXTRACTION_TIMEOUT", duration(func(c *Config, v time.Duration) { c.Extraction.Timeout = v })},

	{"ENFORCEMENT_TIMEOUT", duration(func(c *Config, v time.Duration) { c.Enforcement.Timeout = v })},
	{"ENFORCEMENT_MAX_RULES", integer(func(c *Config, v int) { c.Enforcement.MaxRules = v })},

	{"POLICY_PATHS", list(func(c *Config, v []string) { c.Policy.Paths = v })},
	{"POLICY_EXTENSIONS", list(func(c *Config, v []string) { c.Policy.Extensions = v })},
	{"POLICY_WATCH", boolean(func(c *Config, v bool) { c.Policy.Watch = v })},
	{"POLICY_DEBOUNCE_INTERVAL", duration(func(c *Config, v time.Duration) { c.Policy.DebounceInterval = v })},
	{"POLICY_GIT_ENABLED", boolean(func(c *Config, v bool) { c.Policy.Git.Enabled = v })},
	{"POLICY_GIT_REPOSITORY", str(func(c *Config, v string) { c.Policy.Git.Repository = v })},
	{"POLICY_GIT_BRANCH", str(func(c *Config, v string) { c.Policy.Git.Branch = v })},
	{"POLICY_GIT_PATH", str(func(c *Config, v string) { c.Policy.Git.Path = v })},
	{"POLICY_GIT_AUTH_TYPE", str(func(c *Config, v string) { c.Policy.Git.Auth.Type = v })},
	{"POLICY_GIT_AUTH_TOKEN", str(func(c *Config, v string) { c.Policy.Git.Auth.Token = v })},
	{"POLICY_GIT_AUTH_SSH_KEY_PATH", str(func(c *Config, v string) { c.Policy.Git.Auth.SSHKeyPath = v })},
	{"POLICY_GIT_AUTH_SSH_KEY_PASSPHRASE", str(func(c *Config, v string) { c.Policy.Git.Auth.SSHKeyPassphrase = v })},
	{"POLICY_GIT_POLL_ENABLED", boolean(func(c *Config, v bool) { c.Policy.Git.Poll.Enabled = v })},
	{"POLICY_GIT_POLL_INTERVAL", duration(func(c *Config, v time.Duration) { c.Policy.Git.Poll.Interval = v })},
	{"POLICY_GIT_CLONE_LOCAL_PATH", str(func(c *Config, v string) { c.Policy.Git.Clone.LocalPath = v })},

	{"AUDIT_BACKEND", str(func(c *Config, v string) { c.Audit.Backend = v })},
	{"AUDIT_WRITE_TIMEOUT", duration(func(c *Config, v time.Duration) { c.Audit.WriteTimeout = v })},
	{"AUDIT_SQLITE_PATH", str(func(c *Config, v string) { c.Audit.SQLite.Path = v })},
	{"AUDIT_SQLITE_DRIVER", str(func(c *Config, v string) { c.Audit.SQLite.Driver = v })},
	{"AUDIT_POSTGRES_DSN", str(func(c *Config, v string) { c.Audit.Postgres.DSN = v })},
	{"AUDIT_SNAPSHOT_ENABLED", boolean(func(c *Config, v bool) { c.Audit.Snapshot.Enabled = v })},
	{"AUDIT_SNAPSHOT_SCHEDULE", str(func(c *Config, v string) { c.Audit.Snapshot.Schedule = v })},
	{"AUDIT_SNAPSHOT_DIRECTORY", str(func(c *Config, v string) { c.Audit.Snapshot.Directory = v })},
	{"AUDIT_SNAPSHOT_FORMAT", str(func(c *Config, v string) { c.Audit.Snapshot.Format = v })},

	{"ARTIFACT_PACKAGE_NAME", str(func(c *Config, v string) { c.Artifact.PackageName = v })},

	{"SERVER_LISTEN_ADDRESS", str(func(c *Config, v string) { c.Server.ListenAddress = v })},
	{"SERVER_READ_TIMEOUT", duration(func(c *Config, v time.Duration) { c.Server.ReadTimeout = v })},
	{"SERVER_WRITE_TIMEOUT", duration(func(c *Config, v time.Duration) { c.Server.WriteTimeout = v })},
	{"SERVER_RATE_LIMIT_ENABLED", boolean(func(c *Config, v bool) { c.Server.RateLimit.Enabled = v })},
	{"SERVER_RATE_LIMIT_REQUESTS_PER_SECOND", float(func(c *Config, v float64) { c.Server.RateLimit.RequestsPerSecond = v })},
	{"SERVER_RATE_LIMIT_BURST", integer(func(c *Config, v int) { c.Server.RateLimit.Burst = v })},
	{"SERVER_TLS_ENABLED", boolean(func(c *Config, v bool) { c.Server.TLS.Enabled = v })},
	{"SERVER_TLS_CERT_FILE", str(func(c *Config, v string) { c.Server.TLS.CertFile = v })},
	{"SERVER_TLS_KEY_FILE", str(func(c *Config, v string) { c.Server.TLS.KeyFile = v })},

	{"TELEMETRY_LOGGING_LEVEL", str(func(c *Config, v string) { c.Telemetry.Logging.Level = v })},
	{"TELEMETRY_LOGGING_FORMAT", str(func(c *Config, v string) { c.Telemetry.Logging.Format = v })},
	{"TELEMETRY_METRICS_ENABLED", boolean(func(c *Config, v bool) { c.Telemetry.Metrics.Enabled = v })},
	{"TELEMETRY_TRACING_ENABLED", boolean(func(c *Config, v bool) { c.Telemetry.Tracing.Enabled = v })},
	{"TELEMETRY_TRACING_ENDPOINT", str(func(c *Config, v string) { c.Telemetry.Tracing.Endpoint = v })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", float(func(c *Config, v float64) { c.Telemetry.Tracing.SampleRatio = v })},

	{"SECRETS_DIRECTORY", str(func(c *Config, v string) { c.Secrets.Directory = v })},
}

// ApplyEnvOverrides applies COVENANT_* variables found through lookup.
// A variable that cannot be parsed for its field is reported as a
// ValidationError naming the variable.
func ApplyEnvOverrides(cfg *Config, lookup LookupFunc) error {
	var errs []FieldError
	for _, o := range overrides {
		key := EnvPrefix + o.key
		val, ok := lookup(key)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(cfg, val); err != nil {
			errs = append(errs, FieldError{Field: key, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
