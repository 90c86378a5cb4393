package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if cfg.Extraction.IDLength != DefaultIDLength {
		t.Errorf("IDLength = %d, want %d", cfg.Extraction.IDLength, DefaultIDLength)
	}
	if cfg.Enforcement.Timeout != 100*time.Millisecond {
		t.Errorf("Enforcement.Timeout = %v", cfg.Enforcement.Timeout)
	}
	if cfg.Audit.Backend != "memory" {
		t.Errorf("Audit.Backend = %q", cfg.Audit.Backend)
	}
	if !cfg.Audit.SQLite.WALMode {
		t.Error("SQLite.WALMode should default to true")
	}
	if got := strings.Join(cfg.Policy.Extensions, ","); got != ".txt,.md,.policy" {
		t.Errorf("Extensions = %s", got)
	}
}

func TestApplyDefaultsKeepsSetFields(t *testing.T) {
	cfg := &Config{
		Extraction: ExtractionConfig{IDLength: 16, DefaultSection: "Preamble"},
		Audit:      AuditConfig{Backend: "sqlite", SQLite: SQLiteConfig{Path: "x.db"}},
	}
	ApplyDefaults(cfg)

	if cfg.Extraction.IDLength != 16 || cfg.Extraction.DefaultSection != "Preamble" {
		t.Errorf("extraction overwritten: %+v", cfg.Extraction)
	}
	if cfg.Audit.SQLite.Path != "x.db" {
		t.Errorf("sqlite path overwritten: %q", cfg.Audit.SQLite.Path)
	}
	if cfg.Audit.SQLite.WALMode {
		t.Error("WALMode should stay as configured when a path is given")
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
extraction:
  id_length: 8
  numbered_rules: true
enforcement:
  timeout: 250ms
policy:
  paths: [policies/]
  watch: true
audit:
  backend: sqlite
  sqlite:
    path: /tmp/audit.db
  snapshot:
    enabled: true
    schedule: "*/5 * * * *"
    format: csv
server:
  listen_address: "0.0.0.0:9090"
  rate_limit:
    enabled: true
    requests_per_second: 5
telemetry:
  logging:
    level: debug
    format: text
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Extraction.IDLength != 8 || !cfg.Extraction.NumberedRules {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Enforcement.Timeout != 250*time.Millisecond {
		t.Errorf("enforcement timeout = %v", cfg.Enforcement.Timeout)
	}
	if cfg.Enforcement.MaxRules != DefaultMaxRules {
		t.Errorf("max rules = %d", cfg.Enforcement.MaxRules)
	}
	if cfg.Audit.Snapshot.Format != "csv" || cfg.Audit.Snapshot.Directory != DefaultSnapshotDirectory {
		t.Errorf("snapshot = %+v", cfg.Audit.Snapshot)
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 5 || cfg.Server.RateLimit.Burst != DefaultRateLimitBurst {
		t.Errorf("rate limit = %+v", cfg.Server.RateLimit)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Telemetry.Logging.Level)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("audit:\n  backend: memory\n  bogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend", func(c *Config) { c.Audit.Backend = "mongo" }, "audit.backend"},
		{"short id", func(c *Config) { c.Extraction.IDLength = 2 }, "extraction.id_length"},
		{"zero enforcement timeout", func(c *Config) { c.Enforcement.Timeout = -1 }, "enforcement.timeout"},
		{"bad extension", func(c *Config) { c.Policy.Extensions = []string{"txt"} }, "policy.extensions[0]"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "nope" }, "server.listen_address"},
		{"sample ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 2 }, "telemetry.tracing.sample_ratio"},
		{"postgres without dsn", func(c *Config) { c.Audit.Backend = "postgres" }, "audit.postgres.dsn"},
		{"sqlite idle above open", func(c *Config) {
			c.Audit.Backend = "sqlite"
			c.Audit.SQLite.MaxIdleConns = 50
		}, "audit.sqlite.max_idle_conns"},
		{"bad cron", func(c *Config) {
			c.Audit.Snapshot.Enabled = true
			c.Audit.Snapshot.Schedule = "every hour"
		}, "audit.snapshot.schedule"},
		{"git without repository", func(c *Config) { c.Policy.Git.Enabled = true }, "policy.git.repository"},
		{"git token missing", func(c *Config) {
			c.Policy.Git.Enabled = true
			c.Policy.Git.Repository = "https://example.com/p.git"
			c.Policy.Git.Auth.Type = "token"
		}, "policy.git.auth.token"},
		{"watch without paths", func(c *Config) { c.Policy.Watch = true }, "policy.paths"},
		{"package name", func(c *Config) { c.Artifact.PackageName = "grc-rules" }, "artifact.package_name"},
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true }, "server.tls.cert_file"},
		{"tls 1.1", func(c *Config) { c.Server.TLS.MinVersion = "1.1" }, "server.tls.min_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if !verr.HasField(tt.field) {
				t.Errorf("no error for %s in %v", tt.field, verr)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := one.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("Error() = %q", got)
	}
	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(two.Error(), "2 errors") {
		t.Errorf("Error() = %q", two.Error())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"COVENANT_AUDIT_BACKEND":              "sqlite",
		"COVENANT_ENFORCEMENT_TIMEOUT":        "2s",
		"COVENANT_POLICY_PATHS":               "a.txt, dir/ ,",
		"COVENANT_SERVER_RATE_LIMIT_ENABLED":  "true",
		"COVENANT_EXTRACTION_ID_LENGTH":       "20",
		"COVENANT_TELEMETRY_LOGGING_LEVEL":    "warn",
		"COVENANT_SERVER_RATE_LIMIT_BURST":    "",
		"COVENANT_TELEMETRY_TRACING_ENDPOINT": "collector:4317",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := ApplyEnvOverrides(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}

	if cfg.Audit.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Audit.Backend)
	}
	if cfg.Enforcement.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Enforcement.Timeout)
	}
	if got := strings.Join(cfg.Policy.Paths, "|"); got != "a.txt|dir/" {
		t.Errorf("paths = %q", got)
	}
	if !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.Burst != DefaultRateLimitBurst {
		t.Errorf("rate limit = %+v", cfg.Server.RateLimit)
	}
	if cfg.Extraction.IDLength != 20 || cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("overrides not applied: %d %q", cfg.Extraction.IDLength, cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.Tracing.Endpoint != "collector:4317" {
		t.Errorf("endpoint = %q", cfg.Telemetry.Tracing.Endpoint)
	}
}

func TestApplyEnvOverridesInvalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "COVENANT_ENFORCEMENT_TIMEOUT" {
			return "soon", true
		}
		return "", false
	}
	err := ApplyEnvOverrides(Default(), lookup)
	var verr ValidationError
	if !errors.As(err, &verr) || !verr.HasField("COVENANT_ENFORCEMENT_TIMEOUT") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covenant.yaml")
	if err := os.WriteFile(path, []byte("audit:\n  backend: memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COVENANT_AUDIT_BACKEND", "postgres")
	t.Setenv("COVENANT_AUDIT_POSTGRES_DSN", "postgres://localhost/covenant")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.Audit.Backend != "postgres" || cfg.Audit.Postgres.DSN == "" {
		t.Errorf("audit = %+v", cfg.Audit)
	}

	t.Setenv("COVENANT_AUDIT_POSTGRES_DSN", "")
	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("expected validation failure without dsn")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSingleton(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	cfg := Default()
	SetConfig(cfg)
	if GetConfig() != cfg || MustGetConfig() != cfg {
		t.Fatal("singleton did not return the stored config")
	}

	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("enforcement:\n  max_rules: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := ReloadConfig(path); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if GetConfig().Enforcement.MaxRules != 7 {
		t.Errorf("MaxRules = %d", GetConfig().Enforcement.MaxRules)
	}

	if err := ReloadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected reload error")
	}
	if GetConfig().Enforcement.MaxRules != 7 {
		t.Error("failed reload replaced config")
	}
}
