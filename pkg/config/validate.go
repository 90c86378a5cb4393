package config

import (
	"errors"
	"fmt"
	"go/token"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "audit.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// HasField reports whether a validation error was recorded for field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate validates the entire configuration and returns a ValidationError
// if any rule fails. All errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate configuration: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: tagMessage(fe),
			})
		}
	}

	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateArtifact(&cfg.Artifact)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "hostname_port":
		return fmt.Sprintf("must be host:port, got %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && len(cfg.Paths) == 0 {
		errs = append(errs, FieldError{
			Field:   "policy.paths",
			Message: "at least one path is required when watch is enabled",
		})
	}

	git := &cfg.Git
	if !git.Enabled {
		return errs
	}
	switch git.Auth.Type {
	case "token":
		if git.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "policy.git.auth.token", Message: "is required for token auth"})
		}
	case "ssh":
		if git.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "policy.git.auth.ssh_key_path", Message: "is required for ssh auth"})
		}
	}
	if git.Poll.Enabled && git.Poll.Interval <= 0 {
		errs = append(errs, FieldError{Field: "policy.git.poll.interval", Message: "must be positive when polling is enabled"})
	}
	if git.Clone.LocalPath == "" {
		errs = append(errs, FieldError{Field: "policy.git.clone.local_path", Message: "is required"})
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "audit.sqlite.max_idle_conns",
				Message: fmt.Sprintf("must not exceed max_open_conns (%d)", cfg.SQLite.MaxOpenConns),
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "audit.postgres.dsn", Message: "is required for the postgres backend"})
		}
		if cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
			errs = append(errs, FieldError{
				Field:   "audit.postgres.min_conns",
				Message: fmt.Sprintf("must not exceed max_conns (%d)", cfg.Postgres.MaxConns),
			})
		}
	}

	if cfg.Snapshot.Enabled {
		if _, err := cron.ParseStandard(cfg.Snapshot.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.snapshot.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
		if cfg.Snapshot.Directory == "" {
			errs = append(errs, FieldError{Field: "audit.snapshot.directory", Message: "is required when snapshots are enabled"})
		}
	}
	return errs
}

func validateArtifact(cfg *ArtifactConfig) []FieldError {
	if cfg.PackageName != "" && !token.IsIdentifier(cfg.PackageName) {
		return []FieldError{{
			Field:   "artifact.package_name",
			Message: fmt.Sprintf("%q is not a valid Go package name", cfg.PackageName),
		}}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required when tracing is enabled"})
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{Field: "telemetry.metrics.namespace", Message: "is required when metrics are enabled"})
	}
	return errs
}
