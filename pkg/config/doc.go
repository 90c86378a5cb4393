// Package config loads and validates covenant configuration.
//
// Configuration comes from a YAML file, then defaults fill unset fields,
// then COVENANT_* environment variables override individual fields, and
// finally the result is validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("covenant.yaml")
//
// Struct-level rules are declared as validator tags on the config types.
// Rules that span several fields, such as backend-specific settings or cron
// expressions, are checked in validate.go. Every failure is reported as a
// FieldError addressed by its YAML path, and all of them are returned
// together in a ValidationError.
//
// Environment variables use the section path in upper case:
//
//   - COVENANT_AUDIT_BACKEND overrides audit.backend
//   - COVENANT_POLICY_PATHS overrides policy.paths (comma separated)
//   - COVENANT_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// For process-wide access call Initialize once at startup and GetConfig
// afterwards. Library code should take a *Config explicitly.
package config
