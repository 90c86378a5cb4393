// Package logging builds the structured slog loggers used across covenant.
//
// New returns a *slog.Logger writing JSON or text. Records logged with a
// context carry its request ID, user and OpenTelemetry trace and span IDs.
// Attributes whose key names a secret are masked, and credentials embedded
// in strings or errors (bearer tokens, URL passwords) are replaced:
//
//	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "request decided", "approved", true)
package logging
