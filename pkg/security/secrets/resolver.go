package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"mercator-hq/covenant/pkg/config"
)

var secretRef = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver looks secrets up in its providers in order.
type Resolver struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default.
func NewResolver(providers []Provider, cache *Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewCache(0)
	}
	return &Resolver{
		providers: providers,
		cache:     cache,
		logger:    logger.With("component", "secrets"),
	}
}

// FromConfig builds the resolver described by cfg: the secrets directory
// when configured, then the environment.
func FromConfig(cfg *config.SecretsConfig, logger *slog.Logger) (*Resolver, error) {
	var providers []Provider
	if cfg.Directory != "" {
		fp, err := NewFileProvider(cfg.Directory)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	providers = append(providers, NewEnvProvider(cfg.EnvPrefix))
	return NewResolver(providers, NewCache(cfg.CacheTTL), logger), nil
}

// GetSecret returns the first value any provider holds for name.
func (r *Resolver) GetSecret(ctx context.Context, name string) (string, error) {
	if v, ok := r.cache.Get(name); ok {
		return v, nil
	}
	for _, p := range r.providers {
		v, err := p.GetSecret(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %s from %s: %w", redact(name), p.Name(), err)
		}
		r.logger.Debug("secret resolved", "name", redact(name), "provider", p.Name())
		r.cache.Set(name, v)
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, redact(name))
}

// Expand replaces every ${secret:name} in s. All unresolved references
// are reported together and s is returned unchanged.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	var errs []error
	out := secretRef.ReplaceAllStringFunc(s, func(m string) string {
		name := secretRef.FindStringSubmatch(m)[1]
		v, err := r.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return m
		}
		return v
	})
	if len(errs) > 0 {
		return s, errors.Join(errs...)
	}
	return out, nil
}

// ResolveConfig expands secret references in the credential fields of cfg.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	fields := []struct {
		name string
		val  *string
	}{
		{"audit.postgres.dsn", &cfg.Audit.Postgres.DSN},
		{"policy.git.auth.token", &cfg.Policy.Git.Auth.Token},
		{"policy.git.auth.ssh_key_passphrase", &cfg.Policy.Git.Auth.SSHKeyPassphrase},
	}
	var errs []error
	for _, f := range fields {
		if !secretRef.MatchString(*f.val) {
			continue
		}
		v, err := r.Expand(ctx, *f.val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.val = v
	}
	return errors.Join(errs...)
}

// redact keeps secret names out of logs beyond their first and last
// two characters.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
