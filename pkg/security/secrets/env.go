package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. The secret
// "db-password" is read from Prefix + "DB_PASSWORD".
type EnvProvider struct {
	Prefix string

	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, lookup: os.LookupEnv}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	key := p.envVar(name)
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, key)
	}
	return v, nil
}

func (p *EnvProvider) envVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
