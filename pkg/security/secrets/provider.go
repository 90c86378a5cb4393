package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a provider that does not hold a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// GetSecret returns the value of name, or an error wrapping
	// ErrNotFound when the backend does not hold it.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the backend in logs and errors.
	Name() string
}
