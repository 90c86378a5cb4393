package health

import (
	"context"

	"mercator-hq/covenant/pkg/evidence"
)

// ReadyChecker is satisfied by the enforcement engine.
type ReadyChecker interface {
	CheckReady() error
}

// RulesCheck fails until the engine holds at least one rule.
func RulesCheck(engine ReadyChecker) CheckFunc {
	return func(context.Context) error {
		return engine.CheckReady()
	}
}

// StorageCheck fails when the audit backend cannot be read.
func StorageCheck(backend evidence.Storage) CheckFunc {
	return func(ctx context.Context) error {
		_, err := backend.Last(ctx)
		return err
	}
}
