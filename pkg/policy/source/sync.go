package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// SyncResult reports what one Sync changed.
type SyncResult struct {
	Loaded    []string `json:"loaded"`
	Unchanged []string `json:"unchanged"`
	Removed   []string `json:"removed"`
	Failed    []string `json:"failed"`
	// Version is the rule set version after the sync, empty when nothing
	// was loaded.
	Version string `json:"version,omitempty"`
}

// Changed reports whether the sync loaded or removed anything.
func (r SyncResult) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Removed) > 0
}

// Syncer keeps a Loader in step with a set of sources. Each Sync loads
// documents that are new or whose version changed and removes documents
// that disappeared from a source. A source that fails to load keeps its
// previously loaded documents, and a document that fails to load keeps
// its previous rules.
type Syncer struct {
	loader  Loader
	sources []Source
	logger  *slog.Logger

	mu     sync.Mutex
	loaded map[string]loadedDoc
}

type loadedDoc struct {
	source  string
	version string
}

// NewSyncer creates a syncer. A nil logger uses slog.Default.
func NewSyncer(loader Loader, logger *slog.Logger, sources ...Source) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		loader:  loader,
		sources: sources,
		logger:  logger.With("component", "policy_sync"),
		loaded:  make(map[string]loadedDoc),
	}
}

// Sync applies the current contents of every source. The returned error
// joins all source and document failures; the result is valid either way.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result SyncResult
		errs   []error
	)

	for _, src := range s.sources {
		docs, err := src.Load(ctx)
		if err != nil {
			s.logger.Error("policy source failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name(), err))
			continue
		}

		present := make(map[string]bool, len(docs))
		for _, doc := range docs {
			present[doc.Source] = true

			prev, ok := s.loaded[doc.Source]
			if ok && prev.version == doc.Version {
				result.Unchanged = append(result.Unchanged, doc.Source)
				continue
			}

			res, err := s.loader.LoadPolicy(ctx, doc.Source, doc.Text)
			if err != nil {
				s.logger.Error("policy document failed to load", "document", doc.Source, "error", err)
				result.Failed = append(result.Failed, doc.Source)
				errs = append(errs, err)
				continue
			}
			s.loaded[doc.Source] = loadedDoc{source: src.Name(), version: doc.Version}
			result.Loaded = append(result.Loaded, doc.Source)
			result.Version = res.Version
			s.logger.Info("policy document loaded",
				"document", doc.Source,
				"rules", len(res.Rules),
				"version", res.Version)
		}

		for label, prev := range s.loaded {
			if prev.source != src.Name() || present[label] {
				continue
			}
			if _, err := s.loader.RemovePolicy(label); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", label, err))
				continue
			}
			delete(s.loaded, label)
			result.Removed = append(result.Removed, label)
			s.logger.Info("policy document removed", "document", label)
		}
	}

	sort.Strings(result.Removed)
	return result, errors.Join(errs...)
}

// Documents returns the labels currently loaded through this syncer.
func (s *Syncer) Documents() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.loaded))
	for label, d := range s.loaded {
		out[label] = d.version
	}
	return out
}
