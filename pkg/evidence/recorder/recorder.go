package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/evidence/storage"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder owns the process-wide audit trail.
type Recorder struct {
	storage evidence.Storage
	config  *Config
	logger  *slog.Logger

	// mu serializes appends; it is held across the storage write.
	mu       sync.Mutex
	lastSeq  int64
	lastHash string
	baseHash string // hash preceding the first entry of this process

	logMu   sync.RWMutex
	entries []evidence.AuditEntry
}

// New creates a recorder over the given backend. A nil backend uses
// in-memory storage; a nil config uses DefaultConfig.
func New(backend evidence.Storage, config *Config, logger *slog.Logger) *Recorder {
	if backend == nil {
		backend = storage.NewMemoryStorage()
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		storage: backend,
		config:  config,
		logger:  logger.With("component", "evidence.recorder"),
	}
}

// Open resumes the trail from the backend so new entries continue the
// existing sequence and hash chain. It must be called before the first Append
// when the backend may already hold entries.
func (r *Recorder) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, err := r.storage.Last(ctx)
	if err != nil {
		return evidence.NewRecorderError("", fmt.Errorf("resume trail: %w", err))
	}
	if last != nil {
		r.lastSeq = last.Sequence
		r.lastHash = last.Hash
		r.baseHash = last.Hash
	}

	r.logger.Info("audit trail opened",
		"resumed_sequence", r.lastSeq,
	)
	return nil
}

// Append adds one entry to the trail. On success the entry is updated in
// place with its assigned ID, sequence and hashes.
func (r *Recorder) Append(ctx context.Context, entry *evidence.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry.Clone()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Sequence = r.lastSeq + 1
	e.PrevHash = r.lastHash
	e.Normalize()

	hash, err := e.ComputeHash()
	if err != nil {
		return evidence.NewRecorderError(e.RequestID, err)
	}
	e.Hash = hash

	writeCtx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Append(writeCtx, e); err != nil {
		r.logger.Error("failed to append audit entry",
			"request_id", e.RequestID,
			"sequence", e.Sequence,
			"error", err,
		)
		return evidence.NewRecorderError(e.RequestID, err)
	}

	r.logMu.Lock()
	r.entries = append(r.entries, *e.Clone())
	r.logMu.Unlock()

	r.lastSeq = e.Sequence
	r.lastHash = e.Hash

	r.logger.Debug("audit entry appended",
		"request_id", e.RequestID,
		"sequence", e.Sequence,
		"status", e.Status(),
	)

	*entry = *e
	return nil
}

// Snapshot returns deep copies of the entries appended by this recorder, in order.
func (r *Recorder) Snapshot() []evidence.AuditEntry {
	r.logMu.RLock()
	defer r.logMu.RUnlock()

	out := make([]evidence.AuditEntry, len(r.entries))
	for i := range r.entries {
		out[i] = *r.entries[i].Clone()
	}
	return out
}

// Len returns the number of entries appended by this recorder.
func (r *Recorder) Len() int {
	r.logMu.RLock()
	defer r.logMu.RUnlock()
	return len(r.entries)
}

// Stats aggregates a fresh snapshot.
func (r *Recorder) Stats() evidence.Stats {
	return evidence.ComputeStats(r.Snapshot())
}

// Verify checks the hash chain of the in-memory log.
func (r *Recorder) Verify() error {
	r.mu.Lock()
	base := r.baseHash
	r.mu.Unlock()
	return evidence.VerifyChain(r.Snapshot(), base)
}

// VerifyStorage checks the hash chain of every entry held by the backend.
func (r *Recorder) VerifyStorage(ctx context.Context) error {
	return VerifyStorage(ctx, r.storage)
}

// VerifyStorage checks the complete hash chain held by a backend.
func VerifyStorage(ctx context.Context, backend evidence.Storage) error {
	entries, err := backend.Query(ctx, &evidence.Query{})
	if err != nil {
		return err
	}
	return evidence.VerifyChain(evidence.Values(entries), "")
}

// Storage returns the backend the recorder writes to.
func (r *Recorder) Storage() evidence.Storage {
	return r.storage
}

// Close closes the storage backend.
func (r *Recorder) Close() error {
	return r.storage.Close()
}
