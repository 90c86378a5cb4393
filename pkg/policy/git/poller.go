package git

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ReloadFunc reloads policy documents from the working tree at commit.
// Returning an error makes the poller roll the clone back to the last
// commit that loaded cleanly.
type ReloadFunc func(ctx context.Context, commit *CommitInfo) error

// DefaultDebounce is the wait between detecting a change and reloading.
const DefaultDebounce = 100 * time.Millisecond

// Poller pulls a repository on an interval and reloads when policy files
// change. Pulls that touch no policy file advance the tracked commit
// without reloading.
type Poller struct {
	repo     *Repository
	interval time.Duration
	debounce time.Duration
	reload   ReloadFunc
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	lastSHA    string
	timer      *time.Timer
	metrics    PollerMetrics
	reloadLock sync.Mutex
}

// PollerMetrics counts poller activity.
type PollerMetrics struct {
	PollCount         int64
	SuccessfulReloads int64
	FailedReloads     int64
	Rollbacks         int64
	SkippedPolls      int64
	LastReloadTime    time.Time
	LastReloadDur     time.Duration
}

// NewPoller creates a poller for repo. A nil logger uses slog.Default.
func NewPoller(repo *Repository, interval time.Duration, reload ReloadFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		repo:     repo,
		interval: interval,
		debounce: DefaultDebounce,
		reload:   reload,
		logger:   logger.With("component", "git_poller"),
	}
}

// Start records HEAD as the last good commit and begins polling in the
// background until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller already running")
	}
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", p.interval)
	}

	commit, err := p.repo.CurrentCommit()
	if err != nil {
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	p.lastSHA = commit.SHA
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	p.logger.Info("poller started", "interval", p.interval, "commit", commit.Short())

	go p.loop(ctx, p.stopCh, p.doneCh)
	return nil
}

// Stop halts polling and cancels a pending reload.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	if p.timer != nil {
		p.timer.Stop()
	}
	done := p.doneCh
	p.mu.Unlock()

	<-done
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "reason", ctx.Err())
			return
		case <-stop:
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			if err := p.check(ctx, true); err != nil {
				p.logger.Error("poll failed", "error", err)
			}
		}
	}
}

// CheckNow pulls immediately and reloads synchronously when policy files
// changed. It returns the reload error, if any.
func (p *Poller) CheckNow(ctx context.Context) error {
	return p.check(ctx, false)
}

func (p *Poller) check(ctx context.Context, debounced bool) error {
	p.mu.Lock()
	p.metrics.PollCount++
	p.mu.Unlock()

	result, err := p.repo.Pull(ctx)
	if err != nil {
		return err
	}
	if !result.HadChanges {
		return nil
	}

	p.logger.Info("detected changes",
		"from", shortSHA(result.FromSHA),
		"to", shortSHA(result.ToSHA),
		"changed_files", len(result.ChangedFiles))

	if !p.touchesPolicy(result.ChangedFiles) {
		p.mu.Lock()
		p.metrics.SkippedPolls++
		p.lastSHA = result.ToSHA
		p.mu.Unlock()
		p.logger.Info("no policy files changed, skipping reload")
		return nil
	}

	if !debounced {
		return p.performReload(ctx)
	}

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		if err := p.performReload(ctx); err != nil {
			p.logger.Error("reload failed", "error", err)
		}
	})
	p.mu.Unlock()
	return nil
}

func (p *Poller) touchesPolicy(files []string) bool {
	for _, f := range files {
		if p.repo.IsPolicyFile(f) {
			return true
		}
	}
	return false
}

func (p *Poller) performReload(ctx context.Context) error {
	p.reloadLock.Lock()
	defer p.reloadLock.Unlock()

	start := time.Now()
	commit, err := p.repo.CurrentCommit()
	if err != nil {
		return err
	}

	reloadErr := p.reload(ctx, commit)

	p.mu.Lock()
	p.metrics.LastReloadTime = time.Now()
	p.metrics.LastReloadDur = time.Since(start)
	lastGood := p.lastSHA
	if reloadErr == nil {
		p.metrics.SuccessfulReloads++
		p.lastSHA = commit.SHA
	} else {
		p.metrics.FailedReloads++
	}
	p.mu.Unlock()

	if reloadErr == nil {
		p.logger.Info("reloaded policies", "from", shortSHA(lastGood), "to", commit.Short())
		return nil
	}

	p.logger.Error("reload failed, rolling back",
		"error", reloadErr,
		"commit", commit.Short(),
		"rollback_to", shortSHA(lastGood))

	if err := p.rollback(ctx, lastGood); err != nil {
		return fmt.Errorf("reload failed: %w (rollback: %v)", reloadErr, err)
	}
	return fmt.Errorf("reload of %s failed: %w", commit.Short(), reloadErr)
}

func (p *Poller) rollback(ctx context.Context, sha string) error {
	if err := p.repo.Rollback(sha); err != nil {
		return err
	}
	p.mu.Lock()
	p.metrics.Rollbacks++
	p.mu.Unlock()

	commit, err := p.repo.CurrentCommit()
	if err != nil {
		return err
	}
	if err := p.reload(ctx, commit); err != nil {
		return fmt.Errorf("failed to reload after rollback: %w", err)
	}
	return nil
}

// LastCommit is the SHA policies were last loaded from.
func (p *Poller) LastCommit() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSHA
}

// Metrics returns a copy of the poller metrics.
func (p *Poller) Metrics() PollerMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
