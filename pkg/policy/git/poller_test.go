package git

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type reloadRecorder struct {
	mu      sync.Mutex
	commits []string
	fail    map[string]bool
}

func (r *reloadRecorder) reload(_ context.Context, commit *CommitInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, commit.SHA)
	if r.fail[commit.SHA] {
		return errors.New("bad policy")
	}
	return nil
}

func (r *reloadRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commits...)
}

func setupPoller(t *testing.T, rec *reloadRecorder) (*Poller, func(name, content, msg string) string) {
	t.Helper()

	sourceDir := t.TempDir()
	src := createTestRepo(t, sourceDir)

	repo, err := NewRepository(testConfig(sourceDir, filepath.Join(t.TempDir(), "clone")), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := NewPoller(repo, time.Hour, rec.reload, nil)
	commit := func(name, content, msg string) string {
		return commitFile(t, src, sourceDir, name, content, msg)
	}
	return p, commit
}

func TestPoller_StartStop(t *testing.T) {
	p, _ := setupPoller(t, &reloadRecorder{})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.Running() {
		t.Fatal("Running() = false after Start")
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if p.LastCommit() == "" {
		t.Error("LastCommit() empty after Start")
	}

	p.Stop()
	if p.Running() {
		t.Error("Running() = true after Stop")
	}
	p.Stop()
}

func TestPoller_StartRequiresInterval(t *testing.T) {
	p, _ := setupPoller(t, &reloadRecorder{})
	p.interval = 0
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Start() with zero interval should fail")
	}
}

func TestPoller_CheckNowReloads(t *testing.T) {
	rec := &reloadRecorder{}
	p, commit := setupPoller(t, rec)
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.CheckNow(ctx); err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}
	if len(rec.calls()) != 0 {
		t.Fatalf("reload called without changes: %v", rec.calls())
	}

	sha := commit("policies/retention.txt", "Records must be retained for 7 years.\n", "retention")
	if err := p.CheckNow(ctx); err != nil {
		t.Fatalf("CheckNow() error = %v", err)
	}
	if calls := rec.calls(); len(calls) != 1 || calls[0] != sha {
		t.Errorf("reload calls = %v, want [%s]", calls, sha)
	}
	if p.LastCommit() != sha {
		t.Errorf("LastCommit() = %s, want %s", p.LastCommit(), sha)
	}
	if m := p.Metrics(); m.SuccessfulReloads != 1 || m.PollCount != 2 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestPoller_SkipsNonPolicyChanges(t *testing.T) {
	rec := &reloadRecorder{}
	p, commit := setupPoller(t, rec)
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	sha := commit("README.json", "{}", "docs")
	if err := p.CheckNow(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls()) != 0 {
		t.Errorf("reload called for non-policy change")
	}
	if p.LastCommit() != sha {
		t.Errorf("LastCommit() = %s, want %s", p.LastCommit(), sha)
	}
	if p.Metrics().SkippedPolls != 1 {
		t.Errorf("SkippedPolls = %d", p.Metrics().SkippedPolls)
	}
}

func TestPoller_RollsBackOnFailure(t *testing.T) {
	rec := &reloadRecorder{fail: map[string]bool{}}
	p, commit := setupPoller(t, rec)
	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()
	good := p.LastCommit()

	bad := commit("policies/broken.txt", "broken\n", "break things")
	rec.fail[bad] = true

	if err := p.CheckNow(ctx); err == nil {
		t.Fatal("CheckNow() should report the failed reload")
	}

	calls := rec.calls()
	if len(calls) != 2 || calls[0] != bad || calls[1] != good {
		t.Fatalf("reload calls = %v, want [%s %s]", calls, bad, good)
	}
	if p.LastCommit() != good {
		t.Errorf("LastCommit() = %s, want %s", p.LastCommit(), good)
	}
	m := p.Metrics()
	if m.FailedReloads != 1 || m.Rollbacks != 1 {
		t.Errorf("Metrics() = %+v", m)
	}

	files, err := p.repo.ListPolicyFiles()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f == "broken.txt" {
			t.Error("rolled back tree still contains broken.txt")
		}
	}
}
