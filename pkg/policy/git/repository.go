package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"mercator-hq/covenant/pkg/config"
)

// ErrNotCloned is returned by operations that need a local clone.
var ErrNotCloned = errors.New("repository not initialized, call Clone first")

// Repository keeps a local clone of a policy repository.
type Repository struct {
	config     config.GitPolicyConfig
	extensions []string
	localPath  string
	auth       AuthProvider
	repo       *gogit.Repository
	mu         sync.RWMutex
	metrics    RepositoryMetrics
}

// NewRepository validates cfg and prepares a repository manager. Files
// with one of extensions are treated as policy documents.
func NewRepository(cfg *config.GitPolicyConfig, extensions []string) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if len(extensions) == 0 {
		extensions = config.DefaultPolicyExtensions
	}

	auth, err := NewAuthProvider(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "covenant-policies")
	}

	exts := make([]string, len(extensions))
	for i, ext := range extensions {
		exts[i] = strings.ToLower(ext)
	}

	return &Repository{
		config:     *cfg,
		extensions: exts,
		localPath:  localPath,
		auth:       auth,
	}, nil
}

// Clone clones the repository, or opens an existing clone at the local
// path. With CleanOnStart any existing clone is removed first.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() { r.metrics.CloneDuration = time.Since(start) }()

	if r.config.Clone.CleanOnStart {
		if err := os.RemoveAll(r.localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(r.localPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.localPath, 0o755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	opts := &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  r.config.Clone.Depth > 0,
		Depth:         r.config.Clone.Depth,
		Auth:          auth,
	}

	cloneCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.localPath, false, opts)
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	r.repo = repo
	return nil
}

// Cloned reports whether Clone has succeeded.
func (r *Repository) Cloned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.repo != nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.Poll.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.config.Poll.Timeout)
}

// Pull fetches and merges the tracked branch. It never force-pulls.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.PullDuration = time.Since(start)
		r.metrics.LastPullTime = time.Now()
	}()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	fromSHA := ref.Hash().String()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	pullCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		r.metrics.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}
	r.metrics.SuccessfulPulls++

	newRef, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get new HEAD: %w", err)
	}
	toSHA := newRef.Hash().String()

	result := &PullResult{FromSHA: fromSHA, ToSHA: toSHA, HadChanges: fromSHA != toSHA}
	if result.HadChanges {
		files, err := r.changedFiles(fromSHA, toSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to get changed files: %w", err)
		}
		result.ChangedFiles = files
		r.metrics.LastCommitSHA = toSHA
	}
	return result, nil
}

// CurrentCommit describes HEAD.
func (r *Repository) CurrentCommit() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return &CommitInfo{
		SHA:        commit.Hash.String(),
		Author:     commit.Author.Name,
		Email:      commit.Author.Email,
		Timestamp:  commit.Author.When,
		Message:    commit.Message,
		Branch:     r.config.Branch,
		Repository: r.config.Repository,
	}, nil
}

// IsPolicyFile reports whether name has one of the policy extensions.
// Hidden files are never policy files.
func (r *Repository) IsPolicyFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, want := range r.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// ListPolicyFiles returns the policy files under the configured path,
// relative to it, slash separated and sorted. Hidden directories are skipped.
func (r *Repository) ListPolicyFiles() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, ErrNotCloned
	}

	root := filepath.Join(r.localPath, r.config.Path)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("policy path does not exist: %w", err)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !r.IsPolicyFile(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// ReadPolicyFile reads a file returned by ListPolicyFiles.
func (r *Repository) ReadPolicyFile(rel string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("policy file %q escapes the policy path", rel)
	}
	return os.ReadFile(filepath.Join(r.localPath, r.config.Path, clean))
}

// ChangedFiles returns repository-relative paths that differ between two
// commits. Deleted files are reported by their old name.
func (r *Repository) ChangedFiles(fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changedFiles(fromSHA, toSHA)
}

func (r *Repository) changedFiles(fromSHA, toSHA string) ([]string, error) {
	if r.repo == nil {
		return nil, ErrNotCloned
	}

	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}
	return files, nil
}

// Rollback checks out targetSHA, which must exist in the clone.
func (r *Repository) Rollback(targetSHA string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return ErrNotCloned
	}

	target := plumbing.NewHash(targetSHA)
	if _, err := r.repo.CommitObject(target); err != nil {
		return fmt.Errorf("target commit not found: %w", err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: target, Force: true}); err != nil {
		return fmt.Errorf("failed to checkout commit %s: %w", shortSHA(targetSHA), err)
	}
	return nil
}

// Metrics returns a copy of the repository metrics.
func (r *Repository) Metrics() RepositoryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics
}

// LocalPath is where the repository is cloned.
func (r *Repository) LocalPath() string {
	return r.localPath
}

// PolicyPath is the policy directory inside the clone.
func (r *Repository) PolicyPath() string {
	return filepath.Join(r.localPath, r.config.Path)
}
