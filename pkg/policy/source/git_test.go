package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/covenant/pkg/config"
	"mercator-hq/covenant/pkg/policy/git"
)

func TestGitSourceLoad(t *testing.T) {
	origin := t.TempDir()
	repo, err := gogit.PlainInit(origin, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	for name, text := range map[string]string{
		"policies/security.txt": "Data must be encrypted.",
		"policies/notes.json":   "{}",
	} {
		writeFile(t, filepath.Join(origin, filepath.FromSlash(name)), text)
		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := wt.Commit("policies", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	clone := filepath.Join(t.TempDir(), "clone")
	r, err := git.NewRepository(&config.GitPolicyConfig{
		Repository: origin,
		Branch:     "master",
		Path:       "policies",
		Clone:      config.GitCloneConfig{LocalPath: clone},
	}, []string{".txt"})
	if err != nil {
		t.Fatal(err)
	}

	src := NewGitSource(r)
	docs, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := labels(docs); !reflect.DeepEqual(got, []string{"git:security.txt"}) {
		t.Fatalf("labels = %v", got)
	}
	if docs[0].Text != "Data must be encrypted." {
		t.Errorf("text = %q", docs[0].Text)
	}
	if _, err := os.Stat(filepath.Join(clone, ".git")); err != nil {
		t.Errorf("Load() did not clone: %v", err)
	}

	e := newEngine(t)
	res, err := NewSyncer(e, discard, src).Sync(context.Background())
	if err != nil || len(res.Loaded) != 1 {
		t.Fatalf("Sync() = %+v, %v", res, err)
	}
	if got := e.Rules()[0].SourceDocument; got != "git:security.txt" {
		t.Errorf("SourceDocument = %q", got)
	}
}
