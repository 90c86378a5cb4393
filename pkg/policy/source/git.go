package source

import (
	"context"
	"fmt"

	"mercator-hq/covenant/pkg/policy/git"
)

// GitPrefix prefixes labels of documents read from a Git repository.
const GitPrefix = "git:"

// GitSource reads policy documents from the working tree of a clone.
// Every document is versioned by the HEAD commit and its content, so a
// commit that leaves a file untouched does not reload it.
type GitSource struct {
	repo *git.Repository
}

// NewGitSource wraps repo. The repository is cloned on first Load if
// that has not happened yet.
func NewGitSource(repo *git.Repository) *GitSource {
	return &GitSource{repo: repo}
}

func (s *GitSource) Name() string { return "git" }

func (s *GitSource) Load(ctx context.Context) ([]Document, error) {
	if !s.repo.Cloned() {
		if err := s.repo.Clone(ctx); err != nil {
			return nil, err
		}
	}

	files, err := s.repo.ListPolicyFiles()
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.repo.ReadPolicyFile(rel)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		text := string(data)
		docs = append(docs, Document{
			Source:  GitPrefix + rel,
			Text:    text,
			Version: ContentVersion(text),
		})
	}

	sortDocuments(docs)
	return docs, nil
}
