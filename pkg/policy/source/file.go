package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads policy documents from files and directories.
// Directories are walked recursively. Hidden entries are skipped and only
// files with one of the configured extensions are read. A path naming a
// file directly is always read, whatever its extension.
//
// Documents are labelled with their slash-separated path as configured,
// so "policies/security.txt" stays the same label across reloads.
type FileSource struct {
	paths      []string
	extensions []string
}

// NewFileSource creates a source over paths. Extensions are matched
// case-insensitively and must include the leading dot.
func NewFileSource(paths, extensions []string) *FileSource {
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		exts[i] = strings.ToLower(e)
	}
	return &FileSource{paths: append([]string(nil), paths...), extensions: exts}
}

func (s *FileSource) Name() string { return "file" }

// Paths returns the configured roots.
func (s *FileSource) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Matches reports whether path would be loaded from a directory walk.
func (s *FileSource) Matches(path string) bool {
	if isHidden(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range s.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Label returns the document label for path.
func Label(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func (s *FileSource) Load(ctx context.Context) ([]Document, error) {
	seen := make(map[string]bool)
	var docs []Document

	add := func(path string) error {
		label := Label(path)
		if seen[label] {
			return nil
		}
		seen[label] = true

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read policy %s: %w", label, err)
		}
		text := string(data)
		docs = append(docs, Document{Source: label, Text: text, Version: ContentVersion(text)})
		return nil
	}

	for _, root := range s.paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("policy path %s: %w", root, err)
		}
		if !info.IsDir() {
			if err := add(root); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != root && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !s.Matches(path) {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, fmt.Errorf("walk policy path %s: %w", root, err)
		}
	}

	sortDocuments(docs)
	return docs, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
