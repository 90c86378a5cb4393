package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"mercator-hq/covenant/pkg/policy/engine"
)

// Document is one policy text with the label its rules are attributed to.
type Document struct {
	// Source labels the document. Rules extracted from it carry this
	// label as their source document, and reloading a label replaces
	// exactly the rules that came from it.
	Source string

	// Text is the raw policy text.
	Text string

	// Version identifies the content. Documents whose version did not
	// change since the last sync are not reloaded.
	Version string
}

// ContentVersion returns the version used for documents that have no
// better identifier: the first 16 hex characters of the SHA-256 of text.
func ContentVersion(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// Source produces the current set of policy documents.
type Source interface {
	// Name identifies the source in logs and sync results.
	Name() string

	// Load returns every document currently available, sorted by label.
	Load(ctx context.Context) ([]Document, error)
}

// Loader is the part of the engine a Syncer drives.
type Loader interface {
	LoadPolicy(ctx context.Context, source, text string) (*engine.LoadResult, error)
	RemovePolicy(source string) (bool, error)
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
}
