package source

import (
	"context"
	"sync"
)

// MemorySource holds documents in memory. It backs the HTTP policy
// upload endpoint and tests.
type MemorySource struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemorySource returns a source holding docs.
func NewMemorySource(docs ...Document) *MemorySource {
	m := &MemorySource{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		m.Put(d.Source, d.Text)
	}
	return m
}

func (m *MemorySource) Name() string { return "memory" }

// Put stores text under label, replacing any previous document.
func (m *MemorySource) Put(label, text string) Document {
	d := Document{Source: label, Text: text, Version: ContentVersion(text)}
	m.mu.Lock()
	m.docs[label] = d
	m.mu.Unlock()
	return d
}

// Delete removes label and reports whether it was present.
func (m *MemorySource) Delete(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[label]
	delete(m.docs, label)
	return ok
}

func (m *MemorySource) Load(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, d)
	}
	m.mu.RUnlock()

	sortDocuments(docs)
	return docs, nil
}
