// Package knowledge provides the vector-backed document store the planner
// consults before producing a plan.
package knowledge

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"agentstation/internal/logging"
	"agentstation/internal/utils/id"
)

// Config holds knowledge base settings.
type Config struct {
	PersistPath string `mapstructure:"persist_path"`
	Collection  string `mapstructure:"collection"`
}

// Document is one stored knowledge entry.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is a scored search hit.
type Result struct {
	Document   Document `json:"document"`
	Similarity float32  `json:"similarity"`
}

// Base wraps a chromem collection.
type Base struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     logging.Logger
}

// New opens (or creates) a knowledge base. An empty PersistPath keeps
// everything in memory.
func New(config Config, logger logging.Logger) (*Base, error) {
	if config.Collection == "" {
		config.Collection = "knowledge"
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(config.PersistPath, "knowledge.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("open knowledge store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, LocalEmbedding())
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}

	return &Base{
		db:         db,
		collection: collection,
		logger:     logging.OrNop(logger),
	}, nil
}

// Add stores documents. Entries without an ID get one assigned.
func (b *Base) Add(ctx context.Context, docs []Document) ([]Document, error) {
	stored := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Content == "" {
			return stored, fmt.Errorf("add document: empty content")
		}
		if doc.ID == "" {
			doc.ID = id.NewDocumentID()
		}
		err := b.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		if err != nil {
			return stored, fmt.Errorf("add document %s: %w", doc.ID, err)
		}
		stored = append(stored, doc)
	}
	b.logger.Info("added %d knowledge documents", len(stored))
	return stored, nil
}

// Search returns the contents of the k most similar documents. k is clamped
// to the collection size; an empty collection yields no results.
func (b *Base) Search(ctx context.Context, query string, k int) ([]string, error) {
	results, err := b.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Document.Content)
	}
	return contents, nil
}

// Query is Search with scores and metadata.
func (b *Base) Query(ctx context.Context, query string, k int) ([]Result, error) {
	count := b.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 5
	}
	if k > count {
		k = count
	}

	hits, err := b.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Document: Document{
				ID:       h.ID,
				Content:  h.Content,
				Metadata: h.Metadata,
			},
			Similarity: h.Similarity,
		})
	}
	return results, nil
}

// Delete removes documents by ID.
func (b *Base) Delete(ctx context.Context, ids []string) error {
	for _, docID := range ids {
		if err := b.collection.Delete(ctx, nil, nil, docID); err != nil {
			return fmt.Errorf("delete document %s: %w", docID, err)
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (b *Base) Count() int {
	return b.collection.Count()
}
