package rag

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Document is one embedded unit of content held by a VectorStore.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// QueryResult is a Document returned from a similarity query, annotated with
// its similarity score.
type QueryResult struct {
	Document
	Similarity float32
}

// StoreConfig configures a VectorStore.
type StoreConfig struct {
	// PersistPath, when non-empty, backs the store with an on-disk
	// chromem-go database at that path. Empty means in-memory only.
	PersistPath string
	Collection  string
}

// embedderLike is the subset of Embedder a VectorStore needs, so stub
// embedders can stand in for tests.
type embedderLike interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// VectorStore persists embedded documents and serves similarity queries
// against them, backed by chromem-go.
type VectorStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embedderLike
	docs       map[string]Document
}

// NewVectorStore opens (or creates) a collection in a chromem-go database.
// An empty PersistPath creates an in-memory, non-durable store.
func NewVectorStore(cfg StoreConfig, embedder embedderLike) (*VectorStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vector store: collection name is required")
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}

	embFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embFunc)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q: %w", cfg.Collection, err)
	}

	return &VectorStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		docs:       make(map[string]Document),
	}, nil
}

// Add upserts documents into the store. Documents without a precomputed
// Embedding are embedded on write by the collection's embedding function.
func (s *VectorStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
			Content:   d.Content,
		}
	}

	concurrency := runtime.NumCPU()
	if concurrency < 1 {
		concurrency = 1
	}
	if err := s.collection.AddDocuments(ctx, chromemDocs, concurrency); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	s.mu.Lock()
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	s.mu.Unlock()
	return nil
}

// Count returns the number of documents currently held by the collection.
func (s *VectorStore) Count() int {
	return s.collection.Count()
}

// Delete removes documents by ID.
func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	s.mu.Unlock()
	return nil
}

// Query runs a similarity search against a precomputed query embedding,
// optionally filtered by exact metadata matches in where.
func (s *VectorStore) Query(ctx context.Context, queryEmbedding []float32, topK int, where map[string]string) ([]QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	n := topK
	if count := s.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, queryEmbedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	out := make([]QueryResult, len(results))
	for i, r := range results {
		out[i] = QueryResult{
			Document: Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

// QueryText embeds query text via the store's embedder, then runs Query.
func (s *VectorStore) QueryText(ctx context.Context, query string, topK int, where map[string]string) ([]QueryResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.Query(ctx, vec, topK, where)
}

// GetByID returns the document last written for id, if known to this
// process. Useful for read-modify-write metadata updates.
func (s *VectorStore) GetByID(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

// Update merges metadata into an existing document and rewrites it. chromem-go
// has no partial-metadata-update primitive, so this deletes and re-adds.
func (s *VectorStore) Update(ctx context.Context, id string, metadata map[string]string) error {
	doc, ok := s.GetByID(id)
	if !ok {
		return fmt.Errorf("update document %q: not found", id)
	}

	merged := make(map[string]string, len(doc.Metadata)+len(metadata))
	for k, v := range doc.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	doc.Metadata = merged

	if err := s.Delete(ctx, []string{id}); err != nil {
		return err
	}
	return s.Add(ctx, []Document{doc})
}

// Close releases any resources held by the underlying database. chromem-go
// flushes synchronously on write, so this is currently a no-op kept for
// symmetry with callers that defer store.Close().
func (s *VectorStore) Close() error {
	return nil
}
