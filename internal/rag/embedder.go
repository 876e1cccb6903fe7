package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	sharederrors "weavectx/internal/shared/errors"
)

// EmbedderConfig configures an Embedder.
type EmbedderConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	CacheSize int
}

// knownDimensions maps well-known embedding model names to their output
// vector size, so Dimensions() is answerable without a network round-trip.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"all-MiniLM-L6-v2":       384,
}

// Embedder turns text into vectors via an OpenAI-compatible embeddings
// endpoint, caching results per input text.
type Embedder struct {
	cfg        EmbedderConfig
	dimensions int
	cache      *lru.Cache[string, []float32]
	client     *http.Client
	breaker    *sharederrors.CircuitBreaker
}

// NewEmbedder constructs an Embedder. No network call is made until Embed or
// EmbedBatch is invoked, so a missing API key is not a construction error.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	dims := knownDimensions[cfg.Model]
	if dims == 0 {
		dims = 1536
	}

	return &Embedder{
		cfg:        cfg,
		dimensions: dims,
		cache:      cache,
		client:     &http.Client{Timeout: 30 * time.Second},
		breaker:    sharederrors.NewCircuitBreaker("rag-embedder-"+cfg.Provider, sharederrors.DefaultCircuitBreakerConfig()),
	}, nil
}

// Dimensions returns the output vector size for this embedder's model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the embedding vector for a single text, using the cache when
// possible.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	vectors, err := e.embedRemote(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, vectors[0])
	return vectors[0], nil
}

// EmbedBatch returns embedding vectors for multiple texts, fetching only the
// cache misses from the remote provider.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vectors, err := e.embedRemote(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		e.cache.Add(missTexts[j], vectors[j])
	}
	return out, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// embedRemote calls out through a circuit breaker: a provider outage trips
// the breaker after repeated failures, so subsequent calls fail fast instead
// of piling up timeouts against a dead endpoint.
func (e *Embedder) embedRemote(ctx context.Context, texts []string) ([][]float32, error) {
	return sharederrors.ExecuteFunc(e.breaker, ctx, func(ctx context.Context) ([][]float32, error) {
		return e.doEmbedRemote(ctx, texts)
	})
}

func (e *Embedder) doEmbedRemote(ctx context.Context, texts []string) ([][]float32, error) {
	if e.cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder: no API key configured for provider %q", e.cfg.Provider)
	}

	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	url := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("embedding provider error: %s", decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	out := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
