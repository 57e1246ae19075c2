// Package vector implements the documentation retrieval index: a
// persisted set of embedded documentation chunks searched by cosine
// similarity against a query embedding.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
)

// Chunk is one embedded documentation fragment. Ref points back into the
// knowledge base ("piece:slack", "action:slack/send_message") or names a
// docs page.
type Chunk struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// Hit is a scored search result.
type Hit struct {
	ID    string  `json:"id"`
	Ref   string  `json:"ref,omitempty"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Embedder turns text into a query vector. The LLM provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// indexFile is the on-disk layout.
type indexFile struct {
	Model     string  `json:"model"`
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"chunks"`
}

// Index holds the loaded chunks. Immutable after Load, safe for
// concurrent searches.
type Index struct {
	model     string
	dimension int
	chunks    []Chunk
	logger    *log.Logger
}

// Load reads and validates a persisted index. Any structural problem is
// an error the caller should treat as fatal at startup: a missing or
// corrupt index means retrieval would silently degrade to nothing.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vector index %s: %w", path, err)
	}
	var f indexFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("vector index %s corrupt: %w", path, err)
	}
	if len(f.Chunks) == 0 {
		return nil, fmt.Errorf("vector index %s has no chunks", path)
	}
	if f.Dimension <= 0 {
		return nil, fmt.Errorf("vector index %s has invalid dimension %d", path, f.Dimension)
	}
	seen := make(map[string]bool, len(f.Chunks))
	for i, c := range f.Chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("vector index %s: chunk %d has empty id", path, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("vector index %s: duplicate chunk id %q", path, c.ID)
		}
		seen[c.ID] = true
		if len(c.Embedding) != f.Dimension {
			return nil, fmt.Errorf("vector index %s: chunk %q has dimension %d, want %d", path, c.ID, len(c.Embedding), f.Dimension)
		}
	}

	idx := &Index{
		model:     f.Model,
		dimension: f.Dimension,
		chunks:    f.Chunks,
		logger:    log.New(log.Writer(), "[VECTOR] ", log.LstdFlags),
	}
	idx.logger.Printf("vector index loaded from %s (%d chunks, dim %d, model %s)", path, len(f.Chunks), f.Dimension, f.Model)
	return idx, nil
}

// Model returns the embedding model the index was built with. Queries
// must be embedded with the same model or similarities are meaningless.
func (idx *Index) Model() string { return idx.model }

// Size returns the number of chunks.
func (idx *Index) Size() int { return len(idx.chunks) }

// Refs returns the distinct non-empty back-references in the index,
// used by the drift checker to validate against the knowledge base.
func (idx *Index) Refs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range idx.chunks {
		if c.Ref == "" || seen[c.Ref] {
			continue
		}
		seen[c.Ref] = true
		out = append(out, c.Ref)
	}
	sort.Strings(out)
	return out
}

// Search embeds the query and returns the topK most similar chunks in
// descending score order. Ties break on chunk ID so results are stable.
func (idx *Index) Search(ctx context.Context, embedder Embedder, query string, topK int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(qv) != idx.dimension {
		return nil, fmt.Errorf("query embedding dimension %d does not match index dimension %d", len(qv), idx.dimension)
	}

	hits := make([]Hit, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		hits = append(hits, Hit{
			ID:    c.ID,
			Ref:   c.Ref,
			Title: c.Title,
			Text:  c.Text,
			Score: cosine(qv, c.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
