package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowpilot-ai/flowpilot/internal/kb"
)

// Document is one unit of text to embed when building the index.
type Document struct {
	ID    string
	Ref   string
	Title string
	Text  string
}

// BatchEmbedder embeds several texts per call. The LLM provider
// satisfies it; batching keeps reindex runs from issuing one request
// per chunk.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Builder constructs and persists a vector index from documents.
type Builder struct {
	embedder  BatchEmbedder
	model     string
	batchSize int
	logger    *log.Logger
}

// NewBuilder returns a Builder that embeds with the given model name
// recorded into the output file.
func NewBuilder(embedder BatchEmbedder, model string, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Builder{
		embedder:  embedder,
		model:     model,
		batchSize: batchSize,
		logger:    log.New(log.Writer(), "[VECTOR] ", log.LstdFlags),
	}
}

// DocumentsFromExport derives index documents from a pieces export. Each
// piece, action and trigger becomes one chunk with a back-reference into
// the knowledge base.
func DocumentsFromExport(pieces []kb.ExportPiece) []Document {
	var docs []Document
	for _, p := range pieces {
		docs = append(docs, Document{
			ID:    "piece:" + p.Name,
			Ref:   "piece:" + p.Name,
			Title: p.DisplayName,
			Text:  pieceText(p),
		})
		for _, a := range p.Actions {
			docs = append(docs, Document{
				ID:    fmt.Sprintf("action:%s/%s", p.Name, a.Name),
				Ref:   fmt.Sprintf("action:%s/%s", p.Name, a.Name),
				Title: fmt.Sprintf("%s: %s", p.DisplayName, a.DisplayName),
				Text:  opText(p.DisplayName, "action", a),
			})
		}
		for _, tr := range p.Triggers {
			docs = append(docs, Document{
				ID:    fmt.Sprintf("trigger:%s/%s", p.Name, tr.Name),
				Ref:   fmt.Sprintf("trigger:%s/%s", p.Name, tr.Name),
				Title: fmt.Sprintf("%s: %s", p.DisplayName, tr.DisplayName),
				Text:  opText(p.DisplayName, "trigger", tr),
			})
		}
	}
	return docs
}

func pieceText(p kb.ExportPiece) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s. %s", p.DisplayName, p.Description)
	if len(p.Categories) > 0 {
		fmt.Fprintf(&b, " Categories: %s.", strings.Join(p.Categories, ", "))
	}
	if len(p.Actions) > 0 {
		names := make([]string, 0, len(p.Actions))
		for _, a := range p.Actions {
			names = append(names, a.DisplayName)
		}
		fmt.Fprintf(&b, " Actions: %s.", strings.Join(names, ", "))
	}
	if len(p.Triggers) > 0 {
		names := make([]string, 0, len(p.Triggers))
		for _, t := range p.Triggers {
			names = append(names, t.DisplayName)
		}
		fmt.Fprintf(&b, " Triggers: %s.", strings.Join(names, ", "))
	}
	return b.String()
}

func opText(pieceDisplay, kind string, op kb.ExportOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s. %s", pieceDisplay, kind, op.DisplayName, op.Description)
	if len(op.Properties) > 0 {
		parts := make([]string, 0, len(op.Properties))
		for _, prop := range op.Properties {
			s := prop.Key
			if prop.Required {
				s += " (required)"
			}
			parts = append(parts, s)
		}
		fmt.Fprintf(&b, " Inputs: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

// Build embeds all documents and writes the index to path atomically
// (write to a temp file, then rename) so a crash mid-build never leaves
// a truncated index behind.
func (b *Builder) Build(ctx context.Context, docs []Document, path string) error {
	if len(docs) == 0 {
		return fmt.Errorf("no documents to index")
	}

	chunks := make([]Chunk, 0, len(docs))
	dimension := 0
	for start := 0; start < len(docs); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + b.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}
		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding batch %d..%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for i, d := range batch {
			if dimension == 0 {
				dimension = len(vectors[i])
			}
			if len(vectors[i]) != dimension {
				return fmt.Errorf("inconsistent embedding dimension for %s: %d vs %d", d.ID, len(vectors[i]), dimension)
			}
			chunks = append(chunks, Chunk{ID: d.ID, Ref: d.Ref, Title: d.Title, Text: d.Text, Embedding: vectors[i]})
		}
		b.logger.Printf("embedded %d/%d documents", end, len(docs))
	}

	raw, err := json.Marshal(indexFile{Model: b.model, Dimension: dimension, Chunks: chunks})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	b.logger.Printf("vector index written to %s (%d chunks, dim %d)", path, len(chunks), dimension)
	return nil
}
