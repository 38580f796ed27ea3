package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"book-rag-backend/internal/logger"
	"book-rag-backend/models"
)

// BatchEmbedder embeds a batch of texts, preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorUpserter writes chunk embeddings into the index.
type VectorUpserter interface {
	Upsert(ctx context.Context, embeddings []models.ChunkEmbedding) error
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Documents int
	Chunks    int
	Embedded  int
	Batches   int
}

// IngestionService turns book chapters into indexed chunk embeddings. It runs
// single-threaded on purpose: the embedding API's rate gate serializes calls
// anyway, and a deterministic order makes partial failures easy to resume.
type IngestionService struct {
	chunker   *ChunkingService
	embedder  BatchEmbedder
	store     VectorUpserter
	batchSize int
}

func NewIngestionService(chunker *ChunkingService, embedder BatchEmbedder, store VectorUpserter, batchSize int) *IngestionService {
	return &IngestionService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
	}
}

// ChunkDocuments chunks every document in order. No remote calls.
func (s *IngestionService) ChunkDocuments(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		docChunks := s.chunker.ChunkDocument(doc)
		logger.Info("chunked document", "document_id", doc.ID, "chunks", len(docChunks))
		chunks = append(chunks, docChunks...)
	}
	return chunks
}

// IngestDocuments chunks all documents, then embeds and upserts in batches.
// A failing batch stops the run; batches already upserted stay committed, and
// re-running is safe because chunk IDs are deterministic.
func (s *IngestionService) IngestDocuments(ctx context.Context, docs []models.Document) (IngestStats, error) {
	chunks := s.ChunkDocuments(docs)
	stats := IngestStats{Documents: len(docs), Chunks: len(chunks)}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("batch %d (chunks %d-%d): embedding failed: %w",
				stats.Batches+1, start, end-1, err)
		}

		embeddings := make([]models.ChunkEmbedding, len(batch))
		for i, chunk := range batch {
			embeddings[i] = models.ChunkEmbedding{Chunk: chunk, Vector: vectors[i]}
		}
		if err := s.store.Upsert(ctx, embeddings); err != nil {
			return stats, fmt.Errorf("batch %d (chunks %d-%d): upsert failed: %w",
				stats.Batches+1, start, end-1, err)
		}

		stats.Embedded += len(batch)
		stats.Batches++
		logger.Info("ingested batch", "batch", stats.Batches, "chunks", len(batch), "total_embedded", stats.Embedded)
	}

	return stats, nil
}

// LoadDocsDir reads book chapters from markdown files in dir. Each file needs
// a frontmatter block with chapter and title; files without one are skipped
// with a warning. Documents come back ordered by chapter number.
func LoadDocsDir(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read docs directory: %w", err)
	}

	var docs []models.Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".md" && ext != ".mdx" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		doc, ok := parseMarkdownDoc(string(raw))
		if !ok {
			logger.Warn("skipping file without chapter/title frontmatter", "file", entry.Name())
			continue
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Ordinal < docs[j].Ordinal })
	return docs, nil
}

// parseMarkdownDoc extracts the frontmatter block and body. It requires both
// a numeric chapter and a title; everything else in the frontmatter is
// carried as metadata.
func parseMarkdownDoc(raw string) (models.Document, bool) {
	content := strings.TrimLeft(raw, "\uFEFF\n\r ")
	if !strings.HasPrefix(content, "---") {
		return models.Document{}, false
	}

	rest := content[3:]
	closeIdx := strings.Index(rest, "\n---")
	if closeIdx < 0 {
		return models.Document{}, false
	}
	front := rest[:closeIdx]
	body := rest[closeIdx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")

	meta := map[string]string{}
	for _, line := range strings.Split(front, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key != "" && value != "" {
			meta[key] = value
		}
	}

	ordinal, err := strconv.Atoi(meta["chapter"])
	if err != nil || meta["title"] == "" {
		return models.Document{}, false
	}

	doc := models.Document{
		ID:        fmt.Sprintf("chapter-%02d", ordinal),
		Ordinal:   ordinal,
		Title:     meta["title"],
		Body:      strings.TrimSpace(body),
		URL:       meta["url"],
		WordCount: len(strings.Fields(body)),
	}
	delete(meta, "chapter")
	delete(meta, "title")
	delete(meta, "url")
	if len(meta) > 0 {
		doc.Metadata = meta
	}
	return doc, true
}
