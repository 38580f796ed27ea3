package services

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/pkoukk/tiktoken-go"

	"book-rag-backend/models"
)

// tokenCounter returns the token count of a piece of text. Production uses
// the cl100k_base BPE encoding; tests inject a cheap counter.
type tokenCounter func(text string) int

// ChunkingService cuts documents into sentence-aligned, token-bounded chunks.
// Sentences are never split; a chunk closes when the next sentence would push
// it past the target size, and the tail sentences of the closed chunk seed
// the next one up to the overlap budget. A single sentence larger than the
// target size becomes its own oversized chunk.
type ChunkingService struct {
	targetSize  int
	overlap     int
	sentenceTok *sentences.DefaultSentenceTokenizer
	countTokens tokenCounter
}

func NewChunkingService(targetSize, overlap int) (*ChunkingService, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return newChunkingService(targetSize, overlap, func(text string) int {
		return len(encoding.Encode(text, nil, nil))
	})
}

func newChunkingService(targetSize, overlap int, count tokenCounter) (*ChunkingService, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", targetSize)
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got overlap=%d size=%d", overlap, targetSize)
	}

	sentenceTok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sentence tokenizer: %w", err)
	}

	return &ChunkingService{
		targetSize:  targetSize,
		overlap:     overlap,
		sentenceTok: sentenceTok,
		countTokens: count,
	}, nil
}

// ChunkDocument splits one document. Chunk IDs derive from the document ID
// and chunk position, so chunking the same content twice yields identical
// IDs and re-ingestion overwrites instead of duplicating.
func (s *ChunkingService) ChunkDocument(doc models.Document) []models.Chunk {
	body := strings.TrimSpace(doc.Body)
	if body == "" {
		return nil
	}

	sents := s.splitSentences(body)
	if len(sents) == 0 {
		return nil
	}

	var chunks []models.Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		text := strings.Join(current, " ")
		chunks = append(chunks, models.Chunk{
			ID:              fmt.Sprintf("%s-chunk-%03d", doc.ID, len(chunks)),
			DocumentID:      doc.ID,
			DocumentOrdinal: doc.Ordinal,
			DocumentTitle:   doc.Title,
			Text:            text,
			Position:        len(chunks),
			TokenCount:      s.countTokens(text),
		})
	}

	for _, sent := range sents {
		n := s.countTokens(sent)
		if currentTokens+n > s.targetSize && len(current) > 0 {
			flush()
			current, currentTokens = s.overlapTail(current)
		}
		current = append(current, sent)
		currentTokens += n
	}
	if len(current) > 0 {
		flush()
	}

	return chunks
}

// overlapTail picks whole sentences off the end of a closed chunk, newest
// first, until adding another would exceed the overlap budget.
func (s *ChunkingService) overlapTail(closed []string) ([]string, int) {
	if s.overlap == 0 {
		return nil, 0
	}

	total := 0
	start := len(closed)
	for i := len(closed) - 1; i >= 0; i-- {
		n := s.countTokens(closed[i])
		if total+n > s.overlap {
			break
		}
		total += n
		start = i
	}

	tail := make([]string, len(closed)-start)
	copy(tail, closed[start:])
	return tail, total
}

func (s *ChunkingService) splitSentences(text string) []string {
	raw := s.sentenceTok.Tokenize(text)
	sents := make([]string, 0, len(raw))
	for _, sent := range raw {
		trimmed := strings.TrimSpace(sent.Text)
		if trimmed != "" {
			sents = append(sents, trimmed)
		}
	}
	return sents
}
