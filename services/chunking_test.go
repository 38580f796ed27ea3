package services

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"book-rag-backend/models"
)

// wordCount stands in for the BPE encoding so tests stay offline and the
// token arithmetic is easy to reason about.
func wordCount(text string) int {
	return len(strings.Fields(text))
}

func testChunker(t *testing.T, size, overlap int) *ChunkingService {
	t.Helper()
	svc, err := newChunkingService(size, overlap, wordCount)
	if err != nil {
		t.Fatalf("newChunkingService: %v", err)
	}
	return svc
}

// sixWordSentences builds n distinct sentences of six words each.
func sixWordSentences(n int) []string {
	sents := make([]string, n)
	for i := range sents {
		sents[i] = fmt.Sprintf("Sentence number %d has six words.", i+1)
	}
	return sents
}

func testDocument(body string) models.Document {
	return models.Document{
		ID:      "chapter-01",
		Ordinal: 1,
		Title:   "Introduction",
		Body:    body,
	}
}

func TestChunkDocumentSentencesStayWhole(t *testing.T) {
	svc := testChunker(t, 20, 8)
	sents := sixWordSentences(10)
	chunks := svc.ChunkDocument(testDocument(strings.Join(sents, " ")))

	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}
	for _, sent := range sents {
		found := false
		for _, chunk := range chunks {
			if strings.Contains(chunk.Text, sent) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("sentence %q not found whole in any chunk", sent)
		}
	}
}

func TestChunkDocumentRespectsSizeBound(t *testing.T) {
	svc := testChunker(t, 20, 8)
	chunks := svc.ChunkDocument(testDocument(strings.Join(sixWordSentences(10), " ")))

	for _, chunk := range chunks {
		if chunk.TokenCount > 20 {
			t.Errorf("chunk %s has %d tokens, want <= 20", chunk.ID, chunk.TokenCount)
		}
	}
}

func TestChunkDocumentOverlapSeedsNextChunk(t *testing.T) {
	svc := testChunker(t, 20, 8)
	chunks := svc.ChunkDocument(testDocument(strings.Join(sixWordSentences(10), " ")))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevSents := strings.Split(chunks[i-1].Text, ". ")
		lastSent := prevSents[len(prevSents)-1]
		if !strings.HasPrefix(chunks[i].Text, strings.TrimSuffix(lastSent, ".")) {
			t.Errorf("chunk %d does not start with the tail of chunk %d:\nprev: %q\nnext: %q",
				i, i-1, chunks[i-1].Text, chunks[i].Text)
		}
	}
}

func TestChunkDocumentNoOverlapWhenDisabled(t *testing.T) {
	svc := testChunker(t, 20, 0)
	sents := sixWordSentences(10)
	chunks := svc.ChunkDocument(testDocument(strings.Join(sents, " ")))

	totalSents := 0
	for _, chunk := range chunks {
		for _, sent := range sents {
			if strings.Contains(chunk.Text, sent) {
				totalSents++
			}
		}
	}
	if totalSents != len(sents) {
		t.Errorf("with zero overlap every sentence should appear exactly once, got %d placements for %d sentences",
			totalSents, len(sents))
	}
}

func TestChunkDocumentIdempotentIDs(t *testing.T) {
	svc := testChunker(t, 20, 8)
	doc := testDocument(strings.Join(sixWordSentences(10), " "))

	first := svc.ChunkDocument(doc)
	second := svc.ChunkDocument(doc)
	if !reflect.DeepEqual(first, second) {
		t.Error("chunking the same document twice produced different chunks")
	}

	for i, chunk := range first {
		wantID := fmt.Sprintf("chapter-01-chunk-%03d", i)
		if chunk.ID != wantID {
			t.Errorf("chunk %d ID = %q, want %q", i, chunk.ID, wantID)
		}
		if chunk.Position != i {
			t.Errorf("chunk %d position = %d, want %d", i, chunk.Position, i)
		}
		if chunk.DocumentOrdinal != 1 || chunk.DocumentTitle != "Introduction" {
			t.Errorf("chunk %d lost document payload: %+v", i, chunk)
		}
	}
}

func TestChunkDocumentEmptyBody(t *testing.T) {
	svc := testChunker(t, 20, 8)

	if chunks := svc.ChunkDocument(testDocument("")); chunks != nil {
		t.Errorf("empty body should yield no chunks, got %d", len(chunks))
	}
	if chunks := svc.ChunkDocument(testDocument("   \n\t  ")); chunks != nil {
		t.Errorf("whitespace body should yield no chunks, got %d", len(chunks))
	}
}

func TestChunkDocumentOversizedSentenceKeptWhole(t *testing.T) {
	svc := testChunker(t, 10, 4)
	words := make([]string, 30)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	sentence := strings.Join(words, " ") + "."

	chunks := svc.ChunkDocument(testDocument(sentence))
	if len(chunks) != 1 {
		t.Fatalf("oversized single sentence should be one chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Text, "word0") || !strings.Contains(chunks[0].Text, "word29") {
		t.Errorf("oversized sentence was truncated: %q", chunks[0].Text)
	}
}

func TestNewChunkingServiceRejectsBadBounds(t *testing.T) {
	if _, err := newChunkingService(0, 0, wordCount); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := newChunkingService(100, 100, wordCount); err == nil {
		t.Error("expected error for overlap equal to size")
	}
	if _, err := newChunkingService(100, 150, wordCount); err == nil {
		t.Error("expected error for overlap above size")
	}
	if _, err := newChunkingService(100, -1, wordCount); err == nil {
		t.Error("expected error for negative overlap")
	}
}
