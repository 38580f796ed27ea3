package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"book-rag-backend/internal/ai"
	"book-rag-backend/internal/config"
	"book-rag-backend/internal/vectorstore"
	"book-rag-backend/models"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeSearcher struct {
	results []vectorstore.SearchResult
	err     error
	gotTopK int
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, topK int, documentOrdinal *int) ([]vectorstore.SearchResult, error) {
	f.gotTopK = topK
	return f.results, f.err
}

type fakeGenerator struct {
	answer      string
	err         error
	gotChunks   []string
	gotSelected string
}

func (f *fakeGenerator) Generate(ctx context.Context, query string, contextChunks []string, selectedText string) (string, error) {
	f.gotChunks = contextChunks
	f.gotSelected = selectedText
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeSessions struct {
	known     map[string]models.ConversationSession
	saved     []models.ChatMessage
	createErr error
	saveErr   error
	created   int
}

func (f *fakeSessions) CreateSession(ctx context.Context, userID string) (models.ConversationSession, error) {
	if f.createErr != nil {
		return models.ConversationSession{}, f.createErr
	}
	f.created++
	return models.ConversationSession{ID: fmt.Sprintf("created-%d", f.created), UserID: userID}, nil
}

func (f *fakeSessions) ResolveSession(ctx context.Context, sessionID string) (models.ConversationSession, SessionResolution, error) {
	if sessionID == "not-a-uuid" {
		return models.ConversationSession{}, SessionIDInvalid, nil
	}
	if session, ok := f.known[sessionID]; ok {
		return session, SessionFound, nil
	}
	return models.ConversationSession{}, SessionNotFound, nil
}

func (f *fakeSessions) SaveMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if f.saveErr != nil {
		return models.ChatMessage{}, f.saveErr
	}
	msg.ID = fmt.Sprintf("msg-%d", len(f.saved)+1)
	f.saved = append(f.saved, msg)
	return msg, nil
}

func testRAGConfig() *config.Config {
	return &config.Config{SimilarityThreshold: 0.7, TopKResults: 5}
}

func scoredResults(scores ...float64) []vectorstore.SearchResult {
	results := make([]vectorstore.SearchResult, len(scores))
	for i, score := range scores {
		results[i] = vectorstore.SearchResult{
			ChunkID:         fmt.Sprintf("chapter-01-chunk-%03d", i),
			DocumentOrdinal: 1,
			DocumentTitle:   "Introduction",
			Text:            fmt.Sprintf("chunk text %d", i),
			Position:        i,
			Score:           score,
		}
	}
	return results
}

func TestQueryFiltersSourcesBelowThreshold(t *testing.T) {
	searcher := &fakeSearcher{results: scoredResults(0.91, 0.72, 0.65)}
	generator := &fakeGenerator{answer: "the answer"}
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}}, searcher, generator, sessions, testRAGConfig())

	resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "what is this?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2 (scores 0.91 and 0.72)", len(resp.Sources))
	}
	for _, src := range resp.Sources {
		if src.SimilarityScore < 0.7 {
			t.Errorf("source with score %g slipped below the threshold", src.SimilarityScore)
		}
	}
	if len(generator.gotChunks) != 2 {
		t.Errorf("generator received %d chunks, want 2", len(generator.gotChunks))
	}
}

func TestQueryEmptyContextStillAnswers(t *testing.T) {
	searcher := &fakeSearcher{results: scoredResults(0.4, 0.2)}
	generator := &fakeGenerator{answer: "general knowledge answer"}
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}}, searcher, generator, sessions, testRAGConfig())

	resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "off-topic question"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(resp.Sources))
	}
	if resp.Answer != "general knowledge answer" {
		t.Errorf("answer = %q, want the generated one", resp.Answer)
	}
}

func TestQueryDegradesToFallbackWhenGenerationFails(t *testing.T) {
	searcher := &fakeSearcher{results: scoredResults(0.9)}
	generator := &fakeGenerator{err: errors.New("model unavailable")}
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}}, searcher, generator, sessions, testRAGConfig())

	resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "what is this?"})
	if err != nil {
		t.Fatalf("Query should degrade, not fail: %v", err)
	}
	if resp.Answer != ai.FallbackAnswer {
		t.Errorf("answer = %q, want the fallback", resp.Answer)
	}
	if len(sessions.saved) != 2 {
		t.Errorf("saved %d messages, want 2 even on degraded answers", len(sessions.saved))
	}
}

func TestQueryPersistsUserThenAssistant(t *testing.T) {
	searcher := &fakeSearcher{results: scoredResults(0.9)}
	generator := &fakeGenerator{answer: "the answer"}
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}}, searcher, generator, sessions, testRAGConfig())

	resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{
		Query:        "what is this?",
		SelectedText: "highlighted passage",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if len(sessions.saved) != 2 {
		t.Fatalf("saved %d messages, want 2", len(sessions.saved))
	}
	user, assistant := sessions.saved[0], sessions.saved[1]
	if user.Role != models.RoleUser || user.Content != "what is this?" || user.SelectedText != "highlighted passage" {
		t.Errorf("user message wrong: %+v", user)
	}
	if assistant.Role != models.RoleAssistant || assistant.Content != "the answer" {
		t.Errorf("assistant message wrong: %+v", assistant)
	}
	if len(assistant.Sources) != 1 {
		t.Errorf("assistant message has %d sources, want 1", len(assistant.Sources))
	}
	if resp.MessageID != assistant.ID {
		t.Errorf("response MessageID = %q, want assistant message ID %q", resp.MessageID, assistant.ID)
	}
	if user.SessionID != assistant.SessionID || user.SessionID != resp.SessionID {
		t.Error("messages and response disagree on session ID")
	}
}

func TestQuerySessionFallback(t *testing.T) {
	known := models.ConversationSession{ID: "11111111-1111-1111-1111-111111111111", UserID: "reader-1"}

	tests := []struct {
		name          string
		sessionID     string
		wantSessionID string
		wantCreated   int
	}{
		{"no session requested", "", "created-1", 1},
		{"known session reused", known.ID, known.ID, 0},
		{"unknown session falls back", "22222222-2222-2222-2222-222222222222", "created-1", 1},
		{"malformed session falls back", "not-a-uuid", "created-1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{known: map[string]models.ConversationSession{known.ID: known}}
			svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}},
				&fakeSearcher{results: scoredResults(0.9)},
				&fakeGenerator{answer: "the answer"}, sessions, testRAGConfig())

			resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{
				Query:     "what is this?",
				SessionID: tt.sessionID,
			})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if resp.SessionID != tt.wantSessionID {
				t.Errorf("SessionID = %q, want %q", resp.SessionID, tt.wantSessionID)
			}
			if sessions.created != tt.wantCreated {
				t.Errorf("created %d sessions, want %d", sessions.created, tt.wantCreated)
			}
		})
	}
}

func TestQueryRaisingThresholdNeverAddsSources(t *testing.T) {
	scores := scoredResults(0.95, 0.8, 0.71, 0.5, 0.1)

	prev := len(scores) + 1
	for _, threshold := range []float64{0.0, 0.3, 0.7, 0.9, 1.0} {
		cfg := &config.Config{SimilarityThreshold: threshold, TopKResults: 5}
		svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}},
			&fakeSearcher{results: scores},
			&fakeGenerator{answer: "a"}, &fakeSessions{}, cfg)

		resp, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "q"})
		if err != nil {
			t.Fatalf("Query(threshold=%g): %v", threshold, err)
		}
		if len(resp.Sources) > prev {
			t.Errorf("threshold %g kept %d sources, more than the lower threshold's %d",
				threshold, len(resp.Sources), prev)
		}
		prev = len(resp.Sources)
	}
}

func TestQueryEmbeddingFailureAborts(t *testing.T) {
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{err: errors.New("quota exhausted")},
		&fakeSearcher{}, &fakeGenerator{}, sessions, testRAGConfig())

	_, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "what is this?"})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
	if len(sessions.saved) != 0 {
		t.Errorf("saved %d messages after an aborted query, want 0", len(sessions.saved))
	}
}

func TestQuerySearchFailureAborts(t *testing.T) {
	sessions := &fakeSessions{}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}},
		&fakeSearcher{err: errors.New("index offline")}, &fakeGenerator{}, sessions, testRAGConfig())

	_, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "what is this?"})
	if err == nil {
		t.Fatal("expected error when retrieval fails")
	}
	if len(sessions.saved) != 0 {
		t.Errorf("saved %d messages after an aborted query, want 0", len(sessions.saved))
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	svc := NewRAGService(&fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{}, &fakeSessions{}, testRAGConfig())

	for _, query := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: query}); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Query(%q) = %v, want ErrEmptyQuery", query, err)
		}
	}
}

func TestQueryDefaultsTopK(t *testing.T) {
	searcher := &fakeSearcher{results: scoredResults(0.9)}
	svc := NewRAGService(&fakeEmbedder{vec: []float32{0.1}}, searcher,
		&fakeGenerator{answer: "the answer"}, &fakeSessions{}, testRAGConfig())

	if _, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "q"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if searcher.gotTopK != 5 {
		t.Errorf("topK = %d, want configured default 5", searcher.gotTopK)
	}

	if _, err := svc.Query(context.Background(), "reader-1", models.QueryRequest{Query: "q", TopK: 12}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if searcher.gotTopK != 12 {
		t.Errorf("topK = %d, want requested 12", searcher.gotTopK)
	}
}
