package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"book-rag-backend/internal/ai"
	"book-rag-backend/internal/config"
	"book-rag-backend/internal/logger"
	"book-rag-backend/internal/vectorstore"
	"book-rag-backend/models"
)

var ErrEmptyQuery = errors.New("query must not be empty")

// Embedder turns text into a vector in the index's space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator produces an answer from the query and retrieved context.
// Implementations degrade internally; an error here is unexpected.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, contextChunks []string, selectedText string) (string, error)
}

// VectorSearcher runs top-k similarity queries against the chunk index.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, documentOrdinal *int) ([]vectorstore.SearchResult, error)
}

// SessionStore is the slice of HistoryService the query pipeline needs.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (models.ConversationSession, error)
	ResolveSession(ctx context.Context, sessionID string) (models.ConversationSession, SessionResolution, error)
	SaveMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
}

// RAGService drives a query end to end: embed, retrieve, filter, generate,
// persist. Embedding, retrieval, and persistence failures abort the query;
// generation failures degrade to a fallback answer so retrieval work is
// never thrown away.
type RAGService struct {
	embedder  Embedder
	searcher  VectorSearcher
	generator AnswerGenerator
	sessions  SessionStore

	threshold   float64
	defaultTopK int
}

func NewRAGService(embedder Embedder, searcher VectorSearcher, generator AnswerGenerator, sessions SessionStore, cfg *config.Config) *RAGService {
	return &RAGService{
		embedder:    embedder,
		searcher:    searcher,
		generator:   generator,
		sessions:    sessions,
		threshold:   cfg.SimilarityThreshold,
		defaultTopK: cfg.TopKResults,
	}
}

// Query answers one user question.
func (s *RAGService) Query(ctx context.Context, userID string, req models.QueryRequest) (*models.QueryResponse, error) {
	tracer := otel.Tracer("rag-service")
	ctx, span := tracer.Start(ctx, "rag.query")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.searcher.Search(ctx, vector, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	sources := make([]models.RetrievedContext, 0, len(results))
	contextChunks := make([]string, 0, len(results))
	for _, res := range results {
		if res.Score < s.threshold {
			continue
		}
		sources = append(sources, models.RetrievedContext{
			ChunkText:       res.Text,
			DocumentOrdinal: res.DocumentOrdinal,
			DocumentTitle:   res.DocumentTitle,
			SimilarityScore: res.Score,
			Position:        res.Position,
		})
		contextChunks = append(contextChunks, res.Text)
	}
	span.SetAttributes(
		attribute.Int("rag.results", len(results)),
		attribute.Int("rag.sources_above_threshold", len(sources)),
	)

	answer, err := s.generator.Generate(ctx, query, contextChunks, req.SelectedText)
	if err != nil {
		logger.Error("answer generation failed, using fallback", "error", err)
		answer = ai.FallbackAnswer
	}

	session, err := s.resolveOrCreateSession(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.SaveMessage(ctx, models.ChatMessage{
		SessionID:    session.ID,
		Role:         models.RoleUser,
		Content:      query,
		SelectedText: req.SelectedText,
	}); err != nil {
		return nil, err
	}
	assistantMsg, err := s.sessions.SaveMessage(ctx, models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
		Sources:   sources,
	})
	if err != nil {
		return nil, err
	}

	return &models.QueryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: session.ID,
		MessageID: assistantMsg.ID,
	}, nil
}

// resolveOrCreateSession reuses the requested session when it exists and
// silently falls back to a fresh one otherwise. The response carries the
// session actually used, so clients can adopt the fallback.
func (s *RAGService) resolveOrCreateSession(ctx context.Context, userID, sessionID string) (models.ConversationSession, error) {
	if sessionID != "" {
		session, resolution, err := s.sessions.ResolveSession(ctx, sessionID)
		if err != nil {
			return models.ConversationSession{}, fmt.Errorf("failed to resolve session: %w", err)
		}
		switch resolution {
		case SessionFound:
			return session, nil
		case SessionNotFound:
			logger.Warn("session not found, creating a new one", "requested_session_id", sessionID)
		case SessionIDInvalid:
			logger.Warn("malformed session id, creating a new one", "requested_session_id", sessionID)
		}
	}

	session, err := s.sessions.CreateSession(ctx, userID)
	if err != nil {
		return models.ConversationSession{}, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
