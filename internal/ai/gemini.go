package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"book-rag-backend/internal/config"
	"book-rag-backend/internal/logger"
)

// FallbackAnswer is the fixed user-facing reply when answer generation keeps
// failing. The query pipeline always completes with some answer.
const FallbackAnswer = "I apologize, but I'm experiencing technical difficulties generating a response. Please try again in a moment."

// GeminiClient wraps the Gemini API for embeddings and answer generation.
// A single rate limiter gates every remote call because embeddings and
// generation draw from the same quota pool; concurrent requests queue on it
// instead of violating the quota.
type GeminiClient struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	limiter         *rate.Limiter
	retry           retryPolicy
	embeddingModel  string
	generationModel string
	vectorDim       int
}

func NewGeminiClient(cfg *config.Config) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	// Burst 1 gives a strict minimum interval between consecutive calls.
	limiter := rate.NewLimiter(rate.Every(cfg.MinRequestInterval), 1)

	return &GeminiClient{
		client:  client,
		breaker: breaker,
		limiter: limiter,
		retry: retryPolicy{
			maxAttempts: cfg.MaxRetries,
			baseDelay:   cfg.RetryBaseDelay,
		},
		embeddingModel:  cfg.EmbeddingsModel,
		generationModel: cfg.GenerationModel,
		vectorDim:       cfg.VectorDimensions,
	}, nil
}

// Embed returns the embedding vector for the given text. Transient failures
// are retried with exponential backoff; exhaustion propagates the error since
// there is no safe fallback vector.
func (gc *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return gc.embed(ctx, text, gc.retry)
}

// EmbedBatch embeds texts one by one, preserving input order. The first
// failed text aborts the batch.
func (gc *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := gc.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (gc *GeminiClient) embed(ctx context.Context, text string, policy retryPolicy) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", gc.embeddingModel))

	var vec []float32
	err := policy.do(ctx, "embed", func() error {
		if err := gc.limiter.Wait(ctx); err != nil {
			return err
		}

		model := gc.client.EmbeddingModel(gc.embeddingModel)
		resp, err := model.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return fmt.Errorf("no embedding returned")
		}
		if len(resp.Embedding.Values) != gc.vectorDim {
			// Model/config disagreement, retrying cannot fix it.
			return fmt.Errorf("%w: embedding dimension %d does not match configured %d",
				ErrNotRetryable, len(resp.Embedding.Values), gc.vectorDim)
		}
		vec = resp.Embedding.Values
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	span.SetAttributes(attribute.Int("gemini.vector_dim", len(vec)))
	return vec, nil
}

// Generate produces an answer for the query given retrieved context chunks
// and optional selected text. Empty context still generates an answer
// (general-knowledge fallback). When retries are exhausted or the breaker is
// open it returns FallbackAnswer instead of an error so the pipeline always
// completes.
func (gc *GeminiClient) Generate(ctx context.Context, query string, contextChunks []string, selectedText string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", gc.generationModel),
	)

	prompt := buildPrompt(query, contextChunks, selectedText)

	var answer string
	err := gc.retry.do(ctx, "generate", func() error {
		if err := gc.limiter.Wait(ctx); err != nil {
			return err
		}

		result, err := gc.breaker.Execute(func() (interface{}, error) {
			model := gc.client.GenerativeModel(gc.generationModel)
			model.SetTemperature(0.7)
			model.SetMaxOutputTokens(2048)

			resp, err := model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return nil, err
			}
			return responseText(resp), nil
		})
		if err != nil {
			return err
		}
		answer = result.(string)
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.fallback", true))
		logger.Error("answer generation degraded to fallback", "error", err)
		return FallbackAnswer, nil
	}

	if answer == "" {
		answer = "No answer generated."
	}
	span.SetAttributes(attribute.Bool("gemini.success", true))
	return answer, nil
}

// Healthy probes the API with a single-attempt embedding call and verifies
// the dimensionality against the configured vector size.
func (gc *GeminiClient) Healthy(ctx context.Context) bool {
	_, err := gc.embed(ctx, "health check", retryPolicy{maxAttempts: 1, baseDelay: gc.retry.baseDelay})
	if err != nil {
		logger.Error("LLM health check failed", "error", err)
		return false
	}
	return true
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}
