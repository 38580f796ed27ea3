package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"book-rag-backend/internal/config"
	"book-rag-backend/internal/logger"
	"book-rag-backend/models"
)

// Store is the vector index over book chunks, backed by a MongoDB collection
// with an Atlas Vector Search index (cosine similarity). Scores returned by
// $vectorSearch are normalized to [0,1]; higher means more similar.
type Store struct {
	client    *mongo.Client
	col       *mongo.Collection
	indexName string
	dims      int
}

// SearchResult is one scored point returned by the index, payload included.
type SearchResult struct {
	ChunkID         string  `bson:"chunk_id"`
	DocumentID      string  `bson:"document_id"`
	DocumentOrdinal int     `bson:"document_ordinal"`
	DocumentTitle   string  `bson:"document_title"`
	Text            string  `bson:"text"`
	Position        int     `bson:"position"`
	TokenCount      int     `bson:"token_count"`
	Score           float64 `bson:"score"`
}

func NewStore(client *mongo.Client, cfg *config.Config) *Store {
	return &Store{
		client:    client,
		col:       client.Database(cfg.DBName).Collection(cfg.VectorCollection),
		indexName: cfg.VectorIndexName,
		dims:      cfg.VectorDimensions,
	}
}

// EnsureCollection prepares the chunk collection and its vector search index.
// With force it drops the collection first (recreate semantics); otherwise an
// existing collection is reused as-is.
func (s *Store) EnsureCollection(ctx context.Context, force bool) error {
	if force {
		logger.Info("Dropping existing chunk collection", "collection", s.col.Name())
		if err := s.col.Drop(ctx); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chunk_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create chunk_id index: %w", err)
	}

	definition := bson.D{
		{Key: "fields", Value: bson.A{
			bson.D{
				{Key: "type", Value: "vector"},
				{Key: "path", Value: "vector"},
				{Key: "numDimensions", Value: s.dims},
				{Key: "similarity", Value: "cosine"},
			},
			bson.D{
				{Key: "type", Value: "filter"},
				{Key: "path", Value: "document_ordinal"},
			},
		}},
	}

	_, err = s.col.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(s.indexName).SetType("vectorSearch"),
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "Duplicate") {
			logger.Info("Vector search index already exists", "index", s.indexName)
			return nil
		}
		// Search indexes are an Atlas feature; against a plain mongod the
		// command is unknown and the index must be created out of band.
		logger.Warn("Could not create vector search index", "index", s.indexName, "error", err)
		return nil
	}

	logger.Info("Created vector search index", "index", s.indexName, "dimensions", s.dims)
	return nil
}

// Upsert writes chunk embeddings keyed by chunk_id so re-ingestion of
// unchanged content overwrites in place.
func (s *Store) Upsert(ctx context.Context, embeddings []models.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	batch := make([]mongo.WriteModel, 0, len(embeddings))
	for _, emb := range embeddings {
		if len(emb.Vector) != s.dims {
			return fmt.Errorf("chunk %s: vector dimension %d does not match collection dimension %d",
				emb.ID, len(emb.Vector), s.dims)
		}
		doc := bson.M{
			"chunk_id":         emb.ID,
			"document_id":      emb.DocumentID,
			"document_ordinal": emb.DocumentOrdinal,
			"document_title":   emb.DocumentTitle,
			"text":             emb.Text,
			"position":         emb.Position,
			"token_count":      emb.TokenCount,
			"vector":           emb.Vector,
		}
		batch = append(batch, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"chunk_id": emb.ID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := s.col.BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to upsert %d chunks: %w", len(embeddings), err)
	}
	return nil
}

// Search runs a top-k similarity query, optionally filtered to a single
// document ordinal. Results come back ordered by descending score.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, documentOrdinal *int) ([]SearchResult, error) {
	search := bson.D{
		{Key: "index", Value: s.indexName},
		{Key: "path", Value: "vector"},
		{Key: "queryVector", Value: vector},
		{Key: "numCandidates", Value: topK * 10},
		{Key: "limit", Value: topK},
	}
	if documentOrdinal != nil {
		search = append(search, bson.E{Key: "filter", Value: bson.D{
			{Key: "document_ordinal", Value: *documentOrdinal},
		}})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.D{
			{Key: "chunk_id", Value: 1},
			{Key: "document_id", Value: 1},
			{Key: "document_ordinal", Value: 1},
			{Key: "document_title", Value: 1},
			{Key: "text", Value: 1},
			{Key: "position", Value: 1},
			{Key: "token_count", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	results := make([]SearchResult, 0, topK)
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return results, nil
}

// Stats returns the number of points in the collection.
func (s *Store) Stats(ctx context.Context) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{})
}

// Healthy reports whether the index is reachable and the collection is
// readable.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		logger.Error("Vector store health check failed", "error", err)
		return false
	}
	if _, err := s.col.EstimatedDocumentCount(ctx); err != nil {
		logger.Error("Vector store collection not readable", "collection", s.col.Name(), "error", err)
		return false
	}
	return true
}
