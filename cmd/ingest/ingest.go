package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"book-rag-backend/internal/ai"
	"book-rag-backend/internal/config"
	"book-rag-backend/internal/logger"
	"book-rag-backend/internal/vectorstore"
	"book-rag-backend/services"
)

func main() {
	docsDir := flag.String("docs-dir", "./docs", "directory with markdown chapters")
	forceRecreate := flag.Bool("force-recreate", false, "drop and recreate the chunk collection before ingesting")
	batchSize := flag.Int("batch-size", 0, "chunks per embed/upsert batch (0 uses INGEST_BATCH_SIZE)")
	dryRun := flag.Bool("dry-run", false, "chunk only, no embedding or indexing")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if *batchSize > 0 {
		cfg.IngestBatchSize = *batchSize
	}

	docs, err := services.LoadDocsDir(*docsDir)
	if err != nil {
		log.Fatal("Failed to load documents:", err)
	}
	if len(docs) == 0 {
		log.Fatalf("No ingestible documents in %s", *docsDir)
	}

	chunker, err := services.NewChunkingService(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Failed to build chunker:", err)
	}

	if *dryRun {
		chunks := services.NewIngestionService(chunker, nil, nil, cfg.IngestBatchSize).ChunkDocuments(docs)
		fmt.Printf("Dry run: %d documents -> %d chunks (nothing indexed)\n", len(docs), len(chunks))
		return
	}

	ctx := context.Background()

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(shutdownCtx)
	}()

	gemini, err := ai.NewGeminiClient(cfg)
	if err != nil {
		log.Fatal("Failed to create Gemini client:", err)
	}
	defer gemini.Close()

	store := vectorstore.NewStore(mongoClient, cfg)
	if err := store.EnsureCollection(ctx, *forceRecreate); err != nil {
		log.Fatal("Failed to prepare vector collection:", err)
	}

	ingester := services.NewIngestionService(chunker, gemini, store, cfg.IngestBatchSize)

	start := time.Now()
	stats, err := ingester.IngestDocuments(ctx, docs)
	elapsed := time.Since(start).Round(time.Second)

	fmt.Printf("Ingested %d/%d chunks from %d documents in %d batches (%s)\n",
		stats.Embedded, stats.Chunks, stats.Documents, stats.Batches, elapsed)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion stopped early: %v\n", err)
		fmt.Fprintln(os.Stderr, "Committed batches are kept; re-run to resume.")
		os.Exit(1)
	}

	if total, err := store.Stats(ctx); err == nil {
		fmt.Printf("Collection now holds %d chunks\n", total)
	}
}
