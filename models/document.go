package models

// Document is a single book chapter as parsed from the markdown sources.
// Documents are immutable once ingested; the chunker consumes Body and the
// rest is carried as retrieval payload.
type Document struct {
	ID        string            `json:"id" bson:"id"`
	Ordinal   int               `json:"ordinal" bson:"ordinal"`
	Title     string            `json:"title" bson:"title"`
	Body      string            `json:"body" bson:"body"`
	URL       string            `json:"url,omitempty" bson:"url,omitempty"`
	WordCount int               `json:"word_count" bson:"word_count"`
	Metadata  map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Chunk is a bounded retrieval unit cut from a document. Positions are
// zero-based and contiguous within a document, and the chunk ID is derived
// from the document ID and position so re-ingestion is idempotent.
type Chunk struct {
	ID              string `json:"id" bson:"chunk_id"`
	DocumentID      string `json:"document_id" bson:"document_id"`
	DocumentOrdinal int    `json:"document_ordinal" bson:"document_ordinal"`
	DocumentTitle   string `json:"document_title,omitempty" bson:"document_title,omitempty"`
	Text            string `json:"text" bson:"text"`
	Position        int    `json:"position" bson:"position"`
	TokenCount      int    `json:"token_count" bson:"token_count"`
}

// ChunkEmbedding pairs a chunk with its embedding vector. All vectors in one
// collection share the configured dimensionality.
type ChunkEmbedding struct {
	Chunk  `bson:",inline"`
	Vector []float32 `json:"vector" bson:"vector"`
}
