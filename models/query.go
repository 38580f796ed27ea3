package models

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query        string `json:"query" binding:"required,min=1,max=2000"`
	SelectedText string `json:"selected_text,omitempty" binding:"omitempty,max=5000"`
	TopK         int    `json:"top_k,omitempty" binding:"omitempty,min=1,max=20"`
	SessionID    string `json:"session_id,omitempty"`
}

// RetrievedContext is one scored chunk used to ground an answer. Scores are
// normalized similarity in [0,1], higher is more similar.
type RetrievedContext struct {
	ChunkText       string  `json:"chunk_text" bson:"chunk_text"`
	DocumentOrdinal int     `json:"document_ordinal" bson:"document_ordinal"`
	DocumentTitle   string  `json:"document_title" bson:"document_title"`
	SimilarityScore float64 `json:"similarity_score" bson:"similarity_score"`
	Position        int     `json:"position" bson:"position"`
}

// QueryResponse carries the generated answer together with its grounding
// sources and the session the exchange was persisted under. SessionID is the
// resolved session and may differ from the one submitted.
type QueryResponse struct {
	Answer    string             `json:"answer"`
	Sources   []RetrievedContext `json:"sources"`
	SessionID string             `json:"session_id"`
	MessageID string             `json:"message_id"`
}
