package model

// EmbeddingDim is the dimension of the embedding vectors stored in the
// embeddings table (OpenAI text-embedding-3-small).
const EmbeddingDim = 1536

type Embedding struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	ContentChunk string    `json:"content_chunk"`
	Vector       []float32 `json:"-"`
	ChunkIndex   int       `json:"chunk_index"`
	Ctime        int64     `json:"ctime"`
}

// SearchResult is one similarity-search hit joined with its document.
type SearchResult struct {
	EmbeddingID  string  `json:"embedding_id"`
	DocumentID   string  `json:"document_id"`
	ContentChunk string  `json:"content_chunk"`
	ChunkIndex   int     `json:"chunk_index"`
	Title        string  `json:"title"`
	DocumentType string  `json:"document_type"`
	Department   string  `json:"department"`
	IsSensitive  bool    `json:"is_sensitive"`
	Similarity   float64 `json:"similarity"`
}

type EmbeddingStatus struct {
	DocumentID     string `json:"document_id"`
	HasEmbeddings  bool   `json:"has_embeddings"`
	EmbeddingCount int    `json:"embedding_count"`
}
