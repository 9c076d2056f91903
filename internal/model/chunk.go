package model

type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeCode  ChunkType = "code"
	ChunkTypeMixed ChunkType = "mixed"
)

type Chunk struct {
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	ChunkType  ChunkType `json:"chunk_type"`
	Position   int       `json:"position"`
}
