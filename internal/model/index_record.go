package model

type RecordMetadata struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

type IndexRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata RecordMetadata `json:"metadata"`
}

type ScoredRecord struct {
	IndexRecord
	Score float64 `json:"score"`
}

type Passage struct {
	Text     string         `json:"text"`
	Metadata RecordMetadata `json:"metadata"`
	Score    float64        `json:"score"`
}
