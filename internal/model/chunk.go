package model

import "strconv"

// Chunk is a contiguous slice of a document. Start and End are rune offsets.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

func ChunkID(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

func (c Chunk) Metadata() RecordMetadata {
	return RecordMetadata{
		DocumentID: c.DocumentID,
		Source:     c.Source,
		ChunkIndex: c.Index,
		Start:      c.Start,
		End:        c.End,
	}
}
