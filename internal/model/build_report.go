package model

import "time"

type FailedChunk struct {
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}

type SkippedDocument struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Reason     string `json:"reason"`
}

type BuildReport struct {
	IndexName string            `json:"index_name"`
	Documents int               `json:"documents"`
	Chunks    int               `json:"chunks"`
	Written   int               `json:"written"`
	Failed    []FailedChunk     `json:"failed"`
	Skipped   []SkippedDocument `json:"skipped"`
	Duration  time.Duration     `json:"duration"`
}

func (r *BuildReport) Partial() bool {
	return len(r.Failed) > 0 || len(r.Skipped) > 0
}
