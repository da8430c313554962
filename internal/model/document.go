package model

import (
	"crypto/sha1"
	"encoding/hex"
)

type Document struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

func NewDocument(source, text string) Document {
	return Document{ID: DocumentID(source), Source: source, Text: text}
}

// DocumentID derives a stable id from the source identifier.
func DocumentID(source string) string {
	h := sha1.Sum([]byte(source))
	return hex.EncodeToString(h[:8])
}
