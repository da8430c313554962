package chunker

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Split cuts doc into overlapping chunks of at most targetSize runes.
// Chunk i starts exactly overlap runes before chunk i-1 ends, so dropping the
// first overlap runes of every chunk but the first rebuilds the document.
// The returned sequence is lazy and may be ranged over more than once.
func Split(doc model.Document, targetSize int, overlap int) (iter.Seq[model.Chunk], error) {
	if targetSize <= 0 {
		return nil, &appErr.ChunkingError{DocumentID: doc.ID, Err: fmt.Errorf("target size must be positive, got %d: %w", targetSize, appErr.ErrInvalid)}
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, &appErr.ChunkingError{DocumentID: doc.ID, Err: fmt.Errorf("overlap %d out of range [0, %d): %w", overlap, targetSize, appErr.ErrInvalid)}
	}
	if !utf8.ValidString(doc.Text) {
		return nil, &appErr.ChunkingError{DocumentID: doc.ID, Err: fmt.Errorf("text is not valid utf-8: %w", appErr.ErrInvalid)}
	}
	if strings.IndexByte(doc.Text, 0) >= 0 {
		return nil, &appErr.ChunkingError{DocumentID: doc.ID, Err: fmt.Errorf("text contains NUL byte: %w", appErr.ErrInvalid)}
	}
	runes := []rune(doc.Text)
	return func(yield func(model.Chunk) bool) {
		n := len(runes)
		start := 0
		for index := 0; start < n; index++ {
			end := min(start+targetSize, n)
			if end < n {
				end = findBoundary(runes, start, end, targetSize, overlap)
			}
			chunk := model.Chunk{
				ID:         model.ChunkID(doc.ID, index),
				DocumentID: doc.ID,
				Source:     doc.Source,
				Index:      index,
				Start:      start,
				End:        end,
				Text:       string(runes[start:end]),
			}
			if !yield(chunk) {
				return
			}
			if end == n {
				return
			}
			start = end - overlap
		}
	}, nil
}

// Collect drains Split into a slice.
func Collect(doc model.Document, targetSize int, overlap int) ([]model.Chunk, error) {
	seq, err := Split(doc, targetSize, overlap)
	if err != nil {
		return nil, err
	}
	var chunks []model.Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// findBoundary returns the cut position for a window [start, end). Candidates
// must lie past the overlap and in the back half of the window so that every
// chunk advances.
func findBoundary(runes []rune, start, end, targetSize, overlap int) int {
	lo := max(start+targetSize/2, start+overlap+1)
	if lo > end {
		return end
	}
	for cut := end; cut >= lo; cut-- {
		if cut-2 >= start && runes[cut-1] == '\n' && runes[cut-2] == '\n' {
			return cut
		}
	}
	for cut := end; cut >= lo; cut-- {
		if unicode.IsSpace(runes[cut-1]) {
			return cut
		}
	}
	return end
}
