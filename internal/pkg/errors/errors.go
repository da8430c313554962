package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrConflict          = errors.New("conflict")
	ErrTooMany           = errors.New("too many requests")
	ErrInternal          = errors.New("internal")
	ErrIndexNotFound     = errors.New("index not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrPromptTooLarge    = errors.New("prompt exceeds input budget")
	ErrEmptyAnswer       = errors.New("empty answer")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ConfigurationError is fatal at startup and never retried.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func NewConfigurationError(field string, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

type ChunkingError struct {
	DocumentID string
	Err        error
}

func (e *ChunkingError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("chunking failed: %v", e.Err)
	}
	return fmt.Sprintf("chunking document %s failed: %v", e.DocumentID, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// EmbeddingError separates transient failures (network, rate limit) from
// permanent content rejections.
type EmbeddingError struct {
	Transient bool
	Err       error
}

func (e *EmbeddingError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("embedding failed (%s): %v", kind, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

type RetrievalError struct {
	IndexName string
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval from index %q failed: %v", e.IndexName, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("answer synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

func IsRetrieval(err error) bool {
	var target *RetrievalError
	return errors.As(err, &target)
}

func IsSynthesis(err error) bool {
	var target *SynthesisError
	return errors.As(err, &target)
}

func IsChunking(err error) bool {
	var target *ChunkingError
	return errors.As(err, &target)
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
