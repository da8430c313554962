package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

var (
	ErrUnavailable = errors.New("ai provider unavailable")
	ErrRateLimited = errors.New("ai provider rate limited")
	ErrServer      = errors.New("ai provider server error")
	ErrRejected    = errors.New("ai provider rejected request")
)

// IsTransient reports whether a retry may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var embedErr *appErr.EmbeddingError
	if errors.As(err, &embedErr) {
		return embedErr.Transient
	}
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func classifyStatus(provider string, status int, err error) error {
	switch {
	case status == 429:
		return fmt.Errorf("%s: %w: %w", provider, ErrRateLimited, err)
	case status >= 500:
		return fmt.Errorf("%s: %w: %w", provider, ErrServer, err)
	case status >= 400:
		return fmt.Errorf("%s: %w: %w", provider, ErrRejected, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

func classifyMessage(provider string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "Error 429"):
		return classifyStatus(provider, 429, err)
	case strings.Contains(msg, "UNAVAILABLE") || strings.Contains(msg, "INTERNAL") || strings.Contains(msg, "Error 50"):
		return classifyStatus(provider, 500, err)
	case strings.Contains(msg, "INVALID_ARGUMENT") || strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "Error 40"):
		return classifyStatus(provider, 400, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// AsEmbeddingError tags err with its transient/permanent kind.
func AsEmbeddingError(err error) error {
	if err == nil {
		return nil
	}
	var embedErr *appErr.EmbeddingError
	if errors.As(err, &embedErr) {
		return err
	}
	return &appErr.EmbeddingError{Transient: IsTransient(err), Err: err}
}
