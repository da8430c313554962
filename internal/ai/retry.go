package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragchat/internal/pkg/backoff"
	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// WrapRetryEmbedder retries transient embedding failures with exponential
// backoff. Errors that escape are *errors.EmbeddingError.
func WrapRetryEmbedder(e IEmbedder, cfg RetryConfig) IEmbedder {
	if e == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &retryEmbedder{next: e, cfg: cfg}
}

type retryEmbedder struct {
	next IEmbedder
	cfg  RetryConfig
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := r.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (r *retryEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff.Delay(r.cfg.BaseDelay, attempt)); err != nil {
				return nil, AsEmbeddingError(err)
			}
		}
		res, err := r.next.EmbedBatch(ctx, texts, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
		logutil.GetLogger(ctx).Warn("embedding attempt failed, will retry",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Int("batch", len(texts)),
			zap.Error(err),
		)
	}
	return nil, AsEmbeddingError(fmt.Errorf("embed %d texts: %w", len(texts), lastErr))
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
