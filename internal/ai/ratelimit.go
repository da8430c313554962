package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// WrapRateLimit paces calls to the embedder and generator through one shared
// token bucket. A non-positive rate disables pacing.
func WrapRateLimit(e IEmbedder, g IGenerator, perSecond float64, burst int) (IEmbedder, IGenerator) {
	if perSecond <= 0 {
		return e, g
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	if e != nil {
		e = &rateLimitedEmbedder{next: e, limiter: limiter}
	}
	if g != nil {
		g = &rateLimitedGenerator{next: g, limiter: limiter}
	}
	return e, g
}

type rateLimitedEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, text, taskType)
}

func (r *rateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.EmbedBatch(ctx, texts, taskType)
}

func (r *rateLimitedEmbedder) ModelName() string {
	return r.next.ModelName()
}

type rateLimitedGenerator struct {
	next    IGenerator
	limiter *rate.Limiter
}

func (r *rateLimitedGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Generate(ctx, prompt, temperature)
}
