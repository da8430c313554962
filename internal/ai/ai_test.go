package ai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type stubEmbedder struct {
	calls atomic.Int32
	errs  []error
	dim   int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := s.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func (s *stubEmbedder) ModelName() string { return "stub" }

type stubGenerator struct {
	delay time.Duration
	out   string
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.delay):
	}
	return s.out, s.err
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(classifyStatus("openai", 429, errors.New("slow down"))))
	require.True(t, IsTransient(classifyStatus("openai", 503, errors.New("down"))))
	require.False(t, IsTransient(classifyStatus("openai", 400, errors.New("too long"))))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(errors.New("unknown")))
	require.True(t, IsTransient(classifyMessage("gemini", errors.New("Error 429, Message: quota, Status: RESOURCE_EXHAUSTED"))))
	require.False(t, IsTransient(classifyMessage("gemini", errors.New("Error 400, Status: INVALID_ARGUMENT"))))
	require.True(t, IsTransient(&appErr.EmbeddingError{Transient: true, Err: errors.New("x")}))
}

func TestRetryEmbedderRetriesTransient(t *testing.T) {
	stub := &stubEmbedder{dim: 3, errs: []error{
		fmt.Errorf("first: %w", ErrRateLimited),
		fmt.Errorf("second: %w", ErrServer),
	}}
	e := WrapRetryEmbedder(stub, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	res, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, int32(3), stub.calls.Load())
}

func TestRetryEmbedderStopsOnPermanent(t *testing.T) {
	stub := &stubEmbedder{dim: 3, errs: []error{fmt.Errorf("bad: %w", ErrRejected)}}
	e := WrapRetryEmbedder(stub, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond})
	_, err := e.Embed(context.Background(), "x", TaskTypeQuery)
	require.Error(t, err)
	require.Equal(t, int32(1), stub.calls.Load())
	var embedErr *appErr.EmbeddingError
	require.True(t, errors.As(err, &embedErr))
	require.False(t, embedErr.Transient)
	require.ErrorIs(t, err, ErrRejected)
}

func TestRetryEmbedderExhausted(t *testing.T) {
	stub := &stubEmbedder{dim: 3, errs: []error{ErrRateLimited, ErrRateLimited}}
	e := WrapRetryEmbedder(stub, RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond})
	_, err := e.Embed(context.Background(), "x", TaskTypeQuery)
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, int32(2), stub.calls.Load())
}

func TestManagerTimeout(t *testing.T) {
	m := NewManager(&stubGenerator{delay: time.Second, out: "late"}, nil, ManagerConfig{Timeout: 20 * time.Millisecond})
	_, err := m.Generate(context.Background(), "hi", 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = m.Embed(context.Background(), "hi", TaskTypeQuery)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestRateLimitWrapper(t *testing.T) {
	stub := &stubEmbedder{dim: 2}
	e, g := WrapRateLimit(stub, &stubGenerator{out: "ok"}, 1000, 1)
	for i := 0; i < 3; i++ {
		_, err := e.Embed(context.Background(), "x", TaskTypeQuery)
		require.NoError(t, err)
	}
	out, err := g.Generate(context.Background(), "p", 0)
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	slow, _ := WrapRateLimit(&stubEmbedder{dim: 2}, nil, 0.001, 1)
	_, err = slow.Embed(context.Background(), "x", TaskTypeQuery)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Embed(ctx, "x", TaskTypeQuery)
	require.Error(t, err)
}

func TestHashingProvider(t *testing.T) {
	p, err := NewProvider("hashing", map[string]interface{}{"dimension": 64})
	require.NoError(t, err)
	e := NewEmbedder(p, "v1")
	require.Equal(t, "hashing:v1", e.ModelName())
	vecs, err := e.EmbedBatch(context.Background(), []string{"Paris is the capital", "paris IS the capital!", "bananas"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 64)
	require.Equal(t, vecs[0], vecs[1])
	require.NotEqual(t, vecs[0], vecs[2])

	_, err = p.Generate(context.Background(), "v1", "hi", 0)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGroupGeneratorFallback(t *testing.T) {
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "a", Generator: &stubGenerator{err: errors.New("boom")}},
		{Name: "b", Generator: &stubGenerator{out: "answer"}},
	})
	out, err := g.Generate(context.Background(), "p", 0)
	require.NoError(t, err)
	require.Equal(t, "answer", out)
}

func TestGroupEmbedderStopsOnPermanent(t *testing.T) {
	second := &stubEmbedder{dim: 2}
	g := NewGroupEmbedder([]EmbedderEntry{
		{Name: "a", Embedder: &stubEmbedder{dim: 2, errs: []error{ErrRejected}}},
		{Name: "b", Embedder: second},
	})
	_, err := g.Embed(context.Background(), "x", TaskTypeQuery)
	require.ErrorIs(t, err, ErrRejected)
	require.Zero(t, second.calls.Load())
	require.Equal(t, "a|b", g.ModelName())
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewProvider("", nil)
	require.Error(t, err)
}

func TestKeyedProvidersRequireAPIKey(t *testing.T) {
	for _, name := range []string{"openai", "openrouter", "gemini"} {
		for _, data := range []interface{}{nil, map[string]interface{}{}, map[string]interface{}{"api_key": "  "}} {
			_, err := NewProvider(name, data)
			require.Error(t, err, name)
			require.True(t, appErr.IsConfiguration(err), name)
			require.Contains(t, err.Error(), "api_key")
		}
		p, err := NewProvider(name, map[string]interface{}{"api_key": "sk-test"})
		require.NoError(t, err, name)
		require.Equal(t, name, p.Name())
	}
	_, err := NewProvider("hashing", map[string]interface{}{})
	require.NoError(t, err)
}
