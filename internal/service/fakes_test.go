package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
)

func newHashEmbedder() ai.IEmbedder {
	return ai.NewEmbedder(ai.NewHashingProvider(128), "test")
}

// echoGenerator answers with the context section of the prompt.
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
	temps   []float32
	// failures makes the first n calls fail.
	failures int
	empty    bool
	hook     func(prompt string)
	reply    func(prompt string) string
}

func (g *echoGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.temps = append(g.temps, temperature)
	fail := g.failures > 0
	if fail {
		g.failures--
	}
	empty := g.empty
	hook := g.hook
	reply := g.reply
	g.mu.Unlock()
	if hook != nil {
		hook(prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fail {
		return "", errors.New("model overloaded")
	}
	if empty {
		return "   ", nil
	}
	if reply != nil {
		return reply(prompt), nil
	}
	return contextSection(prompt), nil
}

func (g *echoGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *echoGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func contextSection(prompt string) string {
	start := strings.Index(prompt, "CONTEXT:\n")
	end := strings.Index(prompt, "QUESTION:")
	if start < 0 || end < start {
		return "I don't know."
	}
	return strings.TrimSpace(prompt[start+len("CONTEXT:\n") : end])
}

func questionOf(prompt string) string {
	start := strings.LastIndex(prompt, "QUESTION:\n")
	end := strings.LastIndex(prompt, "\n\nANSWER:")
	if start < 0 || end < start {
		return ""
	}
	return prompt[start+len("QUESTION:\n") : end]
}

// rejectingEmbedder fails any batch containing a marked text and rejects the
// marked text on its own.
type rejectingEmbedder struct {
	ai.IEmbedder
	marker string
}

func (r *rejectingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if strings.Contains(text, r.marker) {
		return nil, ai.ErrRejected
	}
	return r.IEmbedder.Embed(ctx, text, taskType)
}

func (r *rejectingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, r.marker) {
			return nil, ai.ErrRejected
		}
	}
	return r.IEmbedder.EmbedBatch(ctx, texts, taskType)
}

// shortEmbedder returns a truncated vector for marked texts.
type shortEmbedder struct {
	ai.IEmbedder
	marker string
}

func (s *shortEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	res, err := s.IEmbedder.EmbedBatch(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		if strings.Contains(text, s.marker) {
			res[i] = res[i][:8]
		}
	}
	return res, nil
}

type staticLoader struct {
	docs []model.Document
	err  error
}

func (l *staticLoader) Load(ctx context.Context, location string) ([]model.Document, error) {
	return l.docs, l.err
}
