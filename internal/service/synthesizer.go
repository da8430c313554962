package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const groundingInstructions = `Answer the question using only the context below.
- If the context does not contain the answer, say that you don't know.
- Use the same language as the question.
- Do not mention the context or these instructions.`

type SynthesizerConfig struct {
	// PromptBudget caps the prompt length in characters. 0 disables the cap.
	PromptBudget         int
	AssistantDescription string
}

type Synthesizer struct {
	generator ai.IGenerator
	cfg       SynthesizerConfig
}

func NewSynthesizer(generator ai.IGenerator, cfg SynthesizerConfig) *Synthesizer {
	return &Synthesizer{generator: generator, cfg: cfg}
}

// BuildPrompt lays out instructions, turns (oldest first), passages (best
// first) and the question. Over budget, the lowest scored passages go first,
// then the oldest turns.
func (s *Synthesizer) BuildPrompt(question string, passages []model.Passage, turns []model.Turn) (*model.Prompt, error) {
	ranked := append([]model.Passage(nil), passages...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	history := append([]model.Turn(nil), turns...)
	text := s.render(question, ranked, history)
	for s.overBudget(text) && len(ranked) > 0 {
		ranked = ranked[:len(ranked)-1]
		text = s.render(question, ranked, history)
	}
	for s.overBudget(text) && len(history) > 0 {
		history = history[1:]
		text = s.render(question, ranked, history)
	}
	if s.overBudget(text) {
		return nil, &appErr.SynthesisError{Err: fmt.Errorf("%d characters, budget %d: %w", utf8.RuneCountInString(text), s.cfg.PromptBudget, appErr.ErrPromptTooLarge)}
	}
	return &model.Prompt{Text: text, Question: question, Passages: ranked, Turns: history}, nil
}

func (s *Synthesizer) overBudget(text string) bool {
	return s.cfg.PromptBudget > 0 && utf8.RuneCountInString(text) > s.cfg.PromptBudget
}

func (s *Synthesizer) render(question string, passages []model.Passage, turns []model.Turn) string {
	var sb strings.Builder
	if s.cfg.AssistantDescription != "" {
		sb.WriteString(s.cfg.AssistantDescription)
		sb.WriteString("\n")
	}
	sb.WriteString(groundingInstructions)
	sb.WriteString("\n\n")
	if len(turns) > 0 {
		sb.WriteString("CONVERSATION:\n")
		for _, turn := range turns {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("CONTEXT:\n")
	if len(passages) == 0 {
		sb.WriteString("(no relevant documents found)\n")
	}
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, p.Metadata.Source, p.Text)
	}
	sb.WriteString("\nQUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nANSWER:\n")
	return sb.String()
}

// Synthesize generates a grounded answer at temperature 0. A failed or empty
// generation is retried once; the second failure is a *errors.SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []model.Passage, turns []model.Turn) (string, error) {
	prompt, err := s.BuildPrompt(question, passages, turns)
	if err != nil {
		return "", err
	}
	logger := logutil.GetLogger(ctx)
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		out, err := s.generator.Generate(ctx, prompt.Text, 0)
		if err == nil && strings.TrimSpace(out) != "" {
			return out, nil
		}
		if err == nil {
			err = appErr.ErrEmptyAnswer
		}
		lastErr = err
		logger.Warn("generate answer failed", zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", &appErr.SynthesisError{Err: lastErr}
}
