package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/conversation"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

const UnableToAnswer = "Sorry, I am unable to answer that right now. Please try again later."

type ChatConfig struct {
	IndexName       string
	TopK            int
	HistoryTurns    int
	MaxTurns        int
	SessionTTL      time.Duration
	SessionCapacity int
	Examples        []string
}

type ChatService struct {
	retriever   *Retriever
	synthesizer *Synthesizer
	sessions    *conversation.Store
	cfg         ChatConfig
}

func NewChatService(retriever *Retriever, synthesizer *Synthesizer, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &ChatService{
		retriever:   retriever,
		synthesizer: synthesizer,
		sessions:    conversation.NewStore(cfg.SessionCapacity, cfg.SessionTTL, cfg.MaxTurns),
		cfg:         cfg,
	}
}

// Ask answers message within session sessionID. Questions of one session run
// one at a time; different sessions do not block each other.
//
// A retrieval failure returns a *errors.RetrievalError. A synthesis failure
// returns a degraded answer and no error. In both cases, and on cancellation,
// no turn is recorded.
func (c *ChatService) Ask(ctx context.Context, sessionID string, message string) (*model.Answer, error) {
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", appErr.ErrInvalid)
	}
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID), zap.String("index", c.cfg.IndexName))
	unlock := c.sessions.Lock(sessionID)
	defer unlock()
	sess := c.sessions.Session(sessionID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	passages, err := c.retriever.Search(ctx, message, c.cfg.IndexName, c.cfg.TopK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error("retrieval failed", zap.Error(err))
		return nil, err
	}

	text, err := c.synthesizer.Synthesize(ctx, message, passages, sess.Turns(c.cfg.HistoryTurns))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error("synthesis failed, answer degraded", zap.Error(err))
		return &model.Answer{SessionID: sessionID, Text: UnableToAnswer, Passages: passages, Degraded: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turn := c.sessions.Append(sessionID, message, text)
	logger.Info("question answered",
		zap.Int64("turn", turn.Seq),
		zap.Int("passages", len(passages)),
		zap.Duration("duration", time.Since(start)),
	)
	return &model.Answer{SessionID: sessionID, Text: text, Passages: passages}, nil
}

// Turns returns the recorded turns of a session, oldest first.
func (c *ChatService) Turns(sessionID string) ([]model.Turn, error) {
	sess, ok := c.sessions.Lookup(sessionID)
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return sess.Turns(0), nil
}

// EndSession drops the session and its history.
func (c *ChatService) EndSession(sessionID string) {
	c.sessions.Delete(sessionID)
}

func (c *ChatService) Examples() []string {
	return c.cfg.Examples
}

// UserMessage maps an Ask error to text fit for the end user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	case errors.Is(err, appErr.ErrIndexNotFound):
		return "The knowledge base has not been indexed yet. Please try again later."
	case appErr.IsRetrieval(err):
		return "I could not search the knowledge base right now. Please try again."
	case appErr.IsSynthesis(err):
		return UnableToAnswer
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long. Please try again."
	case errors.Is(err, appErr.ErrInvalid):
		return "Please enter a question."
	}
	return "Something went wrong. Please try again."
}
