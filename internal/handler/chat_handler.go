package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
	"github.com/xxxsen/ragchat/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Ask answers one message. A request without session_id starts a new
// session whose id is returned with the answer.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.Error(c, errcode.ErrInvalid, "message is required")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	answer, err := h.chat.Ask(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *ChatHandler) Examples(c *gin.Context) {
	response.Success(c, gin.H{"examples": h.chat.Examples()})
}

func (h *ChatHandler) History(c *gin.Context) {
	sessionID := c.Param("id")
	turns, err := h.chat.Turns(sessionID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"session_id": sessionID, "turns": turns})
}

func (h *ChatHandler) EndSession(c *gin.Context) {
	h.chat.EndSession(c.Param("id"))
	response.Success(c, gin.H{})
}
