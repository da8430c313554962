package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragchat/internal/middleware"
)

type RouterDeps struct {
	Chat            *ChatHandler
	Index           *IndexHandler
	RateLimit       int
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	chat := api.Group("/chat")
	chat.GET("/examples", deps.Chat.Examples)
	chat.GET("/sessions/:id", deps.Chat.History)
	chat.DELETE("/sessions/:id", deps.Chat.EndSession)
	chat.POST("/ask", middleware.RateLimit(deps.RateLimit, deps.RateLimitWindow), deps.Chat.Ask)

	api.POST("/index/reindex", deps.Index.Reindex)
	api.GET("/index/:name", deps.Index.Status)
}
