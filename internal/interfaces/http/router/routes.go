package router

import (
	"github.com/gin-gonic/gin"

	"docqa-rag-api/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, chatHandler *handler.ChatHandler, adminHandler *handler.AdminHandler) {
	// 会话与问答
	sessions := v1.Group("/chat/sessions")
	{
		sessions.POST("", chatHandler.CreateSession)
		sessions.GET("", chatHandler.ListSessions)
		sessions.GET("/:sid", chatHandler.GetSession)
		sessions.DELETE("/:sid", chatHandler.DeleteSession)
		sessions.GET("/:sid/stats", chatHandler.SessionStats)
		sessions.GET("/:sid/messages", chatHandler.ListMessages)
		sessions.POST("/:sid/messages", chatHandler.SendMessage)
	}

	// 运维
	admin := v1.Group("/admin")
	{
		admin.GET("/rag/status", adminHandler.Status)
		admin.POST("/rag/circuit-breaker/reset", adminHandler.ResetCircuitBreaker)
		admin.POST("/documents/:id/invalidate", adminHandler.InvalidateDocument)
		admin.DELETE("/cache", adminHandler.ClearCache)
	}
}
