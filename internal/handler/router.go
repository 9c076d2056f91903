package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carebridge/carebridge/internal/middleware"
	"github.com/carebridge/carebridge/internal/service"
)

type RouterDeps struct {
	Auth            *AuthHandler
	Users           *UserHandler
	Patients        *PatientHandler
	Documents       *DocumentHandler
	Chat            *ChatHandler
	Agent           *AgentHandler
	AuthService     *service.AuthService
	JWTSecret       []byte
	AgentRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret), ActorLoader(deps.AuthService))

	authGroup.POST("/auth/refresh", deps.Auth.Refresh)
	authGroup.GET("/auth/me", deps.Auth.Me)

	authGroup.POST("/users", deps.Users.Create)
	authGroup.GET("/users", deps.Users.List)
	authGroup.GET("/users/:id", deps.Users.Get)
	authGroup.PUT("/users/:id", deps.Users.Update)

	authGroup.POST("/patients", deps.Patients.Create)
	authGroup.GET("/patients", deps.Patients.List)
	authGroup.GET("/patients/:id", deps.Patients.Get)
	authGroup.PUT("/patients/:id", deps.Patients.Update)
	authGroup.DELETE("/patients/:id", deps.Patients.Deactivate)

	authGroup.POST("/documents", deps.Documents.Create)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/embedding-statuses", deps.Documents.EmbeddingStatuses)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.PUT("/documents/:id", deps.Documents.Update)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.POST("/documents/upload", deps.Documents.Upload)
	authGroup.POST("/documents/:id/embeddings/regenerate", deps.Documents.RegenerateEmbeddings)
	authGroup.GET("/documents/:id/embeddings/status", deps.Documents.EmbeddingStatus)

	authGroup.POST("/chat/search", deps.Chat.Search)
	authGroup.POST("/chat/ask", deps.Chat.Ask)

	agentGroup := authGroup.Group("")
	if deps.AgentRateWindow > 0 {
		agentGroup.Use(middleware.RateLimit(deps.AgentRateWindow))
	}
	agentGroup.POST("/agent/query", deps.Agent.Query)
}
