package controller

import (
	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// NewRouter wires every route. Only /health is reachable without an API key.
func NewRouter(rag *RAGController, auth Authenticator, limiter *KeyRateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	// Add CORS middleware for browser clients
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/health", Health)

	api := router.Group("/")
	api.Use(RequireAPIKey(auth))
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	{
		api.POST("/query", rag.Query)
		api.POST("/upload-webhook", rag.UploadWebhook)
		api.POST("/upload-direct", rag.UploadDirect)
		api.POST("/upload-text", rag.UploadText)
		api.POST("/delete-upload-file", rag.DeleteUploadFile)
		api.POST("/delete-all-upload-files", rag.DeleteAllUploadFiles)
		api.POST("/delete-webhook", rag.DeleteWebhook)
		api.POST("/delete-all-webhooks", rag.DeleteAllWebhooks)
		api.GET("/files", rag.ListFiles)
		api.GET("/save-index", rag.SaveIndex)
		api.GET("/index", rag.IndexStatus)
	}
	return router
}
