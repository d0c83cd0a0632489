// Package router assembles the gateway's HTTP routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgersync/internal/handlers"
	"ledgersync/internal/identity"
	"ledgersync/internal/middleware"
	"ledgersync/internal/remote"
	"ledgersync/internal/validator"
)

// New returns the gateway engine serving store. Every document route
// requires a bearer token whose subject owns the documents touched.
func New(store remote.Store, tokens *identity.Tokens) *gin.Engine {
	validator.Register()

	documentHandler := handlers.NewDocumentHandler(store)
	changesHandler := handlers.NewChangesHandler(store)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	router.GET("/api/health", handlers.Health(store))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(tokens))

	collections := v1.Group("/collections/:collection")
	collections.GET("/documents", documentHandler.ListDocuments)
	collections.GET("/documents/:id", documentHandler.GetDocument)
	collections.PUT("/documents/:id", documentHandler.PutDocument)
	collections.DELETE("/documents/:id", documentHandler.DeleteDocument)
	collections.POST("/documents/:id/claim", documentHandler.ClaimDocument)
	collections.GET("/changes", changesHandler.Stream)

	return router
}
