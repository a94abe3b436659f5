package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/layer-3/sepha/service"
)

const DefaultBasePath = "auth"

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, basePath string, logger *slog.Logger) *gin.Engine {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewAuthHandlers(authService)

	router.GET("/", handlers.Index)

	// Auth routes
	auth := router.Group("/" + basePath)
	{
		auth.GET("/init/:id", handlers.Init)
		auth.POST("/authenticate", handlers.Authenticate)
		auth.POST("/verify", handlers.Verify)
	}

	return router
}

// WithCORS wraps the router so browser clients on the allowed origins can
// call the relay directly
func WithCORS(router http.Handler, allowedOrigins []string) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})(router)
}
