package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irlmbm/companion-backend/pkg/ratelimiter"
)

// AuthMiddleware is a placeholder for the actual authentication middleware.
// In a real application, this would validate a Firebase token and set the
// "userID" in the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The client identifies itself with a header until token validation
		// lands. Replace this with actual token validation logic.
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			c.Abort()
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// RateLimit applies rate limiting to all requests passing through it.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RegisterRoutes registers all the routes for the gateway service. limiter
// may be nil when rate limiting is disabled.
func RegisterRoutes(router *gin.Engine, api *API, limiter ratelimiter.RateLimiter) {
	// All routes will be under /api/v1
	v1 := router.Group("/api/v1")
	if limiter != nil {
		v1.Use(RateLimit(limiter))
	}

	tasks := v1.Group("/tasks")
	tasks.Use(AuthMiddleware())
	{
		tasks.POST("/chat", api.SubmitChatHandler)
		tasks.POST("/upload", api.SubmitUploadHandler)
		tasks.POST("/sweep", api.SubmitSweepHandler)
		tasks.GET("/:id", api.GetTaskHandler)
	}

	// WebSocket route
	ws := router.Group("/ws")
	ws.Use(AuthMiddleware())
	{
		ws.GET("/subscribe", api.WebSocketHandler)
	}
}
