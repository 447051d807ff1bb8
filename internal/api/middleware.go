package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/internal/service"
)

// Constants for middleware
const (
	requestIDKey = "X-Request-ID"
	actorKey     = "actor"

	actorIDHeader   = "X-Actor-ID"
	actorNameHeader = "X-Actor-Name"
	tenantIDHeader  = "X-Tenant-ID"
)

// RequestIDMiddleware adds a request ID to the context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestIDKey, requestID)

		c.Next()
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Request-ID, X-Actor-ID, X-Actor-Name, X-Tenant-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// ActorMiddleware extracts the acting user and tenant from request headers.
// Every mutation is attributed to the actor in the audit trail.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Actor{
			ID:       c.GetHeader(actorIDHeader),
			Name:     c.GetHeader(actorNameHeader),
			TenantID: c.GetHeader(tenantIDHeader),
		}
		if actor.Name == "" {
			actor.Name = "system"
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFrom returns the actor extracted by ActorMiddleware.
func actorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(service.Actor); ok {
			return actor
		}
	}
	return service.Actor{Name: "system"}
}

// LoggingMiddleware logs API requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		requestID := c.GetString(requestIDKey)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("request_id", requestID).
			Msg("API request")
	}
}
