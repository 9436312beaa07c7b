package middleware

import (
	"context"
	"strings"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/util"
	"github.com/gin-gonic/gin"
)

func IsOriginAllowed(ctx context.Context, requestOrigin string) bool {
	if env.GetString(ctx, "ENV") == "local" {
		return true
	}
	allowedOrigins := strings.Split(env.GetString(ctx, "ALLOWED_ORIGINS"), ",")

	return util.ContainsString(allowedOrigins, requestOrigin)
}

// HandleCORS sets the CORS headers
func HandleCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestOrigin := c.Request.Header.Get("Origin")

		if IsOriginAllowed(c, requestOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", requestOrigin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, sentry-trace, baggage")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Access-Control-Allow-Origin, Access-Control-Allow-Headers, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
