package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/util"
	sentry "github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// defaultRequestTimeout bounds every request; provider calls carry their own
// shorter budgets inside it.
const defaultRequestTimeout = 60 * time.Second

// StatusClientClosedRequest is the nginx convention for a client that went
// away before the response was written.
const StatusClientClosedRequest = 499

var errOverloaded = errors.New("server is at capacity, try again later")

// Deadline attaches the request deadline to the context so downstream
// provider and database calls are cancelled when it expires.
func Deadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultRequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Throttle bounds concurrent execution of the routes it wraps. Requests past
// the concurrency cap wait on a bounded queue; requests past the queue are
// rejected with a Retry-After.
func Throttle(maxConcurrent, maxQueued int) gin.HandlerFunc {
	queued := make(chan struct{}, maxConcurrent+maxQueued)
	running := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case queued <- struct{}{}:
		default:
			c.Header("Retry-After", "5")
			util.ErrResponse(c, http.StatusServiceUnavailable, "Overloaded", errOverloaded)
			c.Abort()
			return
		}
		defer func() { <-queued }()

		select {
		case running <- struct{}{}:
			defer func() { <-running }()
			c.Next()
		case <-c.Request.Context().Done():
			util.ErrResponse(c, StatusClientClosedRequest, "Cancelled", c.Request.Context().Err())
			c.Abort()
		}
	}
}

// ErrLogger is a middleware that logs errors
func ErrLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.For(c).Errorf("%s %s %s %s %s", c.Request.Method, c.Request.URL, c.ClientIP(), c.Request.Header.Get("User-Agent"), c.Errors.JSON())
		}
	}
}

func Sentry(reportGinErrors bool) gin.HandlerFunc {
	handler := sentrygin.New(sentrygin.Options{Repanic: true})

	return func(c *gin.Context) {
		// Clone a new hub for each request
		hub := sentry.CurrentHub().Clone()
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		// sentrygin calls c.Next() itself
		handler(c)

		if reportGinErrors {
			for _, err := range c.Errors {
				hub.CaptureException(err)
			}
		}
	}
}
