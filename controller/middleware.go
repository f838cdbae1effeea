package controller

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/models"
	"github/itish2003/docbot/services"
)

const (
	requestIDKey    = "request_id"
	apiKeyKey       = "api_key"
	requestIDHeader = "X-Request-ID"
)

// Authenticator decides whether an API key may call the API.
type Authenticator interface {
	IsValid(candidate string) bool
}

// RequestID tags every request with a uuid, reusing one sent by the client.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Set(requestIDKey, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

// RequestLogger logs one line per request after it completes.
func RequestLogger() gin.HandlerFunc {
	log := logging.For("http")
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		entry := log.WithFields(logrus.Fields{
			"method":     ctx.Request.Method,
			"path":       ctx.Request.URL.Path,
			"status":     ctx.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  ctx.ClientIP(),
			"request_id": ctx.GetString(requestIDKey),
		})
		switch {
		case ctx.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		case ctx.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// RequireAPIKey rejects requests whose Authorization header is not in the allow-list.
func RequireAPIKey(auth Authenticator) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := services.ExtractAPIKey(ctx.GetHeader("Authorization"))
		if !auth.IsValid(key) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, models.MessageResponse{Message: "Authentication Failed"})
			return
		}
		ctx.Set(apiKeyKey, services.HashKey(key))
		ctx.Next()
	}
}

// KeyRateLimiter hands out one token bucket per API key.
type KeyRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewKeyRateLimiter allows rps requests per second per key with the given
// burst. rps <= 0 disables limiting.
func NewKeyRateLimiter(rps float64, burst int) *KeyRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyRateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may make another request now.
func (l *KeyRateLimiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware answers 429 once the caller's bucket is empty. It must run after
// RequireAPIKey, which stores the hashed key it buckets by.
func (l *KeyRateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !l.Allow(ctx.GetString(apiKeyKey)) {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, models.MessageResponse{Message: "Rate limit exceeded"})
			return
		}
		ctx.Next()
	}
}
